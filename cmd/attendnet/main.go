// Command attendnet runs the appointment network pipeline: it streams an
// outpatient extract from CSV, Postgres or S3, builds the patient-site
// graph, keeps the statistically significant backbone, detects communities,
// scores DNA risk and writes the dashboard snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/dd0wney/attendnet/pkg/logging"
	"github.com/dd0wney/attendnet/pkg/pipeline"
	"github.com/dd0wney/attendnet/pkg/source"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML pipeline config")
	csvPaths := flag.String("csv", "", "Comma-separated extract CSVs (overrides the configured source)")
	outPath := flag.String("out", "", "Snapshot path (overrides the configured export path)")
	runID := flag.String("run", "", "Run identifier (overrides config and ATTENDNET_RUN_ID)")
	flag.Parse()

	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attendnet: %v\n", err)
		os.Exit(1)
	}
	if *csvPaths != "" {
		cfg.Source.Kind = "csv"
		cfg.Source.CSV.Paths = splitList(*csvPaths)
	}
	if *outPath != "" {
		cfg.Export.Path = *outPath
	}
	if *runID != "" {
		cfg.RunID = *runID
	}

	if cfg.Source.Kind == "csv" && len(cfg.Source.CSV.Paths) == 0 {
		fmt.Println("Usage: attendnet --csv extract.csv[,extract2.csv] [--config attendnet.yaml] [--out network_data.json]")
		fmt.Println()
		fmt.Println("The extract must carry PATIENT_KEY and SITE_CODE_OF_TREATMENT columns")
		fmt.Println("at minimum. Postgres and S3 sources are selected through the config")
		fmt.Println("file; credentials come from ATTENDNET_* environment variables.")
		os.Exit(1)
	}

	logger := logging.NewJSONLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("shutdown signal received, aborting run")
		cancel()
	}()

	src, closeSource, err := buildSource(ctx, cfg.Source)
	if err != nil {
		logger.Error("source setup failed", logging.Error(err))
		os.Exit(1)
	}
	defer closeSource()

	pipe, err := pipeline.New(cfg, pipeline.Options{Logger: logger})
	if err != nil {
		logger.Error("pipeline setup failed", logging.Error(err))
		os.Exit(1)
	}

	report, err := pipe.Run(ctx, src)
	if report != nil {
		printSummary(report)
	}
	if err != nil {
		logger.Error("run failed", logging.Error(err))
		os.Exit(1)
	}
}

// buildSource constructs the record source selected by the config. The
// returned closer releases connection-backed sources; for CSV it is a no-op.
func buildSource(ctx context.Context, cfg pipeline.SourceConfig) (source.RecordSource, func(), error) {
	switch cfg.Kind {
	case "csv":
		src, err := source.NewCSVSource(cfg.CSV.Paths...)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil

	case "postgres":
		src, err := source.NewPostgresSource(ctx, source.PostgresOptions{
			DatabaseURL: cfg.Postgres.DatabaseURL,
			Table:       cfg.Postgres.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil

	case "s3":
		src, err := source.NewS3Source(ctx, source.S3Options{
			Bucket:       cfg.S3.Bucket,
			Keys:         cfg.S3.Keys,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("attendnet: unknown source kind %q", cfg.Kind)
	}
}

func printSummary(r *pipeline.Report) {
	fmt.Println()
	fmt.Println("Appointment Network Analysis")
	fmt.Println("============================")
	fmt.Printf("Run:       %s\n", r.RunID)
	fmt.Printf("Elapsed:   %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Println()

	for _, stage := range r.Stages {
		status := stage.Status
		if stage.Err != "" {
			status = fmt.Sprintf("%s (%s)", stage.Status, stage.Err)
		}
		fmt.Printf("  %-10s %-9s %s\n", stage.Name, status, stage.Duration.Round(time.Microsecond))
	}
	fmt.Println()

	fmt.Printf("Ingest:    %d rows read, %d accepted, %d rejected, %d DNA\n",
		r.Ingest.RowsRead, r.Ingest.Accepted, r.Ingest.Rejected, r.Ingest.DNACount)
	for _, line := range tallyLines(r.Ingest.RejectReasons) {
		fmt.Printf("             rejected %s\n", line)
	}
	for _, line := range tallyLines(r.Ingest.Warnings) {
		fmt.Printf("             warning %s\n", line)
	}

	fmt.Printf("Graph:     %d patients, %d sites, %d edges\n",
		r.Graph.Patients, r.Graph.Sites, r.Graph.Edges)
	fmt.Printf("Backbone:  %d of %d edges retained at alpha %.3f\n",
		r.Backbone.Retained, r.Backbone.InputEdges, r.Backbone.Alpha)

	detection := fmt.Sprintf("%d communities via %s (modularity %.4f)",
		r.Detection.Communities, r.Detection.Strategy, r.Detection.Modularity)
	if r.Detection.Degraded {
		detection += " DEGRADED"
	}
	fmt.Printf("Detection: %s\n", detection)

	fmt.Printf("Risk:      %d patients and %d sites scored, %d high-risk patients\n",
		r.Risk.PatientsScored, r.Risk.SitesScored, r.Risk.HighRiskPatients)

	if len(r.Export.Sinks) > 0 {
		line := strings.Join(r.Export.Sinks, ", ")
		if r.Export.Path != "" {
			line += " -> " + r.Export.Path
		}
		fmt.Printf("Export:    %s\n", line)
	}
}

func tallyLines(tally map[string]int) []string {
	lines := make([]string, 0, len(tally))
	for reason, count := range tally {
		lines = append(lines, fmt.Sprintf("%s: %d", reason, count))
	}
	sort.Strings(lines)
	return lines
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
