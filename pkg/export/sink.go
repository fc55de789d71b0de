package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"

	"github.com/dd0wney/attendnet/pkg/logging"
	"github.com/dd0wney/attendnet/pkg/metrics"
)

// Sink writes a serialized document to one destination.
type Sink interface {
	Name() string
	Write(ctx context.Context, data []byte) (int, error)
}

// Options configures an Exporter.
type Options struct {
	Logger  logging.Logger
	Metrics *metrics.Registry
}

// Exporter serializes documents and drives the configured sinks.
type Exporter struct {
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewExporter builds an exporter.
func NewExporter(opts Options) *Exporter {
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultRegistry()
	}
	return &Exporter{
		logger:  opts.Logger.With(logging.Component("export")),
		metrics: opts.Metrics,
	}
}

// Export checks referential integrity, serializes the document once and
// writes it to every sink in order. The first sink failure aborts the
// remainder.
func (e *Exporter) Export(ctx context.Context, doc *Document, sinks ...Sink) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("export: encode document: %w", err)
	}

	for _, sink := range sinks {
		start := time.Now()
		n, err := sink.Write(ctx, data)
		if err != nil {
			e.metrics.RecordExport(sink.Name(), "error", 0, time.Since(start))
			e.logger.Error("export failed",
				logging.String("sink", sink.Name()),
				logging.Error(err),
			)
			return fmt.Errorf("export: %s sink: %w", sink.Name(), err)
		}
		e.metrics.RecordExport(sink.Name(), "success", n, time.Since(start))
		e.logger.Info("snapshot written",
			logging.String("sink", sink.Name()),
			logging.Int("bytes", n),
			logging.Nodes(doc.Metadata.TotalNodes),
			logging.Edges(doc.Metadata.TotalEdges),
			logging.Communities(doc.Metadata.TotalCommunities),
			logging.Latency(time.Since(start)),
		)
	}
	return nil
}

// FileSink writes to a local path. The payload lands in a temp file in the
// target directory first and is renamed into place, so readers never see a
// partial document. With Compress set the payload is snappy block format;
// pair it with an ".sz" suffix on the path.
type FileSink struct {
	Path     string
	Compress bool
}

// Name identifies the sink in logs and metrics.
func (s *FileSink) Name() string { return "file" }

// Write stores the payload atomically.
func (s *FileSink) Write(ctx context.Context, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	payload := data
	if s.Compress {
		payload = snappy.Encode(nil, data)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return 0, fmt.Errorf("rename into place: %w", err)
	}
	return len(payload), nil
}

// ReadDocument loads a document written by a FileSink, transparently
// decompressing ".sz" payloads.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("export: read %s: %w", path, err)
	}
	if strings.HasSuffix(path, ".sz") {
		data, err = snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("export: decompress %s: %w", path, err)
		}
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("export: decode %s: %w", path, err)
	}
	return &doc, nil
}
