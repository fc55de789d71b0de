// Command benchmark-detection times the analysis stages on a synthetic
// appointment network with planted communities: patients and sites are
// split into clusters and most visits stay inside the home cluster, so a
// working detector should recover roughly that many communities.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/dd0wney/attendnet/pkg/algorithms"
	"github.com/dd0wney/attendnet/pkg/graph"
	"github.com/dd0wney/attendnet/pkg/logging"
	"github.com/dd0wney/attendnet/pkg/metrics"
)

func main() {
	patients := flag.Int("patients", 2000, "Number of synthetic patients")
	sites := flag.Int("sites", 100, "Number of synthetic sites")
	clusters := flag.Int("clusters", 8, "Number of planted clusters")
	visits := flag.Int("visits", 6, "Appointment edges per patient")
	mixing := flag.Float64("mixing", 0.1, "Probability a visit leaves the home cluster")
	dnaRate := flag.Float64("dna-rate", 0.12, "Per-appointment DNA probability")
	alpha := flag.Float64("alpha", 0.05, "Backbone significance level")
	minSize := flag.Int("min-size", 10, "Minimum community size")
	seed := flag.Int64("seed", 42, "Random seed")
	timeout := flag.Duration("timeout", 30*time.Second, "Per-strategy timeout")
	flag.Parse()

	fmt.Printf("AttendNet - Community Detection Benchmark\n")
	fmt.Printf("=========================================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Patients: %d across %d clusters\n", *patients, *clusters)
	fmt.Printf("  Sites:    %d\n", *sites)
	fmt.Printf("  Visits:   %d per patient, %.0f%% leaving the home cluster\n", *visits, *mixing*100)
	fmt.Printf("  Seed:     %d\n\n", *seed)

	// Build the planted-partition graph
	fmt.Printf("Building synthetic graph...\n")
	start := time.Now()
	g, err := buildSyntheticGraph(*patients, *sites, *clusters, *visits, *mixing, *dnaRate, *seed)
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}
	stats := g.Stats()
	fmt.Printf("Built %d patients, %d sites, %d edges in %v\n\n",
		stats.Patients, stats.Sites, stats.Edges, time.Since(start))

	// Benchmark 1: backbone extraction
	fmt.Printf("Benchmark 1: Backbone Extraction (alpha %.3f)\n", *alpha)
	start = time.Now()
	backbone, err := algorithms.ExtractBackbone(g, algorithms.BackboneOptions{Alpha: *alpha})
	if err != nil {
		log.Fatalf("Backbone extraction failed: %v", err)
	}
	fmt.Printf("Completed in %v\n", time.Since(start))
	fmt.Printf("  Retained: %d of %d edges (%.1f%%)\n\n",
		backbone.Retained, backbone.InputEdges,
		100*float64(backbone.Retained)/float64(max(backbone.InputEdges, 1)))

	registry := algorithms.DefaultStrategyRegistry()
	logger := logging.NewNopLogger()
	collector := metrics.NewRegistry()

	baseOpts := algorithms.DetectorOptions{
		Seed:             *seed,
		MaxIterations:    100,
		StrategyTimeout:  *timeout,
		MinCommunitySize: *minSize,
		Workers:          4,
		Logger:           logger,
		Metrics:          collector,
	}

	// Benchmark 2: each strategy alone
	fmt.Printf("Benchmark 2: Individual Strategies\n")
	for _, name := range registry.Names() {
		opts := baseOpts
		opts.Strategies = []string{name}
		detector, err := algorithms.NewDetector(registry, opts)
		if err != nil {
			log.Fatalf("Detector setup failed: %v", err)
		}

		start = time.Now()
		result, err := detector.Detect(context.Background(), backbone.Graph)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Printf("  %-22s failed: %v\n", name, err)
			continue
		}

		status := ""
		if result.Degraded {
			status = " (degraded)"
		}
		fmt.Printf("  %-22s %3d communities, modularity %.4f, %v%s\n",
			name, len(result.Communities), result.Modularity, elapsed, status)
	}
	fmt.Println()

	// Benchmark 3: the full detector race
	fmt.Printf("Benchmark 3: Full Detector (all strategies, best modularity wins)\n")
	detector, err := algorithms.NewDetector(registry, baseOpts)
	if err != nil {
		log.Fatalf("Detector setup failed: %v", err)
	}

	start = time.Now()
	result, err := detector.Detect(context.Background(), backbone.Graph)
	if err != nil {
		log.Fatalf("Detection failed: %v", err)
	}
	elapsed := time.Since(start)

	fmt.Printf("Completed in %v\n", elapsed)
	fmt.Printf("  Winner:      %s\n", result.Strategy)
	fmt.Printf("  Communities: %d (planted %d)\n", len(result.Communities), *clusters)
	fmt.Printf("  Modularity:  %.4f\n", result.Modularity)
	for _, report := range result.Reports {
		fmt.Printf("    %-22s %-8s modularity %.4f in %v\n",
			report.Name, report.Status, report.Modularity, report.Duration)
	}

	fmt.Printf("\nBenchmark complete.\n")
}

// buildSyntheticGraph plants clusters: patient i and site j belong to
// cluster i%k and j%k, and each visit stays home with probability 1-mixing.
func buildSyntheticGraph(patients, sites, clusters, visits int, mixing, dnaRate float64, seed int64) (*graph.Bipartite, error) {
	if clusters < 1 || sites < clusters {
		return nil, fmt.Errorf("need at least one site per cluster: %d sites, %d clusters", sites, clusters)
	}
	rng := rand.New(rand.NewSource(seed))
	g := graph.NewBipartite(graph.DefaultOptions())

	siteIDs := make([]string, sites)
	sitesByCluster := make([][]string, clusters)
	for j := 0; j < sites; j++ {
		code := fmt.Sprintf("SYN%04d", j)
		if _, err := g.AddSite(code); err != nil {
			return nil, err
		}
		siteIDs[j] = graph.SiteID(code)
		c := j % clusters
		sitesByCluster[c] = append(sitesByCluster[c], siteIDs[j])
	}

	for i := 0; i < patients; i++ {
		key := fmt.Sprintf("patient%06d", i)
		if _, err := g.AddPatient(key); err != nil {
			return nil, err
		}
		patientID := graph.PatientID(key)
		home := i % clusters

		for v := 0; v < visits; v++ {
			cluster := home
			if rng.Float64() < mixing {
				cluster = rng.Intn(clusters)
			}
			pool := sitesByCluster[cluster]
			siteID := pool[rng.Intn(len(pool))]

			weight := 1 + rng.Intn(3)
			dna := 0
			for a := 0; a < weight; a++ {
				if rng.Float64() < dnaRate {
					dna++
				}
			}
			if err := g.AddEdge(patientID, siteID, weight, dna); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}
