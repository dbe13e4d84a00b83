package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvr-ai/go-nms/benchmark"
	"github.com/nvr-ai/go-nms/logger"
	"github.com/nvr-ai/go-nms/metrics"
	"go.uber.org/zap"
)

func main() {
	var (
		scenarioFile  = flag.String("scenarios", "", "Path to scenario set file (YAML or JSON)")
		outputDir     = flag.String("output", "./benchmark_results", "Output directory for results")
		quick         = flag.Bool("quick", false, "Run quick benchmark scenarios")
		comprehensive = flag.Bool("comprehensive", false, "Run comprehensive benchmark scenarios")
		algorithms    = flag.String("algorithms", "", "Compare algorithms for a box kind (axis_aligned or rotated)")
		workers       = flag.String("workers", "", "Comma-separated worker counts for rotated scaling, e.g. 1,2,4,8")
		candidates    = flag.Int("candidates", 1000, "Candidates per payload for -algorithms and -workers")
		classes       = flag.Int("classes", 15, "Foreground classes for -algorithms and -workers")
		saveSet       = flag.String("save-scenarios", "", "Write the selected scenarios to this file and exit")
		timeout       = flag.Duration("timeout", 30*time.Minute, "Benchmark timeout duration")
		dev           = flag.Bool("dev", false, "Human-readable debug logging")
	)
	flag.Parse()

	var err error
	if *dev {
		err = logger.InitDevelopment()
	} else {
		err = logger.InitProduction()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	m := metrics.NewManager(metrics.WithNamespace("nms_benchmark"))
	suite := benchmark.NewSuite(benchmark.NewSuiteArgs{
		OutputDir: *outputDir,
		Logger:    logger.Log(),
		Recorder:  m,
	})

	predefined := &benchmark.PredefinedScenarios{}
	var sets []*benchmark.ScenarioSet

	if *scenarioFile != "" {
		set, err := benchmark.LoadScenarioSet(*scenarioFile)
		if err != nil {
			log.Fatalf("Failed to load scenario file: %v", err)
		}
		sets = append(sets, set)
	} else {
		if *quick {
			sets = append(sets, predefined.GetQuickScenarios())
		}
		if *comprehensive {
			sets = append(sets, predefined.GetComprehensiveScenarios())
		}
		if *algorithms != "" {
			sets = append(sets, predefined.GetAlgorithmComparisonScenarios(*algorithms, *candidates, *classes))
		}
		if *workers != "" {
			counts, err := parseInts(*workers)
			if err != nil {
				log.Fatalf("Invalid -workers: %v", err)
			}
			sets = append(sets, predefined.GetWorkerScalingScenarios(*candidates, *classes, counts))
		}
		if len(sets) == 0 {
			sets = append(sets, predefined.GetQuickScenarios())
		}
	}

	total := 0
	for _, set := range sets {
		for _, scenario := range set.Scenarios {
			suite.AddScenario(scenario)
		}
		total += len(set.Scenarios)
		logger.Log().Info("added scenarios", zap.String("set", set.Name), zap.Int("count", len(set.Scenarios)))
	}

	if *saveSet != "" {
		merged := &benchmark.ScenarioSet{Name: "Selected Scenarios", Scenarios: suite.Scenarios()}
		if err := benchmark.SaveScenarioSet(merged, *saveSet); err != nil {
			log.Fatalf("Failed to save scenarios: %v", err)
		}
		logger.Log().Info("scenarios saved", zap.String("path", *saveSet), zap.Int("count", total))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	if err := suite.RunAllScenarios(ctx); err != nil {
		logger.Log().Fatal("benchmark execution failed", zap.Error(err))
	}
	logger.Log().Info("benchmark completed", zap.Duration("elapsed", time.Since(start)))

	results := suite.GetResults()
	fmt.Printf("\n=== BENCHMARK RESULTS SUMMARY ===\n")
	fmt.Printf("Total scenarios: %d\n", len(results))
	fmt.Printf("Results saved to: %s\n", *outputDir)

	var best benchmark.PerformanceMetrics
	for _, result := range results {
		if result.RunsPerSecond > best.RunsPerSecond {
			best = result
		}
		fmt.Printf("  %s: %.2f runs/s, p95 %v, %.1f detections (%.2f MB memory)\n",
			result.Scenario.Name,
			result.RunsPerSecond,
			result.Latency.P95,
			result.Detections,
			float64(result.MemoryStats.AllocBytes)/(1024*1024))
	}
	if best.Scenario.Name != "" {
		fmt.Printf("\nFastest scenario: %s (%.2f runs/s)\n", best.Scenario.Name, best.RunsPerSecond)
	}
}

func parseInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		if n < 1 {
			return nil, fmt.Errorf("worker count %d must be positive", n)
		}
		out = append(out, n)
	}
	return out, nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "Benchmark tool for multiclass NMS post-processing.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -quick\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "  %s -algorithms axis_aligned -candidates 5000 -classes 80\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "  %s -workers 1,2,4,8 -candidates 2000\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "  %s -scenarios ./scenarios.yaml -output ./results\n", filepath.Base(os.Args[0]))
	}
}
