package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/nvr-ai/go-nms/models/postprocess"
	"github.com/nvr-ai/go-nms/profiler"
	"github.com/nvr-ai/go-nms/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// operationName is the profiler key every timed run is recorded under.
const operationName = "multiclass_nms"

// Suite manages and executes benchmark scenarios
type Suite struct {
	outputDir string
	log       *zap.Logger
	recorder  postprocess.Recorder

	mu        sync.RWMutex
	scenarios []Scenario
	results   []PerformanceMetrics
}

// NewSuiteArgs represents the arguments for creating a new benchmark suite.
type NewSuiteArgs struct {
	// OutputDir receives the JSON and CSV result files.
	OutputDir string
	// Logger defaults to zap.L().
	Logger *zap.Logger
	// Recorder, if set, also observes every measured run, e.g. a
	// metrics.Manager.
	Recorder postprocess.Recorder
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - args: The arguments for creating a new benchmark suite.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(args NewSuiteArgs) *Suite {
	if args.Logger == nil {
		args.Logger = zap.L()
	}
	return &Suite{
		outputDir: args.OutputDir,
		log:       args.Logger.Named("benchmark"),
		recorder:  args.Recorder,
		scenarios: make([]Scenario, 0),
		results:   make([]PerformanceMetrics, 0),
	}
}

// AddScenario adds a test scenario to the benchmark suite
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// Scenarios returns the queued scenarios.
func (bs *Suite) Scenarios() []Scenario {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]Scenario(nil), bs.scenarios...)
}

// GeneratePayload builds the synthetic detector output of a scenario.
// Boxes cluster on a coarse grid so that suppression has work to do.
// Axis-aligned payloads carry shared (x1, y1, x2, y2) boxes, rotated ones
// carry shared (cx, cy, w, h, angle) boxes; both have Classes+1 score
// columns.
func GeneratePayload(s Scenario) util.Payload {
	rng := rand.New(rand.NewSource(s.Seed))
	rotated := s.Kind == "rotated"

	p := util.Payload{
		Boxes:  make([][]float32, s.Candidates),
		Scores: make([][]float32, s.Candidates),
	}
	for i := 0; i < s.Candidates; i++ {
		cx := float32(rng.Intn(16)*40) + rng.Float32()*10
		cy := float32(rng.Intn(16)*40) + rng.Float32()*10
		w := 12 + rng.Float32()*24
		h := 12 + rng.Float32()*24
		if rotated {
			p.Boxes[i] = []float32{cx, cy, w, h, rng.Float32() * 3.14159}
		} else {
			p.Boxes[i] = []float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2}
		}

		// Most mass on one class, the rest on noise.
		row := make([]float32, s.Classes+1)
		for c := range row {
			row[c] = rng.Float32() * 0.1
		}
		row[hotColumn(rng, s.Classes, rotated)] = 0.1 + rng.Float32()*0.9
		p.Scores[i] = row
	}
	return p
}

// hotColumn picks the score column that carries a candidate's class. The
// rotated path reads columns 1..classes-1 only.
func hotColumn(rng *rand.Rand, classes int, rotated bool) int {
	if !rotated {
		return rng.Intn(classes)
	}
	if classes < 2 {
		return 1
	}
	return rng.Intn(classes-1) + 1
}

// runRecorder collects the Stats of every measured run and forwards them.
type runRecorder struct {
	mu       sync.Mutex
	profiler *profiler.RuntimeProfiler
	next     postprocess.Recorder
	measure  bool

	passed, detections, suppressed int
	errors                         int
	latencies                      []time.Duration
}

func (r *runRecorder) ObserveRun(s postprocess.Stats, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.measure {
		return
	}
	r.passed += s.Passed
	r.detections += s.Detections
	r.suppressed += s.Suppressed()
	r.latencies = append(r.latencies, elapsed)
	r.profiler.RecordOperation(operationName, elapsed)
	r.profiler.RecordMetric("detections", float64(s.Detections))
	if r.next != nil {
		r.next.ObserveRun(s, elapsed)
	}
}

func (r *runRecorder) ObserveError(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.measure {
		return
	}
	r.errors++
	if r.next != nil {
		r.next.ObserveError(kind)
	}
}

func (r *runRecorder) start() {
	r.mu.Lock()
	r.measure = true
	r.mu.Unlock()
}

// RunScenario executes a single benchmark scenario
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	alg, _ := postprocess.ParseAlgorithm(string(scenario.Algorithm))
	kind, _ := postprocess.ParseKind(scenario.Kind)
	cfg, err := postprocess.NewNMSConfig(alg, scenario.IoUThreshold)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", scenario.Name)
	}

	prof := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
		ReportInterval: -1,
		SampleInterval: 10 * time.Millisecond,
		MaxSamples:     max(scenario.Iterations, 1),
		Logger:         bs.log,
	})
	rec := &runRecorder{profiler: prof, next: bs.recorder}

	pp, err := postprocess.NewPostprocessor(postprocess.NewPostprocessorArgs{
		NMS:            cfg,
		Encoding:       postprocess.Encoding{Kind: kind},
		ScoreThreshold: scenario.ScoreThreshold,
		MaxNum:         scenario.MaxNum,
		Workers:        scenario.Workers,
		Logger:         zap.NewNop(),
		Recorder:       rec,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", scenario.Name)
	}

	payload := GeneratePayload(scenario)
	boxes, scores, err := payload.Matrices()
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", scenario.Name)
	}
	req := postprocess.Request{Boxes: boxes, Scores: scores}

	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: time.Now(),
	}

	// Warmup errors surface again in the measured loop.
	for i := 0; i < scenario.WarmupRuns; i++ {
		_, _ = pp.Run(ctx, req)
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	prof.Start()
	rec.start()
	startTime := time.Now()

	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			prof.Stop()
			return nil, errors.Wrapf(err, "scenario %s", scenario.Name)
		}
		_, _ = pp.Run(ctx, req)
	}

	totalDuration := time.Since(startTime)
	prof.Stop()

	var endMem runtime.MemStats
	runtime.ReadMemStats(&endMem)

	snap := prof.Snapshot()
	runs := float64(scenario.Iterations)

	metrics.TotalDuration = totalDuration
	metrics.RunsPerSecond = runs / totalDuration.Seconds()
	metrics.Latency = latencyMetrics(rec.latencies)
	metrics.Passed = float64(rec.passed) / runs
	metrics.Detections = float64(rec.detections) / runs
	metrics.Suppressed = float64(rec.suppressed) / runs
	metrics.ErrorRate = float64(rec.errors) / runs

	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}

	metrics.CPUStats = CPUMetrics{
		NumCPU:        runtime.NumCPU(),
		MaxGoroutines: snap.MaxGoroutines,
	}

	return metrics, nil
}

// RunAllScenarios executes all configured benchmark scenarios and saves the
// results. A failing scenario is logged and skipped.
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	for _, scenario := range bs.Scenarios() {
		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			bs.log.Warn("scenario failed", zap.String("scenario", scenario.Name), zap.Error(err))
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		bs.log.Info("scenario completed",
			zap.String("scenario", scenario.Name),
			zap.Float64("runs_per_second", metrics.RunsPerSecond),
			zap.Duration("p95", metrics.Latency.P95),
			zap.Float64("detections", metrics.Detections))
	}

	_, _, err := bs.SaveResults()
	return err
}

// SaveResults writes the results as a JSON file and a CSV summary under
// the output directory and returns both paths.
func (bs *Suite) SaveResults() (string, string, error) {
	results := bs.GetResults()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "failed to create output directory")
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", "", errors.Wrap(err, "failed to marshal results")
	}

	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", "", errors.Wrap(err, "failed to write results file")
	}

	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return "", "", errors.Wrap(err, "failed to save summary CSV")
	}

	bs.log.Info("results saved", zap.String("results", resultsFile), zap.String("summary", summaryFile))
	return resultsFile, summaryFile, nil
}

var summaryHeader = []string{
	"Scenario", "Algorithm", "Kind", "Candidates", "Classes", "Workers",
	"Runs_Per_Second", "Mean_us", "P50_us", "P95_us", "P99_us",
	"Detections", "Suppressed", "Alloc_MB", "Error_Rate",
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(summaryHeader); err != nil {
		return err
	}

	us := func(d time.Duration) string {
		return strconv.FormatFloat(float64(d.Nanoseconds())/1e3, 'f', 2, 64)
	}
	f := func(v float64, prec int) string {
		return strconv.FormatFloat(v, 'f', prec, 64)
	}

	for _, r := range results {
		s := r.Scenario
		if err := w.Write([]string{
			s.Name,
			string(s.Algorithm),
			s.Kind,
			strconv.Itoa(s.Candidates),
			strconv.Itoa(s.Classes),
			strconv.Itoa(s.Workers),
			f(r.RunsPerSecond, 2),
			us(r.Latency.Mean),
			us(r.Latency.P50),
			us(r.Latency.P95),
			us(r.Latency.P99),
			f(r.Detections, 2),
			f(r.Suppressed, 2),
			f(float64(r.MemoryStats.AllocBytes)/(1024*1024), 2),
			f(r.ErrorRate, 4),
		}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// GetResults returns all benchmark results
func (bs *Suite) GetResults() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	results := make([]PerformanceMetrics, len(bs.results))
	copy(results, bs.results)
	return results
}
