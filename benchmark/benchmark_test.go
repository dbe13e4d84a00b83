package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-nms/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRecorder struct {
	runs, errors int
}

func (c *countingRecorder) ObserveRun(postprocess.Stats, time.Duration) { c.runs++ }
func (c *countingRecorder) ObserveError(string)                         { c.errors++ }

func TestNewSuite(t *testing.T) {
	outputDir := t.TempDir()

	suite := NewSuite(NewSuiteArgs{OutputDir: outputDir})

	assert.NotNil(t, suite)
	assert.Equal(t, outputDir, suite.outputDir)
	assert.Empty(t, suite.Scenarios())
	assert.Empty(t, suite.GetResults())
}

func TestScenarioBuilder(t *testing.T) {
	scenario := NewScenarioBuilder("test_scenario").
		WithKind("rotated").
		WithAlgorithm(postprocess.AlgorithmRotatedNMS, 0.1).
		WithShape(500, 15).
		WithScoreThreshold(0.2).
		WithMaxNum(50).
		WithWorkers(4).
		WithIterations(50).
		WithWarmupRuns(5).
		WithSeed(9).
		Build()

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "rotated", scenario.Kind)
	assert.Equal(t, postprocess.AlgorithmRotatedNMS, scenario.Algorithm)
	assert.Equal(t, float32(0.1), scenario.IoUThreshold)
	assert.Equal(t, 500, scenario.Candidates)
	assert.Equal(t, 15, scenario.Classes)
	assert.Equal(t, float32(0.2), scenario.ScoreThreshold)
	assert.Equal(t, 50, scenario.MaxNum)
	assert.Equal(t, 4, scenario.Workers)
	assert.Equal(t, 50, scenario.Iterations)
	assert.Equal(t, 5, scenario.WarmupRuns)
	assert.Equal(t, int64(9), scenario.Seed)
	assert.NoError(t, scenario.Validate())
}

func TestScenario_Validate(t *testing.T) {
	ok := NewScenarioBuilder("ok").Build()
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Algorithm = "fast_nms"
	assert.ErrorIs(t, bad.Validate(), postprocess.ErrUnsupportedAlgorithm)

	bad = ok
	bad.Kind = "hexagon"
	assert.ErrorIs(t, bad.Validate(), postprocess.ErrInvalidBoxEncoding)

	bad = ok
	bad.Iterations = 0
	assert.Error(t, bad.Validate())
}

func TestAddScenario(t *testing.T) {
	suite := NewSuite(NewSuiteArgs{OutputDir: t.TempDir()})

	scenario := NewScenarioBuilder("test").WithShape(10, 2).Build()
	suite.AddScenario(scenario)

	require.Len(t, suite.Scenarios(), 1)
	assert.Equal(t, scenario, suite.Scenarios()[0])
}

func TestPredefinedScenarios(t *testing.T) {
	predefined := &PredefinedScenarios{}

	quick := predefined.GetQuickScenarios()
	assert.Len(t, quick.Scenarios, 3)
	assert.Equal(t, "Quick Performance Test", quick.Name)

	comprehensive := predefined.GetComprehensiveScenarios()
	// Three axis-aligned and two rotated algorithms.
	assert.Len(t, comprehensive.Scenarios, 5*len(CandidateCounts)*len(ClassCounts))
	assert.Equal(t, "Comprehensive Performance Test", comprehensive.Name)

	algorithms := predefined.GetAlgorithmComparisonScenarios("axis_aligned", 100, 3)
	assert.Len(t, algorithms.Scenarios, 3)
	assert.Contains(t, algorithms.Name, "Algorithm Comparison")

	workers := predefined.GetWorkerScalingScenarios(100, 15, []int{1, 2, 4})
	require.Len(t, workers.Scenarios, 3)
	assert.Equal(t, 4, workers.Scenarios[2].Workers)

	for _, set := range []*ScenarioSet{quick, comprehensive, algorithms, workers} {
		for _, s := range set.Scenarios {
			assert.NoError(t, s.Validate(), s.Name)
		}
	}
}

func TestScenarioSet_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	set := (&PredefinedScenarios{}).GetQuickScenarios()

	require.NoError(t, SaveScenarioSet(set, path))
	loaded, err := LoadScenarioSet(path)
	require.NoError(t, err)
	assert.Equal(t, set, loaded)

	require.NoError(t, os.WriteFile(path, []byte("scenarios:\n  - name: broken\n    algorithm: nope\n"), 0o644))
	_, err = LoadScenarioSet(path)
	assert.ErrorIs(t, err, postprocess.ErrUnsupportedAlgorithm)
}

func TestGeneratePayload(t *testing.T) {
	axis := NewScenarioBuilder("axis").WithShape(50, 4).WithSeed(3).Build()
	p := GeneratePayload(axis)
	require.Len(t, p.Boxes, 50)
	require.Len(t, p.Scores, 50)
	for i := range p.Boxes {
		require.Len(t, p.Boxes[i], 4)
		require.Len(t, p.Scores[i], 5)
		assert.Less(t, p.Boxes[i][0], p.Boxes[i][2])
		assert.Less(t, p.Boxes[i][1], p.Boxes[i][3])
	}
	assert.Equal(t, p, GeneratePayload(axis), "same seed, same payload")

	rotated := NewScenarioBuilder("rotated").WithKind("rotated").WithShape(20, 3).Build()
	p = GeneratePayload(rotated)
	require.Len(t, p.Boxes[0], 5)
	require.Len(t, p.Scores[0], 4)
	for i, row := range p.Scores {
		hot := 0
		for c := range row {
			if row[c] > row[hot] {
				hot = c
			}
		}
		assert.Contains(t, []int{1, 2}, hot, "row %d peaks outside the rotated foreground", i)
	}
}

func TestRunScenario(t *testing.T) {
	rec := &countingRecorder{}
	suite := NewSuite(NewSuiteArgs{OutputDir: t.TempDir(), Logger: zap.NewNop(), Recorder: rec})

	for _, s := range []Scenario{
		NewScenarioBuilder("axis").WithShape(200, 5).WithIterations(5).WithWarmupRuns(2).Build(),
		NewScenarioBuilder("soft").WithAlgorithm(postprocess.AlgorithmSoftNMS, 0.3).
			WithShape(200, 5).WithIterations(5).WithWarmupRuns(0).Build(),
		NewScenarioBuilder("rotated").WithKind("rotated").WithAlgorithm(postprocess.AlgorithmRotatedNMS, 0.1).
			WithShape(200, 5).WithWorkers(3).WithIterations(5).WithWarmupRuns(1).Build(),
	} {
		t.Run(s.Name, func(t *testing.T) {
			before := rec.runs
			m, err := suite.RunScenario(context.Background(), s)
			require.NoError(t, err)

			assert.Equal(t, s, m.Scenario)
			assert.Equal(t, 5, rec.runs-before, "only measured runs are forwarded")
			assert.Positive(t, m.RunsPerSecond)
			assert.Positive(t, m.Detections)
			assert.Positive(t, m.Passed)
			assert.GreaterOrEqual(t, m.Passed, m.Detections)
			assert.LessOrEqual(t, m.Detections, float64(s.MaxNum))
			assert.InDelta(t, m.Passed-m.Detections, m.Suppressed, 1e-9)
			assert.Zero(t, m.ErrorRate)
			assert.LessOrEqual(t, m.Latency.Min, m.Latency.P50)
			assert.LessOrEqual(t, m.Latency.P50, m.Latency.P95)
			assert.LessOrEqual(t, m.Latency.P99, m.Latency.Max)
			assert.Positive(t, m.CPUStats.NumCPU)
		})
	}
	assert.Zero(t, rec.errors)
}

func TestRunScenario_Errors(t *testing.T) {
	suite := NewSuite(NewSuiteArgs{OutputDir: t.TempDir(), Logger: zap.NewNop()})

	bad := NewScenarioBuilder("bad").WithShape(0, 3).Build()
	_, err := suite.RunScenario(context.Background(), bad)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = suite.RunScenario(ctx, NewScenarioBuilder("cancelled").WithShape(10, 2).Build())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAllScenarios(t *testing.T) {
	dir := t.TempDir()
	suite := NewSuite(NewSuiteArgs{OutputDir: dir, Logger: zap.NewNop()})
	suite.AddScenario(NewScenarioBuilder("a").WithShape(50, 3).WithIterations(3).Build())
	suite.AddScenario(NewScenarioBuilder("skipped").WithShape(0, 3).Build())
	suite.AddScenario(NewScenarioBuilder("b").WithKind("rotated").
		WithAlgorithm(postprocess.AlgorithmRotatedNMS, 0.1).WithShape(50, 3).WithIterations(3).Build())

	require.NoError(t, suite.RunAllScenarios(context.Background()))

	results := suite.GetResults()
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Scenario.Name)
	assert.Equal(t, "b", results[1].Scenario.Name)

	jsonFiles, err := filepath.Glob(filepath.Join(dir, "benchmark_results_*.json"))
	require.NoError(t, err)
	require.Len(t, jsonFiles, 1)
	data, err := os.ReadFile(jsonFiles[0])
	require.NoError(t, err)
	var saved []PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Len(t, saved, 2)

	csvFiles, err := filepath.Glob(filepath.Join(dir, "benchmark_summary_*.csv"))
	require.NoError(t, err)
	require.Len(t, csvFiles, 1)
	f, err := os.Open(csvFiles[0])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, summaryHeader, rows[0])
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "rotated", rows[2][2])
}

func TestLatencyMetrics(t *testing.T) {
	assert.Equal(t, LatencyMetrics{}, latencyMetrics(nil))

	samples := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*time.Microsecond)
	}
	l := latencyMetrics(samples)
	assert.Equal(t, time.Microsecond, l.Min)
	assert.Equal(t, 100*time.Microsecond, l.Max)
	assert.Equal(t, 50*time.Microsecond, l.P50)
	assert.Equal(t, 95*time.Microsecond, l.P95)
	assert.Equal(t, 99*time.Microsecond, l.P99)
	assert.Equal(t, 50500*time.Nanosecond, l.Mean)
}

func BenchmarkScenarioCreation(b *testing.B) {
	predefined := &PredefinedScenarios{}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = predefined.GetComprehensiveScenarios()
	}
}

func BenchmarkGeneratePayload(b *testing.B) {
	s := NewScenarioBuilder("gen").WithShape(1000, 80).Build()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = GeneratePayload(s)
	}
}
