package benchmark

import (
	"fmt"
	"os"

	"github.com/nvr-ai/go-nms/models/postprocess"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Scenario is one benchmark configuration: a synthetic detector output
// shape and the suppression settings applied to it.
type Scenario struct {
	Name string `json:"name" yaml:"name"`
	// Algorithm is the NMS algorithm name, e.g. "nms" or "soft_nms".
	Algorithm postprocess.Algorithm `json:"algorithm" yaml:"algorithm"`
	// Kind is "axis_aligned" or "rotated".
	Kind           string  `json:"kind" yaml:"kind"`
	Candidates     int     `json:"candidates" yaml:"candidates"`
	Classes        int     `json:"classes" yaml:"classes"`
	IoUThreshold   float32 `json:"iou_threshold" yaml:"iou_threshold"`
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
	MaxNum         int     `json:"max_num" yaml:"max_num"`
	Workers        int     `json:"workers" yaml:"workers"`
	Iterations     int     `json:"iterations" yaml:"iterations"`
	WarmupRuns     int     `json:"warmup_runs" yaml:"warmup_runs"`
	// Seed makes the generated payloads reproducible.
	Seed int64 `json:"seed" yaml:"seed"`
}

// Validate checks that the scenario can be run.
func (s Scenario) Validate() error {
	if _, err := postprocess.ParseAlgorithm(string(s.Algorithm)); err != nil {
		return errors.Wrapf(err, "scenario %s", s.Name)
	}
	if _, err := postprocess.ParseKind(s.Kind); err != nil {
		return errors.Wrapf(err, "scenario %s", s.Name)
	}
	if s.Candidates < 1 || s.Classes < 1 || s.Iterations < 1 {
		return errors.Errorf("scenario %s: candidates, classes and iterations must be positive", s.Name)
	}
	return nil
}

// ScenarioBuilder helps build test scenarios with fluent API
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a builder seeded with axis-aligned hard NMS
// over 1000 candidates and 80 classes.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:           name,
			Algorithm:      postprocess.AlgorithmNMS,
			Kind:           "axis_aligned",
			Candidates:     1000,
			Classes:        80,
			IoUThreshold:   0.5,
			ScoreThreshold: 0.05,
			MaxNum:         100,
			Workers:        1,
			Iterations:     100,
			WarmupRuns:     10,
			Seed:           1,
		},
	}
}

// WithAlgorithm sets the NMS algorithm and IoU threshold.
func (sb *ScenarioBuilder) WithAlgorithm(alg postprocess.Algorithm, iou float32) *ScenarioBuilder {
	sb.scenario.Algorithm = alg
	sb.scenario.IoUThreshold = iou
	return sb
}

// WithKind sets the box kind, "axis_aligned" or "rotated".
func (sb *ScenarioBuilder) WithKind(kind string) *ScenarioBuilder {
	sb.scenario.Kind = kind
	return sb
}

// WithShape sets the number of candidates and foreground classes.
func (sb *ScenarioBuilder) WithShape(candidates, classes int) *ScenarioBuilder {
	sb.scenario.Candidates = candidates
	sb.scenario.Classes = classes
	return sb
}

// WithScoreThreshold sets the confidence gate.
func (sb *ScenarioBuilder) WithScoreThreshold(thr float32) *ScenarioBuilder {
	sb.scenario.ScoreThreshold = thr
	return sb
}

// WithMaxNum sets the detection cap.
func (sb *ScenarioBuilder) WithMaxNum(n int) *ScenarioBuilder {
	sb.scenario.MaxNum = n
	return sb
}

// WithWorkers sets the rotated-path concurrency.
func (sb *ScenarioBuilder) WithWorkers(n int) *ScenarioBuilder {
	sb.scenario.Workers = n
	return sb
}

// WithIterations sets the number of test iterations
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// WithSeed sets the payload generator seed.
func (sb *ScenarioBuilder) WithSeed(seed int64) *ScenarioBuilder {
	sb.scenario.Seed = seed
	return sb
}

// Build returns the configured test scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet represents a collection of related test scenarios
type ScenarioSet struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Scenarios   []Scenario `json:"scenarios" yaml:"scenarios"`
}

// PredefinedScenarios contains common benchmark scenario sets
type PredefinedScenarios struct{}

var (
	// CandidateCounts spans a small head up to a dense one-stage detector.
	CandidateCounts = []int{100, 1000, 5000}
	// ClassCounts spans single-class, DOTA-sized and COCO-sized heads.
	ClassCounts = []int{1, 15, 80}
)

// algorithmsFor lists the algorithms that make sense for a box kind.
func algorithmsFor(kind string) []postprocess.Algorithm {
	if kind == "rotated" {
		return []postprocess.Algorithm{postprocess.AlgorithmRotatedNMS, postprocess.AlgorithmNMS}
	}
	return []postprocess.Algorithm{postprocess.AlgorithmNMS, postprocess.AlgorithmSoftNMS, postprocess.AlgorithmRotatedNMS}
}

// GetComprehensiveScenarios crosses every box kind, algorithm, candidate
// count and class count.
func (ps *PredefinedScenarios) GetComprehensiveScenarios() *ScenarioSet {
	scenarios := make([]Scenario, 0)

	for _, kind := range []string{"axis_aligned", "rotated"} {
		for _, alg := range algorithmsFor(kind) {
			for _, n := range CandidateCounts {
				for _, c := range ClassCounts {
					scenarios = append(scenarios, NewScenarioBuilder(fmt.Sprintf("%s_%s_%d_%d", kind, alg, n, c)).
						WithKind(kind).
						WithAlgorithm(alg, 0.5).
						WithShape(n, c).
						Build())
				}
			}
		}
	}

	return &ScenarioSet{
		Name:        "Comprehensive Performance Test",
		Description: "Tests all combinations of box kinds, algorithms, candidate counts and class counts",
		Scenarios:   scenarios,
	}
}

// GetQuickScenarios returns a smaller set for quick testing
func (ps *PredefinedScenarios) GetQuickScenarios() *ScenarioSet {
	scenarios := []Scenario{
		NewScenarioBuilder("quick_axis_aligned_nms").
			WithShape(1000, 80).
			WithIterations(50).
			WithWarmupRuns(5).
			Build(),
		NewScenarioBuilder("quick_axis_aligned_soft_nms").
			WithAlgorithm(postprocess.AlgorithmSoftNMS, 0.3).
			WithShape(1000, 80).
			WithIterations(50).
			WithWarmupRuns(5).
			Build(),
		NewScenarioBuilder("quick_rotated_nms").
			WithKind("rotated").
			WithAlgorithm(postprocess.AlgorithmRotatedNMS, 0.1).
			WithShape(1000, 15).
			WithIterations(50).
			WithWarmupRuns(5).
			Build(),
	}

	return &ScenarioSet{
		Name:        "Quick Performance Test",
		Description: "Quick test with common configurations",
		Scenarios:   scenarios,
	}
}

// GetAlgorithmComparisonScenarios runs every algorithm applicable to kind
// on the same payload.
func (ps *PredefinedScenarios) GetAlgorithmComparisonScenarios(kind string, candidates, classes int) *ScenarioSet {
	scenarios := make([]Scenario, 0)

	for _, alg := range algorithmsFor(kind) {
		scenarios = append(scenarios, NewScenarioBuilder(fmt.Sprintf("algorithm_%s_%s", kind, alg)).
			WithKind(kind).
			WithAlgorithm(alg, 0.5).
			WithShape(candidates, classes).
			Build())
	}

	return &ScenarioSet{
		Name:        fmt.Sprintf("Algorithm Comparison - %s", kind),
		Description: fmt.Sprintf("Compares NMS algorithms on %d %s candidates over %d classes", candidates, kind, classes),
		Scenarios:   scenarios,
	}
}

// GetWorkerScalingScenarios runs the rotated path with increasing worker
// counts.
func (ps *PredefinedScenarios) GetWorkerScalingScenarios(candidates, classes int, workers []int) *ScenarioSet {
	scenarios := make([]Scenario, 0, len(workers))

	for _, w := range workers {
		scenarios = append(scenarios, NewScenarioBuilder(fmt.Sprintf("workers_%d", w)).
			WithKind("rotated").
			WithAlgorithm(postprocess.AlgorithmRotatedNMS, 0.1).
			WithShape(candidates, classes).
			WithWorkers(w).
			Build())
	}

	return &ScenarioSet{
		Name:        "Worker Scaling - rotated",
		Description: fmt.Sprintf("Scales rotated per-class suppression over %v workers", workers),
		Scenarios:   scenarios,
	}
}

// SaveScenarioSet writes a scenario set as YAML.
func SaveScenarioSet(scenarioSet *ScenarioSet, filename string) error {
	data, err := yaml.Marshal(scenarioSet)
	if err != nil {
		return errors.Wrap(err, "failed to marshal scenario set")
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write scenario file")
	}

	return nil
}

// LoadScenarioSet reads a YAML (or JSON) scenario set and validates every
// scenario in it.
func LoadScenarioSet(filename string) (*ScenarioSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario file")
	}

	var scenarioSet ScenarioSet
	if err := yaml.Unmarshal(data, &scenarioSet); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal scenario set")
	}
	for _, s := range scenarioSet.Scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	return &scenarioSet, nil
}
