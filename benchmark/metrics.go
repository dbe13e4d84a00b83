// Package benchmark measures multiclass NMS over synthetic detector output.
package benchmark

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario      Scenario       `json:"scenario"`
	Timestamp     time.Time      `json:"timestamp"`
	TotalDuration time.Duration  `json:"total_duration"`
	RunsPerSecond float64        `json:"runs_per_second"`
	Latency       LatencyMetrics `json:"latency"`
	MemoryStats   MemoryMetrics  `json:"memory_stats"`
	CPUStats      CPUMetrics     `json:"cpu_stats"`
	// Passed, Detections and Suppressed are per-run averages.
	Passed     float64 `json:"passed"`
	Detections float64 `json:"detections"`
	Suppressed float64 `json:"suppressed"`
	ErrorRate  float64 `json:"error_rate"`
}

// LatencyMetrics summarises per-run wall time.
type LatencyMetrics struct {
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`
	Min  time.Duration `json:"min"`
	Max  time.Duration `json:"max"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// CPUMetrics captures CPU usage statistics
type CPUMetrics struct {
	NumCPU        int `json:"num_cpu"`
	MaxGoroutines int `json:"max_goroutines"`
}

// latencyMetrics computes the summary of samples. Empty input yields the
// zero value.
func latencyMetrics(samples []time.Duration) LatencyMetrics {
	if len(samples) == 0 {
		return LatencyMetrics{}
	}

	x := make([]float64, len(samples))
	for i, d := range samples {
		x[i] = float64(d)
	}
	sort.Float64s(x)

	q := func(p float64) time.Duration {
		return time.Duration(stat.Quantile(p, stat.Empirical, x, nil))
	}
	return LatencyMetrics{
		Mean: time.Duration(stat.Mean(x, nil)),
		P50:  q(0.50),
		P95:  q(0.95),
		P99:  q(0.99),
		Min:  time.Duration(x[0]),
		Max:  time.Duration(x[len(x)-1]),
	}
}
