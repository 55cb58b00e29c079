// Package metrics records per-opportunity stage timings and aggregates them into order statistics.
package metrics

import (
	"math"
	"sort"
	"sync"

	"evm-liquidation-lab/internal/domain"
)

// Statistics accumulates per-attempt latency rows across one run. Append-only.
// Guarded by an RWMutex so a reader (HTTP stats, reporter) can observe it
// while the pipeline consumer records.
type Statistics struct {
	mu            sync.RWMutex
	totalAttempts int
	successful    int
	failed        int
	rows          []map[string]float64
}

// NewStatistics creates an empty aggregate.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Record appends the derived durations of cp and bumps the counters.
func (s *Statistics) Record(cp *Checkpoints, success bool) {
	s.RecordRow(cp.Latencies(), success)
}

// RecordRow appends a precomputed metric → microseconds row.
func (s *Statistics) RecordRow(row map[string]float64, success bool) {
	copied := make(map[string]float64, len(row))
	for k, v := range row {
		copied[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, copied)
	s.totalAttempts++
	if success {
		s.successful++
	} else {
		s.failed++
	}
}

// Counts returns total, successful and failed attempts.
func (s *Statistics) Counts() (total, successful, failed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalAttempts, s.successful, s.failed
}

// Rows returns a copy of every recorded row in attempt order.
func (s *Statistics) Rows() []map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]map[string]float64, len(s.rows))
	for i, row := range s.rows {
		c := make(map[string]float64, len(row))
		for k, v := range row {
			c[k] = v
		}
		out[i] = c
	}
	return out
}

// values collects the present samples of metric, sorted ascending.
func (s *Statistics) values(metric string) []float64 {
	s.mu.RLock()
	vals := make([]float64, 0, len(s.rows))
	for _, row := range s.rows {
		if v, ok := row[metric]; ok {
			vals = append(vals, v)
		}
	}
	s.mu.RUnlock()

	sort.Float64s(vals)
	return vals
}

// Percentile returns the nearest-rank percentile of metric: the sorted sample
// at index floor(p/100*n), clamped to n-1. No interpolation.
func (s *Statistics) Percentile(metric string, p float64) (float64, bool) {
	return nearestRank(s.values(metric), p)
}

// Mean returns the arithmetic mean of metric; false when no row carries it.
func (s *Statistics) Mean(metric string) (float64, bool) {
	return mean(s.values(metric))
}

// Summary computes P50/P95/P99/mean/min/max for every metric with samples.
func (s *Statistics) Summary() []domain.MetricSummary {
	out := make([]domain.MetricSummary, 0, len(MetricNames))
	for _, name := range MetricNames {
		vals := s.values(name)
		if len(vals) == 0 {
			continue
		}
		sum := domain.MetricSummary{
			Metric: name,
			Count:  len(vals),
			Min:    vals[0],
			Max:    vals[len(vals)-1],
		}
		sum.P50, _ = nearestRank(vals, 50)
		sum.P95, _ = nearestRank(vals, 95)
		sum.P99, _ = nearestRank(vals, 99)
		sum.Mean, _ = mean(vals)
		out = append(out, sum)
	}
	return out
}

func nearestRank(sorted []float64, p float64) (float64, bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}
	idx := int(math.Floor(p / 100 * float64(n)))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx], true
}

func mean(vals []float64) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals)), true
}
