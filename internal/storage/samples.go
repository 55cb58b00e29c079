package storage

import (
	"sort"

	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/metrics"
)

// SamplesFromRows flattens per-attempt latency rows into samples. Attempts
// are numbered from 1 in row order.
func SamplesFromRows(runID string, rows []map[string]float64) []*domain.LatencySample {
	var out []*domain.LatencySample
	for i, row := range rows {
		for _, name := range metrics.MetricNames {
			if v, ok := row[name]; ok {
				out = append(out, &domain.LatencySample{
					RunID:   runID,
					Attempt: i + 1,
					Metric:  name,
					Micros:  v,
				})
			}
		}
	}
	return out
}

// RowsFromSamples rebuilds per-attempt rows in attempt order.
func RowsFromSamples(samples []*domain.LatencySample) []map[string]float64 {
	byAttempt := make(map[int]map[string]float64)
	for _, s := range samples {
		row, ok := byAttempt[s.Attempt]
		if !ok {
			row = make(map[string]float64)
			byAttempt[s.Attempt] = row
		}
		row[s.Metric] = s.Micros
	}

	attempts := make([]int, 0, len(byAttempt))
	for a := range byAttempt {
		attempts = append(attempts, a)
	}
	sort.Ints(attempts)

	rows := make([]map[string]float64, len(attempts))
	for i, a := range attempts {
		rows[i] = byAttempt[a]
	}
	return rows
}

// ValidSample reports whether s has its key fields set.
func ValidSample(s *domain.LatencySample) bool {
	return s != nil && s.RunID != "" && s.Attempt > 0 && s.Metric != ""
}
