package storage

import (
	"fmt"

	"github.com/sugawarayuuta/sonnet"

	"evm-liquidation-lab/internal/domain"
)

// EncodeMetrics serializes per-metric summaries for a JSON column.
func EncodeMetrics(m []domain.MetricSummary) ([]byte, error) {
	if m == nil {
		m = []domain.MetricSummary{}
	}
	b, err := sonnet.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	return b, nil
}

// DecodeMetrics is the inverse of EncodeMetrics.
func DecodeMetrics(b []byte) ([]domain.MetricSummary, error) {
	var m []domain.MetricSummary
	if len(b) == 0 {
		return m, nil
	}
	if err := sonnet.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return m, nil
}
