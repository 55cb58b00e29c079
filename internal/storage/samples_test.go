package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-liquidation-lab/internal/metrics"
)

func TestSamplesRoundTripThroughRows(t *testing.T) {
	rows := []map[string]float64{
		{metrics.MetricDecode: 10, metrics.MetricEndToEnd: 500},
		{metrics.MetricDecode: 12},
		{},
		{metrics.MetricSimulation: 300},
	}

	samples := SamplesFromRows("run-1", rows)
	require.Len(t, samples, 4)
	assert.Equal(t, 1, samples[0].Attempt)
	assert.Equal(t, metrics.MetricDecode, samples[0].Metric)
	assert.Equal(t, metrics.MetricEndToEnd, samples[1].Metric)
	assert.Equal(t, 4, samples[3].Attempt)

	back := RowsFromSamples(samples)
	// the empty attempt has no samples and drops out
	require.Len(t, back, 3)
	assert.Equal(t, rows[0], back[0])
	assert.Equal(t, rows[1], back[1])
	assert.Equal(t, rows[3], back[2])
}

func TestValidSample(t *testing.T) {
	s := SamplesFromRows("r", []map[string]float64{{metrics.MetricDecode: 1}})[0]
	assert.True(t, ValidSample(s))
	s.Attempt = 0
	assert.False(t, ValidSample(s))
	assert.False(t, ValidSample(nil))
}
