package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-liquidation-lab/internal/backtest"
	"evm-liquidation-lab/internal/config"
	"evm-liquidation-lab/internal/decision"
	"evm-liquidation-lab/internal/domain"
)

func TestApplyOfflineDefaults(t *testing.T) {
	c := config.Default()
	applyOfflineDefaults(c)
	assert.Equal(t, offlineProtocol, c.Chain.ProtocolAddress)
	assert.Equal(t, offlineToken, c.Chain.TokenAddress)
	require.NoError(t, c.Validate())

	c.Chain.ProtocolAddress = "0x0000000000000000000000000000000000000abc"
	applyOfflineDefaults(c)
	assert.Equal(t, "0x0000000000000000000000000000000000000abc", c.Chain.ProtocolAddress)
}

func TestRequirePositive(t *testing.T) {
	assert.NoError(t, requirePositive("events", 1))
	assert.EqualError(t, requirePositive("events", 0), "--events must be positive, got 0")
}

func TestOpenStores_NothingConfigured(t *testing.T) {
	_, _, err := openStores(context.Background(), config.Default())
	assert.ErrorIs(t, err, errNoStorage)
}

func TestOpenStores_SQLite(t *testing.T) {
	c := config.Default()
	c.Storage.SQLitePath = t.TempDir() + "/lab.db"

	stores, closeStores, err := openStores(context.Background(), c)
	require.NoError(t, err)
	defer closeStores()
	assert.NotNil(t, stores.Runs)
	assert.NotNil(t, stores.Samples)
	assert.Nil(t, stores.Decisions)
}

func TestPrintSummary(t *testing.T) {
	res := &backtest.Result{
		Summary: domain.RunSummary{
			RunID:         "run-1",
			Mode:          domain.RunModeStress,
			Events:        3,
			Signals:       3,
			TotalAttempts: 3,
			Successful:    3,
			Metrics:       []domain.MetricSummary{{Metric: "end_to_end_us", Count: 3, P99: 42}},
		},
		Gate: &decision.DecisionResult{
			Decision: decision.DecisionGO,
			Targets: []decision.TargetResult{{
				Target:  decision.Target{Name: "End-to-end", Percentile: 99, Limit: 10 * time.Millisecond},
				Actual:  42 * time.Microsecond,
				Present: true,
				Pass:    true,
			}},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "run run-1 (stress)")
	assert.Contains(t, out, "end_to_end")
	assert.Contains(t, out, "latency gate: GO")
	assert.Contains(t, out, "PASS End-to-end")
}
