package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/storage"
)

func TestRunStore_InsertAndGetByID(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := &domain.RunSummary{
		RunID:     "run-1",
		Mode:      domain.RunModeBacktest,
		StartedAt: 1000,
		Events:    10,
		Metrics:   []domain.MetricSummary{{Metric: "end_to_end_us", Count: 3, P99: 900}},
	}
	require.NoError(t, store.Insert(ctx, run))

	// mutating the caller's copy must not leak in
	run.Metrics[0].P99 = 1

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Events)
	assert.Equal(t, 900.0, got.Metrics[0].P99)

	assert.ErrorIs(t, store.Insert(ctx, run), storage.ErrDuplicateKey)
	assert.ErrorIs(t, store.Insert(ctx, &domain.RunSummary{}), storage.ErrInvalidInput)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_List(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Insert(ctx, &domain.RunSummary{RunID: id, StartedAt: int64(i)}))
	}

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].RunID)

	two, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestSampleStore_InsertBulk(t *testing.T) {
	store := NewSampleStore()
	ctx := context.Background()

	assert.NoError(t, store.InsertBulk(ctx, nil))

	samples := []*domain.LatencySample{
		{RunID: "run-1", Attempt: 2, Metric: "decode_us", Micros: 5},
		{RunID: "run-1", Attempt: 1, Metric: "end_to_end_us", Micros: 400},
		{RunID: "run-1", Attempt: 1, Metric: "decode_us", Micros: 4},
		{RunID: "run-2", Attempt: 1, Metric: "decode_us", Micros: 9},
	}
	require.NoError(t, store.InsertBulk(ctx, samples))

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "decode_us", got[0].Metric)
	assert.Equal(t, 1, got[0].Attempt)
	assert.Equal(t, "end_to_end_us", got[1].Metric)
	assert.Equal(t, 2, got[2].Attempt)
}

func TestSampleStore_InsertBulk_Duplicates(t *testing.T) {
	store := NewSampleStore()
	ctx := context.Background()
	s := &domain.LatencySample{RunID: "run-1", Attempt: 1, Metric: "decode_us", Micros: 5}

	assert.ErrorIs(t, store.InsertBulk(ctx, []*domain.LatencySample{s, s}), storage.ErrDuplicateKey)
	got, _ := store.GetByRunID(ctx, "run-1")
	assert.Empty(t, got, "failed batch must not be partially applied")

	require.NoError(t, store.InsertBulk(ctx, []*domain.LatencySample{s}))
	assert.ErrorIs(t, store.InsertBulk(ctx, []*domain.LatencySample{s}), storage.ErrDuplicateKey)
	assert.ErrorIs(t, store.InsertBulk(ctx, []*domain.LatencySample{{RunID: "x"}}), storage.ErrInvalidInput)
}

func TestDecisionStore_InsertBulk(t *testing.T) {
	store := NewDecisionStore()
	ctx := context.Background()

	records := []*domain.DecisionRecord{
		{DecisionID: "d2", RunID: "run-1", Attempt: 2, Account: "0x02", Profitable: false},
		{DecisionID: "d1", RunID: "run-1", Attempt: 1, Account: "0x01", Profitable: true},
	}
	require.NoError(t, store.InsertBulk(ctx, records))

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d1", got[0].DecisionID)
	assert.True(t, got[0].Profitable)

	assert.ErrorIs(t, store.InsertBulk(ctx, records[:1]), storage.ErrDuplicateKey)
	assert.ErrorIs(t, store.InsertBulk(ctx, []*domain.DecisionRecord{{RunID: "run-1"}}), storage.ErrInvalidInput)

	none, err := store.GetByRunID(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}
