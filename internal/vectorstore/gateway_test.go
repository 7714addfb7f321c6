package vectorstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viaobs/via/internal/fingerprint"
)

func newTestGateway() (*Gateway, *Memory) {
	m := NewMemory()
	g := NewGateway(m, GatewayConfig{
		Tier1Name:   "via_rhythm_monitor",
		Tier2Prefix: "via_forensic_index",
		DenseDim:    16,
		Timeout:     5 * time.Second,
		Parallelism: 4,
	})
	return g, m
}

func TestDailyPartitionName(t *testing.T) {
	g, _ := newTestGateway()

	ts := time.Date(2025, 3, 14, 15, 9, 26, 0, time.Local).Unix()
	assert.Equal(t, "via_forensic_index_2025_03_14", g.DailyPartition(ts))

	// Same day, different hour, same partition.
	later := time.Date(2025, 3, 14, 23, 59, 59, 0, time.Local).Unix()
	assert.Equal(t, g.DailyPartition(ts), g.DailyPartition(later))
}

func TestPartitionsForRangeInclusive(t *testing.T) {
	g, _ := newTestGateway()

	start := time.Date(2025, 3, 14, 22, 0, 0, 0, time.Local).Unix()
	end := time.Date(2025, 3, 16, 2, 0, 0, 0, time.Local).Unix()
	got := g.PartitionsForRange(start, end)
	assert.Equal(t, []string{
		"via_forensic_index_2025_03_14",
		"via_forensic_index_2025_03_15",
		"via_forensic_index_2025_03_16",
	}, got)

	// A range inside one day yields exactly that day.
	sameDay := g.PartitionsForRange(start, start+60)
	assert.Equal(t, []string{"via_forensic_index_2025_03_14"}, sameDay)
}

func TestSetupTier1Resets(t *testing.T) {
	ctx := context.Background()
	g, m := newTestGateway()

	require.NoError(t, g.SetupTier1(ctx))
	require.NoError(t, g.UpsertTier1(ctx, []Point{{
		ID:      "p1",
		Vectors: map[string][]float32{"": make([]float32, fingerprint.VectorDim)},
		Payload: map[string]any{"ts": int64(1)},
	}}))

	n, err := g.CountTier1(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Setup recreates the collection from scratch.
	require.NoError(t, g.SetupTier1(ctx))
	n, err = g.CountTier1(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	exists, err := m.CollectionExists(ctx, "via_rhythm_monitor")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEnsureTier2PartitionIdempotent(t *testing.T) {
	ctx := context.Background()
	g, m := newTestGateway()

	name := "via_forensic_index_2025_03_14"
	require.NoError(t, g.EnsureTier2Partition(ctx, name))
	require.NoError(t, g.UpsertTier2(ctx, name, []Point{{ID: "c1", Payload: map[string]any{"start_ts": int64(5)}}}))

	// A second ensure must not wipe existing points.
	require.NoError(t, g.EnsureTier2Partition(ctx, name))
	n, err := m.Count(ctx, name, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListTier2PartitionsFiltersByPrefix(t *testing.T) {
	ctx := context.Background()
	g, m := newTestGateway()

	require.NoError(t, g.SetupTier1(ctx))
	require.NoError(t, g.EnsureTier2Partition(ctx, "via_forensic_index_2025_03_14"))
	require.NoError(t, g.EnsureTier2Partition(ctx, "via_forensic_index_2025_03_15"))
	require.NoError(t, m.CreateCollection(ctx, CollectionSpec{Name: "unrelated"}))

	got, err := g.ListTier2Partitions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"via_forensic_index_2025_03_14",
		"via_forensic_index_2025_03_15",
	}, got)
}

func TestFanOutSkipsMissingPartitions(t *testing.T) {
	ctx := context.Background()
	g, m := newTestGateway()

	require.NoError(t, g.EnsureTier2Partition(ctx, "via_forensic_index_2025_03_14"))
	require.NoError(t, m.Upsert(ctx, "via_forensic_index_2025_03_14", []Point{
		{ID: "c1", Payload: map[string]any{"start_ts": int64(5)}},
	}, false))

	partitions := []string{
		"via_forensic_index_2025_03_13", // does not exist
		"via_forensic_index_2025_03_14",
		"via_forensic_index_2025_03_15", // does not exist
	}

	var mu sync.Mutex
	var seen []Point
	g.FanOut(ctx, partitions, func(ctx context.Context, partition string) error {
		points, err := m.Scroll(ctx, partition, ScrollRequest{})
		if err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, points...)
		mu.Unlock()
		return nil
	})

	// The missing days are skipped, the existing one answers.
	require.Len(t, seen, 1)
	assert.Equal(t, "c1", seen[0].ID)
}
