package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/viaobs/via/internal/fingerprint"
	"github.com/viaobs/via/internal/metrics"
)

// Named vector fields on Tier-2 points.
const (
	DenseVectorName  = "log_dense_vector"
	SparseVectorName = "bm25_vector"
)

// GatewayConfig carries the collection naming and fan-out tunables.
type GatewayConfig struct {
	Tier1Name   string
	Tier2Prefix string
	DenseDim    int // Tier-2 dense model output size
	Replication int
	Shards      int
	Timeout     time.Duration // per-RPC deadline
	Parallelism int           // max concurrent partition RPCs in a fan-out
}

// Gateway owns collection naming and lifecycle for both tiers and fans reads
// out across daily Tier-2 partitions. All methods bound each underlying call
// with the configured deadline so callers never stall on a single RPC.
type Gateway struct {
	client Client
	cfg    GatewayConfig
}

// NewGateway wraps a vector store client.
func NewGateway(client Client, cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	return &Gateway{client: client, cfg: cfg}
}

// Tier1Name returns the hot collection name.
func (g *Gateway) Tier1Name() string { return g.cfg.Tier1Name }

// DenseDim returns the Tier-2 dense vector dimensionality.
func (g *Gateway) DenseDim() int { return g.cfg.DenseDim }

func (g *Gateway) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.cfg.Timeout)
}

// SetupTier1 resets the hot collection: 64-dim dot-product vectors with
// always-in-RAM binary quantization and an integer payload index on ts.
func (g *Gateway) SetupTier1(ctx context.Context) error {
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()

	spec := CollectionSpec{
		Name: g.cfg.Tier1Name,
		Vectors: map[string]VectorParams{
			"": {Size: fingerprint.VectorDim, Distance: DistanceDot},
		},
		Quantization:   Quantization{Kind: QuantizationBinary, AlwaysRAM: true},
		PayloadIndexes: []PayloadIndex{{Field: "ts", Kind: IndexInteger}},
	}
	if err := g.client.RecreateCollection(ctx, spec); err != nil {
		return fmt.Errorf("setup tier1 collection %s: %w", g.cfg.Tier1Name, err)
	}
	log.Info().Str("collection", g.cfg.Tier1Name).Msg("Tier-1 collection ready")
	return nil
}

// DailyPartition names the Tier-2 partition holding a given start_ts,
// using the local date of the timestamp.
func (g *Gateway) DailyPartition(ts int64) string {
	return dailyName(g.cfg.Tier2Prefix, ts)
}

func dailyName(prefix string, ts int64) string {
	return prefix + "_" + time.Unix(ts, 0).Format("2006_01_02")
}

// PartitionsForRange expands [startTS, endTS] into the candidate daily
// partition names, inclusive of both end dates.
func (g *Gateway) PartitionsForRange(startTS, endTS int64) []string {
	start := time.Unix(startTS, 0)
	end := time.Unix(endTS, 0)
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())

	var names []string
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		names = append(names, g.cfg.Tier2Prefix+"_"+day.Format("2006_01_02"))
	}
	return names
}

// ListTier2Partitions returns every existing daily partition.
func (g *Gateway) ListTier2Partitions(ctx context.Context) ([]string, error) {
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()

	all, err := g.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	var out []string
	for _, name := range all {
		if strings.HasPrefix(name, g.cfg.Tier2Prefix+"_") {
			out = append(out, name)
		}
	}
	return out, nil
}

// EnsureTier2Partition creates a daily partition on first use: named dense
// vector (cosine, on-disk, INT8 scalar quantization held in RAM), IDF-
// modified sparse vector, and the payload indexes the forensic reads need.
func (g *Gateway) EnsureTier2Partition(ctx context.Context, name string) error {
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()

	exists, err := g.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check partition %s: %w", name, err)
	}
	if exists {
		return nil
	}

	log.Warn().Str("partition", name).Msg("Creating daily Tier-2 partition")
	spec := CollectionSpec{
		Name: name,
		Vectors: map[string]VectorParams{
			DenseVectorName: {Size: g.cfg.DenseDim, Distance: DistanceCosine, OnDisk: true},
		},
		SparseVectors: map[string]SparseParams{
			SparseVectorName: {Modifier: "idf"},
		},
		Quantization:      Quantization{Kind: QuantizationInt8, AlwaysRAM: true, Quantile: 0.99},
		ReplicationFactor: g.cfg.Replication,
		ShardNumber:       g.cfg.Shards,
		PayloadIndexes: []PayloadIndex{
			{Field: "start_ts", Kind: IndexInteger},
			{Field: "service", Kind: IndexKeyword},
			{Field: "rhythm_hash", Kind: IndexKeyword},
			{Field: "body", Kind: IndexText},
		},
	}
	if err := g.client.CreateCollection(ctx, spec); err != nil {
		return fmt.Errorf("create partition %s: %w", name, err)
	}
	return nil
}

// UpsertTier1 writes hot points without waiting for commit.
func (g *Gateway) UpsertTier1(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()
	if err := g.client.Upsert(ctx, g.cfg.Tier1Name, points, false); err != nil {
		return fmt.Errorf("upsert tier1: %w", err)
	}
	return nil
}

// UpsertTier2 writes event clusters into a daily partition without waiting.
func (g *Gateway) UpsertTier2(ctx context.Context, partition string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()
	if err := g.client.Upsert(ctx, partition, points, false); err != nil {
		return fmt.Errorf("upsert tier2 partition %s: %w", partition, err)
	}
	return nil
}

// ScrollTier1 pages Tier-1 points matching a filter.
func (g *Gateway) ScrollTier1(ctx context.Context, req ScrollRequest) ([]Point, error) {
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()
	points, err := g.client.Scroll(ctx, g.cfg.Tier1Name, req)
	if err != nil {
		return nil, fmt.Errorf("scroll tier1: %w", err)
	}
	return points, nil
}

// CountTier1 counts Tier-1 points matching a filter.
func (g *Gateway) CountTier1(ctx context.Context, filter Filter) (int, error) {
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()
	n, err := g.client.Count(ctx, g.cfg.Tier1Name, filter)
	if err != nil {
		return 0, fmt.Errorf("count tier1: %w", err)
	}
	return n, nil
}

// FanOut runs fn against each partition in parallel with bounded concurrency
// and a per-partition deadline. Missing partitions are skipped silently;
// other per-partition errors are logged and swallowed so the federated read
// succeeds with whatever partitions responded.
func (g *Gateway) FanOut(ctx context.Context, partitions []string, fn func(ctx context.Context, partition string) error) {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Parallelism)

	for _, partition := range partitions {
		partition := partition
		eg.Go(func() error {
			callCtx, cancel := g.withDeadline(ctx)
			defer cancel()
			if err := fn(callCtx, partition); err != nil {
				if errors.Is(err, ErrCollectionNotFound) {
					return nil
				}
				metrics.FederatedPartitionErrors.Inc()
				log.Warn().Err(err).Str("partition", partition).Msg("Partition read failed, continuing without it")
			}
			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = eg.Wait()
}

// SearchPartition runs a search against one partition with the gateway deadline.
func (g *Gateway) SearchPartition(ctx context.Context, partition string, req SearchRequest) ([]ScoredPoint, error) {
	return g.client.Search(ctx, partition, req)
}

// SearchGroupsPartition runs a grouped search against one partition.
func (g *Gateway) SearchGroupsPartition(ctx context.Context, partition string, req GroupRequest) ([]Group, error) {
	return g.client.SearchGroups(ctx, partition, req)
}

// RecommendPartition runs a recommend query against one partition.
func (g *Gateway) RecommendPartition(ctx context.Context, partition string, req RecommendRequest) ([]ScoredPoint, error) {
	return g.client.Recommend(ctx, partition, req)
}
