package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/viaobs/via/internal/embed"
	"github.com/viaobs/via/internal/metrics"
	"github.com/viaobs/via/internal/models"
	"github.com/viaobs/via/internal/vectorstore"
)

const maxSampleLogs = 5

// Promoter turns analyzer emissions into Tier-2 event clusters. One cluster
// is written per (invocation, rhythm_hash) into the daily partition of the
// cluster's start_ts.
type Promoter struct {
	gateway *vectorstore.Gateway
	dense   embed.Dense
	sparse  embed.Sparse
}

// NewPromoter wires the promoter to its gateway and embedding models.
func NewPromoter(gateway *vectorstore.Gateway, dense embed.Dense, sparse embed.Sparse) *Promoter {
	return &Promoter{gateway: gateway, dense: dense, sparse: sparse}
}

// Promote writes one event cluster per anomaly and returns how many were
// upserted. An anomaly with no member occurrences cannot be placed in a
// daily partition; that is a bug in the caller and fails loudly.
func (p *Promoter) Promote(ctx context.Context, anomalies []models.Anomaly) (int, error) {
	if len(anomalies) == 0 {
		return 0, nil
	}

	// Bucket clusters by daily partition so each partition gets one ensure
	// and one upsert.
	buckets := make(map[string][]models.EventCluster)
	var partitionOrder []string
	for _, anomaly := range anomalies {
		if len(anomaly.Members) == 0 {
			return 0, fmt.Errorf("anomaly %s has no member logs; cannot determine daily partition", anomaly.RhythmHash)
		}
		cluster := buildCluster(anomaly)
		partition := p.gateway.DailyPartition(cluster.StartTS)
		if _, seen := buckets[partition]; !seen {
			partitionOrder = append(partitionOrder, partition)
		}
		buckets[partition] = append(buckets[partition], cluster)
	}

	promoted := 0
	for _, partition := range partitionOrder {
		clusters := buckets[partition]
		if err := p.gateway.EnsureTier2Partition(ctx, partition); err != nil {
			return promoted, err
		}

		texts := make([]string, len(clusters))
		for i, c := range clusters {
			texts[i] = c.Body
		}

		// Dense and sparse embedding run in parallel; both are CPU-bound.
		var denseVecs [][]float32
		var sparseVecs []vectorstore.SparseVector
		eg, egCtx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			var err error
			denseVecs, err = p.dense.Embed(egCtx, texts)
			return err
		})
		eg.Go(func() error {
			var err error
			sparseVecs, err = p.sparse.Embed(egCtx, texts)
			return err
		})
		if err := eg.Wait(); err != nil {
			return promoted, fmt.Errorf("embed cluster texts for %s: %w", partition, err)
		}

		points := make([]vectorstore.Point, len(clusters))
		for i, c := range clusters {
			points[i] = vectorstore.Point{
				ID: uuid.NewString(),
				Vectors: map[string][]float32{
					vectorstore.DenseVectorName: denseVecs[i],
				},
				Sparse: map[string]vectorstore.SparseVector{
					vectorstore.SparseVectorName: sparseVecs[i],
				},
				Payload: clusterPayload(c),
			}
		}
		if err := p.gateway.UpsertTier2(ctx, partition, points); err != nil {
			return promoted, err
		}
		promoted += len(points)
		metrics.PromotedClusters.Add(float64(len(points)))
		log.Debug().Str("partition", partition).Int("clusters", len(points)).Msg("Promoted event clusters")
	}
	return promoted, nil
}

// buildCluster summarizes one anomaly group. The earliest occurrence
// supplies the representative text; up to five raw logs ride along.
func buildCluster(anomaly models.Anomaly) models.EventCluster {
	group := make([]models.Tier1Payload, len(anomaly.Members))
	copy(group, anomaly.Members)
	sort.SliceStable(group, func(i, j int) bool { return group[i].TS < group[j].TS })

	samples := make([]json.RawMessage, 0, maxSampleLogs)
	for _, m := range group {
		if len(samples) == maxSampleLogs {
			break
		}
		if m.FullLog != nil {
			samples = append(samples, m.FullLog)
		}
	}

	first := group[0]
	return models.EventCluster{
		EntityType:     models.EntityTypeEventCluster,
		RhythmHash:     anomaly.RhythmHash,
		StartTS:        first.TS,
		EndTS:          group[len(group)-1].TS,
		Count:          len(group),
		Service:        first.Service,
		Severity:       first.Severity,
		AnomalyType:    anomaly.Type,
		AnomalyContext: anomaly.Context,
		Body:           first.Body,
		SampleLogs:     samples,
	}
}

func clusterPayload(c models.EventCluster) map[string]any {
	return map[string]any{
		"entity_type":     c.EntityType,
		"rhythm_hash":     c.RhythmHash,
		"start_ts":        c.StartTS,
		"end_ts":          c.EndTS,
		"count":           c.Count,
		"service":         c.Service,
		"severity":        c.Severity,
		"anomaly_type":    string(c.AnomalyType),
		"anomaly_context": c.AnomalyContext,
		"body":            c.Body,
		"sample_logs":     c.SampleLogs,
	}
}
