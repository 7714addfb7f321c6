package analysis

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/viaobs/via/internal/control"
	"github.com/viaobs/via/internal/embed"
	"github.com/viaobs/via/internal/vectorstore"
)

const (
	clusterGroupLimit = 100
	triageLimit       = 50
	hybridLimit       = 50
	rrfConstant       = 60

	// Query text used for hybrid retrieval when no filter is given.
	defaultHybridQuery = "error log anomaly"
)

// ClusterHit is the best-scoring point of one incident cluster.
type ClusterHit struct {
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload"`
}

// Cluster is one de-duplicated incident in the cluster listing.
type Cluster struct {
	ClusterID     string     `json:"cluster_id"`
	IncidentCount int64      `json:"incident_count"`
	TopHit        ClusterHit `json:"top_hit"`

	score float64
}

// Forensic is the federated query layer over the daily Tier-2 partitions.
// Per-partition failures are swallowed so a day with a sick shard degrades
// the answer instead of failing it.
type Forensic struct {
	gateway  *vectorstore.Gateway
	registry *control.Registry
	dense    embed.Dense
	sparse   embed.Sparse
}

// NewForensic wires the query layer.
func NewForensic(gateway *vectorstore.Gateway, registry *control.Registry, dense embed.Dense, sparse embed.Sparse) *Forensic {
	return &Forensic{gateway: gateway, registry: registry, dense: dense, sparse: sparse}
}

// FindClusters groups Tier-2 events by fingerprint across the daily
// partitions in range (all partitions when no range is given). Silenced
// fingerprints are dropped; clusters come back ordered by top-hit score
// descending.
func (f *Forensic) FindClusters(ctx context.Context, startTS, endTS *int64, textFilter string) ([]Cluster, error) {
	filter := vectorstore.Filter{}
	if startTS != nil && endTS != nil {
		filter.Ranges = append(filter.Ranges, vectorstore.RangeCondition{
			Field: "start_ts", GTE: startTS, LTE: endTS,
		})
	}
	if textFilter != "" {
		filter.Texts = append(filter.Texts, vectorstore.TextCondition{Field: "body", Query: textFilter})
	}

	queryVec := make([]float32, f.gateway.DenseDim())
	if textFilter != "" {
		vecs, err := f.dense.Embed(ctx, []string{textFilter})
		if err != nil {
			return nil, fmt.Errorf("embed cluster query: %w", err)
		}
		queryVec = vecs[0]
	}

	partitions, err := f.partitions(ctx, startTS, endTS)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var groups []vectorstore.Group
	f.gateway.FanOut(ctx, partitions, func(ctx context.Context, partition string) error {
		got, err := f.gateway.SearchGroupsPartition(ctx, partition, vectorstore.GroupRequest{
			VectorName: vectorstore.DenseVectorName,
			Vector:     queryVec,
			Filter:     filter,
			GroupBy:    "rhythm_hash",
			GroupSize:  1,
			Limit:      clusterGroupLimit,
		})
		if err != nil {
			return err
		}
		mu.Lock()
		groups = append(groups, got...)
		mu.Unlock()
		return nil
	})

	clusters := make([]Cluster, 0, len(groups))
	for _, g := range groups {
		if len(g.Hits) == 0 || f.registry.IsSilenced(g.ID) {
			continue
		}
		top := g.Hits[0]
		count, ok := vectorstore.IntFromPayload(top.Payload, "count")
		if !ok {
			count = 1
		}
		clusters = append(clusters, Cluster{
			ClusterID:     g.ID,
			IncidentCount: count,
			TopHit:        ClusterHit{ID: top.ID, Payload: top.Payload},
			score:         top.Score,
		})
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].score != clusters[j].score {
			return clusters[i].score > clusters[j].score
		}
		return clusters[i].ClusterID < clusters[j].ClusterID
	})
	return clusters, nil
}

// Triage recommends Tier-2 events similar to the positive anchors and
// dissimilar from the negative ones, merged across the partitions in range
// and ordered by score descending.
func (f *Forensic) Triage(ctx context.Context, positiveIDs, negativeIDs []string, startTS, endTS int64) ([]vectorstore.ScoredPoint, error) {
	if len(positiveIDs) == 0 {
		return []vectorstore.ScoredPoint{}, nil
	}

	partitions := f.gateway.PartitionsForRange(startTS, endTS)

	var mu sync.Mutex
	var hits []vectorstore.ScoredPoint
	f.gateway.FanOut(ctx, partitions, func(ctx context.Context, partition string) error {
		got, err := f.gateway.RecommendPartition(ctx, partition, vectorstore.RecommendRequest{
			VectorName: vectorstore.DenseVectorName,
			Positive:   positiveIDs,
			Negative:   negativeIDs,
			Limit:      triageLimit,
		})
		if err != nil {
			return err
		}
		mu.Lock()
		hits = append(hits, got...)
		mu.Unlock()
		return nil
	})

	sortScored(hits)
	if len(hits) > triageLimit {
		hits = hits[:triageLimit]
	}
	return hits, nil
}

// HybridSearch runs a dense and a sparse search per partition over the same
// filter and fuses them with reciprocal rank (k = 60), ranks summed across
// partitions and both modalities.
func (f *Forensic) HybridSearch(ctx context.Context, startTS, endTS int64, textFilter string) ([]vectorstore.ScoredPoint, error) {
	queryText := textFilter
	if queryText == "" {
		queryText = defaultHybridQuery
	}

	denseVecs, err := f.dense.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embed hybrid query: %w", err)
	}
	sparseVecs, err := f.sparse.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("sparse-embed hybrid query: %w", err)
	}

	filter := vectorstore.Filter{Ranges: []vectorstore.RangeCondition{
		{Field: "start_ts", GTE: &startTS, LTE: &endTS},
	}}
	if textFilter != "" {
		filter.Texts = append(filter.Texts, vectorstore.TextCondition{Field: "body", Query: textFilter})
	}

	partitions := f.gateway.PartitionsForRange(startTS, endTS)

	// Per-partition results keep their slot so fusion ranks do not depend
	// on goroutine completion order.
	denseByPartition := make([][]vectorstore.ScoredPoint, len(partitions))
	sparseByPartition := make([][]vectorstore.ScoredPoint, len(partitions))
	slot := make(map[string]int, len(partitions))
	for i, p := range partitions {
		slot[p] = i
	}

	f.gateway.FanOut(ctx, partitions, func(ctx context.Context, partition string) error {
		dense, err := f.gateway.SearchPartition(ctx, partition, vectorstore.SearchRequest{
			VectorName: vectorstore.DenseVectorName,
			Vector:     denseVecs[0],
			Filter:     filter,
			Limit:      hybridLimit,
		})
		if err != nil {
			return err
		}
		sparse, err := f.gateway.SearchPartition(ctx, partition, vectorstore.SearchRequest{
			VectorName: vectorstore.SparseVectorName,
			Sparse:     &sparseVecs[0],
			Filter:     filter,
			Limit:      hybridLimit,
		})
		if err != nil {
			return err
		}
		i := slot[partition]
		denseByPartition[i] = dense
		sparseByPartition[i] = sparse
		return nil
	})

	var allDense, allSparse []vectorstore.ScoredPoint
	for i := range partitions {
		allDense = append(allDense, denseByPartition[i]...)
		allSparse = append(allSparse, sparseByPartition[i]...)
	}

	scores := make(map[string]float64)
	byID := make(map[string]vectorstore.ScoredPoint)
	for rank, hit := range allDense {
		scores[hit.ID] += 1.0 / float64(rrfConstant+rank+1)
		byID[hit.ID] = hit
	}
	for rank, hit := range allSparse {
		scores[hit.ID] += 1.0 / float64(rrfConstant+rank+1)
		if _, ok := byID[hit.ID]; !ok {
			byID[hit.ID] = hit
		}
	}

	fused := make([]vectorstore.ScoredPoint, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, vectorstore.ScoredPoint{ID: id, Score: score, Payload: byID[id].Payload})
	}
	sortScored(fused)
	if len(fused) > hybridLimit {
		fused = fused[:hybridLimit]
	}
	return fused, nil
}

func (f *Forensic) partitions(ctx context.Context, startTS, endTS *int64) ([]string, error) {
	if startTS != nil && endTS != nil {
		return f.gateway.PartitionsForRange(*startTS, *endTS), nil
	}
	return f.gateway.ListTier2Partitions(ctx)
}

func sortScored(hits []vectorstore.ScoredPoint) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
