package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Memory is an in-process Client used by tests and by the dependency-free
// demo mode. It implements the same scoring semantics the service relies on:
// dot and cosine distances, IDF-modified sparse scoring, group-by search and
// anchor-based recommendation. State is lost on restart.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	spec   CollectionSpec
	points map[string]Point
	order  []string // insertion order, for stable scroll without OrderBy
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) get(name string) (*memCollection, error) {
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

// CollectionExists implements Client.
func (m *Memory) CollectionExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

// CreateCollection implements Client. Creating an existing collection fails.
func (m *Memory) CreateCollection(_ context.Context, spec CollectionSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[spec.Name]; ok {
		return fmt.Errorf("vectorstore: collection %s already exists", spec.Name)
	}
	m.collections[spec.Name] = &memCollection{spec: spec, points: make(map[string]Point)}
	return nil
}

// RecreateCollection implements Client.
func (m *Memory) RecreateCollection(_ context.Context, spec CollectionSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[spec.Name] = &memCollection{spec: spec, points: make(map[string]Point)}
	return nil
}

// DeleteCollection implements Client. Deleting a missing collection is a no-op.
func (m *Memory) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

// ListCollections implements Client.
func (m *Memory) ListCollections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Upsert implements Client. The wait flag is accepted for interface parity;
// in-memory writes are always immediate.
func (m *Memory) Upsert(_ context.Context, collection string, points []Point, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.get(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if _, seen := c.points[p.ID]; !seen {
			c.order = append(c.order, p.ID)
		}
		c.points[p.ID] = p
	}
	return nil
}

// Scroll implements Client.
func (m *Memory) Scroll(_ context.Context, collection string, req ScrollRequest) ([]Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.get(collection)
	if err != nil {
		return nil, err
	}

	var out []Point
	for _, id := range c.order {
		p := c.points[id]
		if matchFilter(p.Payload, req.Filter) {
			if !req.WithVectors {
				p.Vectors = nil
				p.Sparse = nil
			}
			out = append(out, p)
		}
	}
	if req.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := IntFromPayload(out[i].Payload, req.OrderBy)
			b, _ := IntFromPayload(out[j].Payload, req.OrderBy)
			if req.Descending {
				return a > b
			}
			return a < b
		})
	}
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Count implements Client.
func (m *Memory) Count(_ context.Context, collection string, filter Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.get(collection)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range c.points {
		if matchFilter(p.Payload, filter) {
			n++
		}
	}
	return n, nil
}

// Search implements Client.
func (m *Memory) Search(_ context.Context, collection string, req SearchRequest) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.get(collection)
	if err != nil {
		return nil, err
	}
	hits := c.search(req)
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

// SearchGroups implements Client. Hits are bucketed by the GroupBy payload
// key; each group keeps its best GroupSize hits and groups are ordered by
// top-hit score descending.
func (m *Memory) SearchGroups(_ context.Context, collection string, req GroupRequest) ([]Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.get(collection)
	if err != nil {
		return nil, err
	}

	hits := c.search(SearchRequest{
		VectorName: req.VectorName,
		Vector:     req.Vector,
		Filter:     req.Filter,
	})

	byKey := make(map[string]*Group)
	var keys []string
	for _, h := range hits {
		key, ok := StringFromPayload(h.Payload, req.GroupBy)
		if !ok {
			continue
		}
		g, seen := byKey[key]
		if !seen {
			g = &Group{ID: key}
			byKey[key] = g
			keys = append(keys, key)
		}
		if len(g.Hits) < req.GroupSize {
			g.Hits = append(g.Hits, h)
		}
	}

	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, *byKey[k])
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Hits[0].Score > groups[j].Hits[0].Score
	})
	if req.Limit > 0 && len(groups) > req.Limit {
		groups = groups[:req.Limit]
	}
	return groups, nil
}

// Recommend implements Client. The query vector is the mean of the positive
// anchors minus the mean of the negative anchors. Anchor points are not
// excluded from the results, so a positive anchor scores as a self-match.
func (m *Memory) Recommend(_ context.Context, collection string, req RecommendRequest) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.get(collection)
	if err != nil {
		return nil, err
	}

	pos, err := c.meanVector(req.VectorName, req.Positive)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, nil
	}
	neg, err := c.meanVector(req.VectorName, req.Negative)
	if err != nil {
		return nil, err
	}
	query := pos
	if neg != nil {
		query = make([]float32, len(pos))
		for i := range pos {
			query[i] = pos[i] - neg[i]
		}
	}

	hits := c.search(SearchRequest{
		VectorName: req.VectorName,
		Vector:     query,
		Filter:     req.Filter,
	})
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

func (c *memCollection) meanVector(name string, ids []string) ([]float32, error) {
	var sum []float32
	n := 0
	for _, id := range ids {
		p, ok := c.points[id]
		if !ok {
			return nil, fmt.Errorf("vectorstore: anchor point %s not found in %s", id, c.spec.Name)
		}
		vec, ok := p.Vectors[name]
		if !ok {
			continue
		}
		if sum == nil {
			sum = make([]float32, len(vec))
		}
		for i, v := range vec {
			sum[i] += v
		}
		n++
	}
	if n == 0 {
		return nil, nil
	}
	for i := range sum {
		sum[i] /= float32(n)
	}
	return sum, nil
}

func (c *memCollection) search(req SearchRequest) []ScoredPoint {
	var hits []ScoredPoint
	for _, id := range c.order {
		p := c.points[id]
		if !matchFilter(p.Payload, req.Filter) {
			continue
		}
		var score float64
		switch {
		case req.Sparse != nil:
			score = c.sparseScore(req.VectorName, *req.Sparse, p)
		default:
			vec, ok := p.Vectors[req.VectorName]
			if !ok || len(vec) != len(req.Vector) {
				continue
			}
			score = denseScore(c.spec.Vectors[req.VectorName].Distance, req.Vector, vec)
		}
		hits = append(hits, ScoredPoint{ID: p.ID, Score: score, Payload: p.Payload})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}

func (c *memCollection) sparseScore(name string, query SparseVector, p Point) float64 {
	stored, ok := p.Sparse[name]
	if !ok {
		return 0
	}
	storedVals := make(map[uint32]float32, len(stored.Indices))
	for i, idx := range stored.Indices {
		storedVals[idx] = stored.Values[i]
	}

	useIDF := c.spec.SparseVectors[name].Modifier == "idf"
	total := len(c.points)
	var score float64
	for i, idx := range query.Indices {
		sv, ok := storedVals[idx]
		if !ok {
			continue
		}
		term := float64(query.Values[i]) * float64(sv)
		if useIDF {
			df := c.documentFrequency(name, idx)
			term *= math.Log(1 + (float64(total)-float64(df)+0.5)/(float64(df)+0.5))
		}
		score += term
	}
	return score
}

func (c *memCollection) documentFrequency(name string, idx uint32) int {
	df := 0
	for _, p := range c.points {
		sv, ok := p.Sparse[name]
		if !ok {
			continue
		}
		for _, i := range sv.Indices {
			if i == idx {
				df++
				break
			}
		}
	}
	return df
}

func denseScore(dist Distance, a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if dist == DistanceCosine {
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
	return dot
}

func matchFilter(payload map[string]any, f Filter) bool {
	for _, r := range f.Ranges {
		v, ok := IntFromPayload(payload, r.Field)
		if !ok {
			return false
		}
		if r.GTE != nil && v < *r.GTE {
			return false
		}
		if r.LTE != nil && v > *r.LTE {
			return false
		}
		if r.GT != nil && v <= *r.GT {
			return false
		}
		if r.LT != nil && v >= *r.LT {
			return false
		}
	}
	for _, t := range f.Texts {
		s, ok := StringFromPayload(payload, t.Field)
		if !ok || !textMatch(s, t.Query) {
			return false
		}
	}
	for _, m := range f.Matches {
		s, ok := StringFromPayload(payload, m.Field)
		if !ok || s != m.Value {
			return false
		}
	}
	return true
}

// textMatch requires every query token to appear as a token of the field,
// case-insensitively.
func textMatch(field, query string) bool {
	fieldTokens := make(map[string]struct{})
	for _, tok := range splitTokens(field) {
		fieldTokens[tok] = struct{}{}
	}
	for _, tok := range splitTokens(query) {
		if _, ok := fieldTokens[tok]; !ok {
			return false
		}
	}
	return true
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
