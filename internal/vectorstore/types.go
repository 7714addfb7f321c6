// Package vectorstore exposes the external vector database behind a typed
// client interface and a gateway that owns collection naming, lifecycle and
// federation across daily partitions. The wire protocol of the backing
// database is out of scope; the shapes here (named vectors, payload indexes,
// filters) are the contract the rest of the service depends on.
package vectorstore

import "errors"

// ErrCollectionNotFound is returned by reads against a collection that does
// not exist. Federated reads treat it as "skip this partition".
var ErrCollectionNotFound = errors.New("vectorstore: collection not found")

// Distance selects the similarity metric for a dense vector field.
type Distance string

const (
	DistanceDot    Distance = "dot"
	DistanceCosine Distance = "cosine"
)

// QuantizationKind selects vector compression for a collection.
type QuantizationKind string

const (
	QuantizationNone   QuantizationKind = ""
	QuantizationBinary QuantizationKind = "binary"
	QuantizationInt8   QuantizationKind = "int8"
)

// Quantization describes how stored vectors are compressed.
type Quantization struct {
	Kind      QuantizationKind
	AlwaysRAM bool
	Quantile  float64
}

// VectorParams describes one named dense vector field.
type VectorParams struct {
	Size     int
	Distance Distance
	OnDisk   bool
}

// SparseParams describes one named sparse vector field.
type SparseParams struct {
	// Modifier is a server-side score adjustment, e.g. "idf" for BM25-style
	// inverse document frequency weighting.
	Modifier string
}

// IndexKind is the type of a payload index.
type IndexKind string

const (
	IndexInteger IndexKind = "integer"
	IndexKeyword IndexKind = "keyword"
	IndexText    IndexKind = "text"
)

// PayloadIndex declares an index over a payload field.
type PayloadIndex struct {
	Field string
	Kind  IndexKind
}

// CollectionSpec is everything needed to create a collection. The empty
// string key in Vectors denotes the default (unnamed) vector field.
type CollectionSpec struct {
	Name              string
	Vectors           map[string]VectorParams
	SparseVectors     map[string]SparseParams
	Quantization      Quantization
	ReplicationFactor int
	ShardNumber       int
	PayloadIndexes    []PayloadIndex
}

// SparseVector is an index/value pairing; indices are term hashes.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// Point is one stored record: named dense vectors, named sparse vectors and
// an arbitrary JSON-like payload.
type Point struct {
	ID      string
	Vectors map[string][]float32
	Sparse  map[string]SparseVector
	Payload map[string]any
}

// RangeCondition constrains an integer payload field. Nil bounds are open.
type RangeCondition struct {
	Field string
	GTE   *int64
	LTE   *int64
	GT    *int64
	LT    *int64
}

// TextCondition requires a tokenized, case-insensitive full-text match.
type TextCondition struct {
	Field string
	Query string
}

// MatchCondition requires exact keyword equality.
type MatchCondition struct {
	Field string
	Value string
}

// Filter is a conjunction of conditions over point payloads.
type Filter struct {
	Ranges  []RangeCondition
	Texts   []TextCondition
	Matches []MatchCondition
}

// Empty reports whether the filter constrains nothing.
func (f Filter) Empty() bool {
	return len(f.Ranges) == 0 && len(f.Texts) == 0 && len(f.Matches) == 0
}

// ScrollRequest pages through points matching a filter.
type ScrollRequest struct {
	Filter      Filter
	Limit       int
	OrderBy     string // payload field; empty means storage order
	Descending  bool
	WithVectors bool
}

// SearchRequest is a dense or sparse similarity query. Exactly one of
// Vector or Sparse should be set; VectorName selects the named field.
type SearchRequest struct {
	VectorName string
	Vector     []float32
	Sparse     *SparseVector
	Filter     Filter
	Limit      int
}

// GroupRequest is a search whose hits are grouped by a payload key.
type GroupRequest struct {
	VectorName string
	Vector     []float32
	Filter     Filter
	GroupBy    string
	GroupSize  int
	Limit      int
}

// RecommendRequest searches by positive/negative anchor point IDs.
type RecommendRequest struct {
	VectorName string
	Positive   []string
	Negative   []string
	Filter     Filter
	Limit      int
}

// ScoredPoint is one search hit.
type ScoredPoint struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Group is one search-groups result bucket.
type Group struct {
	ID   string
	Hits []ScoredPoint
}

// IntFromPayload reads an integer payload value regardless of whether it was
// stored as int, int64 or a JSON-decoded float64.
func IntFromPayload(payload map[string]any, field string) (int64, bool) {
	switch v := payload[field].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// StringFromPayload reads a string payload value.
func StringFromPayload(payload map[string]any, field string) (string, bool) {
	s, ok := payload[field].(string)
	return s, ok
}
