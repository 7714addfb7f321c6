package embed

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/viaobs/via/internal/vectorstore"
)

// HashingDense is a deterministic feature-hashing projection: each token is
// hashed onto one dimension with a sign bit, and the result is L2-normalized.
// It needs no model download and gives equal texts equal vectors, which is
// what the test suite and the demo mode rely on.
type HashingDense struct {
	dim int
}

// NewHashingDense returns a hashing embedder of the given dimensionality.
func NewHashingDense(dim int) *HashingDense {
	if dim <= 0 {
		dim = 384
	}
	return &HashingDense{dim: dim}
}

// Dim implements Dense.
func (h *HashingDense) Dim() int { return h.dim }

// Embed implements Dense.
func (h *HashingDense) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, h.dim)
		for _, tok := range tokens(text) {
			hf := fnv.New64a()
			hf.Write([]byte(tok))
			sum := hf.Sum64()
			idx := int(sum % uint64(h.dim))
			if sum&(1<<63) != 0 {
				vec[idx]--
			} else {
				vec[idx]++
			}
		}
		normalize(vec)
		out[i] = vec
	}
	return out, nil
}

// BM25Sparse encodes text as hashed term indices with saturated term
// frequency values (k1 = 1.2). The store's IDF modifier supplies the
// document-frequency half of the BM25 score.
type BM25Sparse struct{}

// NewBM25Sparse returns the sparse encoder.
func NewBM25Sparse() *BM25Sparse { return &BM25Sparse{} }

const bm25K1 = 1.2

// Embed implements Sparse.
func (b *BM25Sparse) Embed(_ context.Context, texts []string) ([]vectorstore.SparseVector, error) {
	out := make([]vectorstore.SparseVector, len(texts))
	for i, text := range texts {
		tf := make(map[uint32]float32)
		for _, tok := range tokens(text) {
			hf := fnv.New32a()
			hf.Write([]byte(tok))
			tf[hf.Sum32()]++
		}

		indices := make([]uint32, 0, len(tf))
		for idx := range tf {
			indices = append(indices, idx)
		}
		sort.Slice(indices, func(a, c int) bool { return indices[a] < indices[c] })

		values := make([]float32, len(indices))
		for j, idx := range indices {
			f := tf[idx]
			values[j] = f * (bm25K1 + 1) / (f + bm25K1)
		}
		out[i] = vectorstore.SparseVector{Indices: indices, Values: values}
	}
	return out, nil
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
