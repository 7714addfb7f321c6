package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingDenseDeterministic(t *testing.T) {
	ctx := context.Background()
	h := NewHashingDense(64)
	require.Equal(t, 64, h.Dim())

	a, err := h.Embed(ctx, []string{"disk failure on node alpha"})
	require.NoError(t, err)
	b, err := h.Embed(ctx, []string{"disk failure on node alpha"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := h.Embed(ctx, []string{"network timeout"})
	require.NoError(t, err)
	assert.NotEqual(t, a[0], c[0])
}

func TestHashingDenseNormalized(t *testing.T) {
	h := NewHashingDense(128)
	vecs, err := h.Embed(context.Background(), []string{"payment declined for account"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Len(t, vecs[0], 128)

	var sum float64
	for _, v := range vecs[0] {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestHashingDenseEmptyText(t *testing.T) {
	h := NewHashingDense(32)
	vecs, err := h.Embed(context.Background(), []string{""})
	require.NoError(t, err)
	require.Len(t, vecs[0], 32)
	for _, v := range vecs[0] {
		assert.Zero(t, v)
	}
}

func TestHashingDenseDefaultDim(t *testing.T) {
	assert.Equal(t, 384, NewHashingDense(0).Dim())
	assert.Equal(t, 384, NewHashingDense(-5).Dim())
}

func TestBM25SparseEncoding(t *testing.T) {
	ctx := context.Background()
	s := NewBM25Sparse()

	vecs, err := s.Embed(ctx, []string{"error error error timeout"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	sv := vecs[0]

	// Two distinct terms, indices sorted ascending.
	require.Len(t, sv.Indices, 2)
	require.Len(t, sv.Values, 2)
	assert.Less(t, sv.Indices[0], sv.Indices[1])

	// Term frequency saturates: tf=3 scores higher than tf=1 but well
	// below three times as much.
	var high, low float32
	for _, v := range sv.Values {
		if v > high {
			high = v
		}
	}
	low = sv.Values[0]
	if sv.Values[1] < low {
		low = sv.Values[1]
	}
	assert.Greater(t, high, low)
	assert.Less(t, float64(high), float64(low)*3)

	// tf saturation formula: f*(k1+1)/(f+k1) with k1=1.2.
	assert.InDelta(t, 1*(bm25K1+1)/(1+bm25K1), float64(low), 1e-6)
	assert.InDelta(t, 3*(bm25K1+1)/(3+bm25K1), float64(high), 1e-6)
}

func TestBM25SparseDeterministic(t *testing.T) {
	ctx := context.Background()
	s := NewBM25Sparse()
	a, err := s.Embed(ctx, []string{"kernel panic on cpu 3"})
	require.NoError(t, err)
	b, err := s.Embed(ctx, []string{"kernel panic on cpu 3"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBM25SparseEmptyText(t *testing.T) {
	s := NewBM25Sparse()
	vecs, err := s.Embed(context.Background(), []string{"", "a"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Empty(t, vecs[0].Indices)
	assert.Len(t, vecs[1].Indices, 1)
	assert.False(t, math.IsNaN(float64(vecs[1].Values[0])))
}
