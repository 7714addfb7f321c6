// Package embed defines the text embedding contracts used by the promotion
// and forensic paths, plus deterministic in-process implementations. The
// production embedding models are external pure functions from text to
// vectors; these interfaces are the seam they plug into.
package embed

import (
	"context"

	"github.com/viaobs/via/internal/vectorstore"
)

// Dense produces fixed-width dense vectors.
type Dense interface {
	// Dim is the output dimensionality; stable for the life of the model.
	Dim() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Sparse produces sparse term vectors for BM25-style retrieval. IDF
// weighting is applied by the vector store, not the encoder.
type Sparse interface {
	Embed(ctx context.Context, texts []string) ([]vectorstore.SparseVector, error)
}
