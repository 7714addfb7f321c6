package fingerprint

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// VectorDim is the dimensionality of the Tier-1 template projection.
const VectorDim = 64

// Vector projects a template onto a 64-dim SimHash-style binary vector with
// components in {-1, +1}, suitable for dot-product similarity. Tokens vote
// per dimension according to the bits of their FNV-1a hash; ties resolve to
// +1 so the empty template maps to the all-ones vector, not the zero vector.
func Vector(template string) []float32 {
	var votes [VectorDim]int
	for _, tok := range tokenize(template) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		bits := h.Sum64()
		for i := 0; i < VectorDim; i++ {
			if bits&(1<<uint(i)) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}

	vec := make([]float32, VectorDim)
	for i, v := range votes {
		if v < 0 {
			vec[i] = -1
		} else {
			vec[i] = 1
		}
	}
	return vec
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '*'
	})
}
