package embeddings

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"
)

// SparseVector is a lexical vector in the index's sparse format: parallel
// slices of term indices and weights, indices strictly ascending.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// IsEmpty reports whether the vector carries no terms.
func (v SparseVector) IsEmpty() bool { return len(v.Indices) == 0 }

// SparseEncoder produces BM25-style lexical vectors over a hashed
// vocabulary. Both documents and queries go through the same encoding, so
// matching reduces to a sparse dot product in the index. Deterministic and
// safe for concurrent use.
type SparseEncoder struct {
	k1 float64
	b  float64
	// avgDocLen normalizes document length the way BM25 does; a fixed
	// reference length keeps encoding stateless across documents.
	avgDocLen float64
}

// NewSparseEncoder creates an encoder with standard BM25 constants.
func NewSparseEncoder() *SparseEncoder {
	return &SparseEncoder{k1: 1.2, b: 0.75, avgDocLen: 256}
}

// Encode converts text into a sparse vector. Whitespace-only text yields
// an empty vector.
func (e *SparseEncoder) Encode(text string) SparseVector {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return SparseVector{}
	}

	counts := make(map[uint32]int, len(tokens))
	for _, tok := range tokens {
		counts[hashToken(tok)]++
	}

	indices := make([]uint32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	docLen := float64(len(tokens))
	norm := e.k1 * (1 - e.b + e.b*docLen/e.avgDocLen)
	values := make([]float32, len(indices))
	for i, idx := range indices {
		tf := float64(counts[idx])
		values[i] = float32(tf * (e.k1 + 1) / (tf + norm))
	}
	return SparseVector{Indices: indices, Values: values}
}

// tokenize lowercases and splits on any non-letter, non-digit rune,
// dropping single-rune fragments.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func hashToken(tok string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(tok))
	return h.Sum32()
}
