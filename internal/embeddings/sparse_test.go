package embeddings

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparseEncodeEmpty(t *testing.T) {
	enc := NewSparseEncoder()
	for _, input := range []string{"", "   ", "\n\t", "! ? ."} {
		v := enc.Encode(input)
		assert.True(t, v.IsEmpty(), "input %q should encode empty", input)
	}
}

func TestSparseEncodeDeterministic(t *testing.T) {
	enc := NewSparseEncoder()
	a := enc.Encode("hamsters store food in their cheek pouches")
	b := enc.Encode("hamsters store food in their cheek pouches")
	assert.Equal(t, a, b)
}

func TestSparseEncodeShape(t *testing.T) {
	enc := NewSparseEncoder()
	v := enc.Encode("golden hamsters hoard sunflower seeds, and hamsters dig burrows")

	require.False(t, v.IsEmpty())
	require.Len(t, v.Values, len(v.Indices))

	assert.True(t, sort.SliceIsSorted(v.Indices, func(i, j int) bool {
		return v.Indices[i] < v.Indices[j]
	}), "indices must be ascending")

	seen := make(map[uint32]struct{}, len(v.Indices))
	for _, idx := range v.Indices {
		_, dup := seen[idx]
		assert.False(t, dup, "duplicate index %d", idx)
		seen[idx] = struct{}{}
	}
	for i, val := range v.Values {
		assert.Positive(t, val, "value %d must be positive", i)
	}
}

func TestSparseEncodeTermFrequencySaturates(t *testing.T) {
	enc := NewSparseEncoder()
	once := enc.Encode("hamster")
	thrice := enc.Encode("hamster hamster hamster")

	require.Len(t, once.Indices, 1)
	require.Len(t, thrice.Indices, 1)
	assert.Equal(t, once.Indices[0], thrice.Indices[0])

	// Repetition increases the weight sublinearly.
	assert.Greater(t, thrice.Values[0], once.Values[0])
	assert.Less(t, thrice.Values[0], once.Values[0]*3)
}

func TestSparseEncodeCaseAndPunctuationFolded(t *testing.T) {
	enc := NewSparseEncoder()
	a := enc.Encode("Hamster Wheel!")
	b := enc.Encode("hamster wheel")
	assert.Equal(t, a, b)
}

func TestSparseOverlapScoring(t *testing.T) {
	enc := NewSparseEncoder()
	query := enc.Encode("hamster diet")
	onTopic := enc.Encode("the hamster diet consists of seeds and grain")
	offTopic := enc.Encode("container orchestration with replica sets")

	assert.Greater(t, dotSparse(query, onTopic), float32(0))
	assert.Equal(t, float32(0), dotSparse(query, offTopic))
}

// dotSparse computes the sparse dot product the index performs server-side.
func dotSparse(a, b SparseVector) float32 {
	weights := make(map[uint32]float32, len(a.Indices))
	for i, idx := range a.Indices {
		weights[idx] = a.Values[i]
	}
	var sum float32
	for i, idx := range b.Indices {
		if w, ok := weights[idx]; ok {
			sum += w * b.Values[i]
		}
	}
	return sum
}
