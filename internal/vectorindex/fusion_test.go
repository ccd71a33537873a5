package vectorindex

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hitWithID(id uuid.UUID, score float32) Hit {
	return Hit{ChunkID: id, Score: score}
}

func TestFuseRRFEmpty(t *testing.T) {
	assert.Empty(t, FuseRRF(60, 10))
	assert.Empty(t, FuseRRF(60, 10, nil, nil))
}

func TestFuseRRFSingleBranchPreservesOrder(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	branch := []Hit{hitWithID(a, 0.9), hitWithID(b, 0.5), hitWithID(c, 0.1)}

	out := FuseRRF(60, 10, branch)
	require.Len(t, out, 3)
	assert.Equal(t, a, out[0].ChunkID)
	assert.Equal(t, b, out[1].ChunkID)
	assert.Equal(t, c, out[2].ChunkID)

	// Fused scores follow 1/(k+rank).
	assert.InDelta(t, 1.0/61, float64(out[0].Score), 1e-6)
	assert.InDelta(t, 1.0/62, float64(out[1].Score), 1e-6)
	assert.InDelta(t, 1.0/63, float64(out[2].Score), 1e-6)
}

func TestFuseRRFBothBranchesOutrankSingle(t *testing.T) {
	shared, denseOnly, sparseOnly := uuid.New(), uuid.New(), uuid.New()

	dense := []Hit{hitWithID(denseOnly, 0.99), hitWithID(shared, 0.5)}
	sparse := []Hit{hitWithID(sparseOnly, 12.0), hitWithID(shared, 3.0)}

	out := FuseRRF(60, 10, dense, sparse)
	require.Len(t, out, 3)

	// The chunk ranked second in both branches beats chunks ranked first
	// in only one: 1/62 + 1/62 > 1/61.
	assert.Equal(t, shared, out[0].ChunkID)
}

func TestFuseRRFDeterministicTieBreak(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	// Each chunk appears at the same rank in exactly one branch, so every
	// fused score is 1/(k+i) and chunks at matching ranks tie exactly.
	var branches [][]Hit
	for _, id := range ids {
		branches = append(branches, []Hit{hitWithID(id, 1)})
	}

	first := FuseRRF(60, 10, branches...)
	require.Len(t, first, len(ids))
	for i := 0; i < 10; i++ {
		again := FuseRRF(60, 10, branches...)
		assert.Equal(t, first, again, "fusion must be deterministic")
	}
	for i := 1; i < len(first); i++ {
		assert.Equal(t, first[i-1].Score, first[i].Score)
		assert.Less(t, first[i-1].ChunkID.String(), first[i].ChunkID.String(),
			"ties must be ordered by chunk id")
	}
}

func TestFuseRRFLimit(t *testing.T) {
	var branch []Hit
	for i := 0; i < 25; i++ {
		branch = append(branch, hitWithID(uuid.New(), float32(25-i)))
	}
	out := FuseRRF(60, 10, branch)
	assert.Len(t, out, 10)
}

func TestFuseRRFDuplicateAcrossBranchesCountedOnce(t *testing.T) {
	id := uuid.New()
	dense := []Hit{hitWithID(id, 0.7)}
	sparse := []Hit{hitWithID(id, 9.0)}

	out := FuseRRF(60, 10, dense, sparse)
	require.Len(t, out, 1)
	assert.InDelta(t, 2.0/61, float64(out[0].Score), 1e-6)
}
