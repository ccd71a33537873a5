package vectorindex

import "sort"

// FuseRRF merges ranked branch results with reciprocal rank fusion. Each
// hit contributes 1/(k+rank) per branch it appears in, rank starting at 1.
// The fused score replaces the branch scores on the returned hits.
//
// Pure function of its inputs: equal inputs produce equal output, with
// score ties broken by chunk ID so ordering never depends on map
// iteration.
func FuseRRF(k, limit int, branches ...[]Hit) []Hit {
	type fused struct {
		hit   Hit
		score float32
	}
	byID := make(map[string]*fused)

	for _, branch := range branches {
		for rank, hit := range branch {
			contribution := 1 / float32(k+rank+1)
			id := hit.ChunkID.String()
			if f, ok := byID[id]; ok {
				f.score += contribution
			} else {
				byID[id] = &fused{hit: hit, score: contribution}
			}
		}
	}

	out := make([]Hit, 0, len(byID))
	for _, f := range byID {
		f.hit.Score = f.score
		out = append(out, f.hit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID.String() < out[j].ChunkID.String()
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
