package recall

import (
	"crypto/sha256"
	"sort"
)

// DefaultRRFK is the standard Reciprocal Rank Fusion dampening constant.
const DefaultRRFK = 60

// Fuse merges independently ranked result lists (each best-first) with
// Reciprocal Rank Fusion: score(id) = sum over lists of 1/(k + rank + 1).
// Items whose content hashes match exactly are deduplicated before the
// merged ranking is truncated to limit. The output is deterministic for
// identical inputs: ties break on record id.
func Fuse(lists [][]Result, k, limit int) []Result {
	if k <= 0 {
		k = DefaultRRFK
	}

	type fused struct {
		result Result
		score  float64
	}
	byID := make(map[string]*fused)

	for _, list := range lists {
		for rank, r := range list {
			id := r.Record.ID.String()
			contribution := 1.0 / float64(k+rank+1)
			if f, ok := byID[id]; ok {
				f.score += contribution
			} else {
				byID[id] = &fused{result: r, score: contribution}
			}
		}
	}

	merged := make([]*fused, 0, len(byID))
	for _, f := range byID {
		merged = append(merged, f)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].result.Record.ID.String() < merged[j].result.Record.ID.String()
	})

	seen := make(map[[32]byte]bool)
	out := make([]Result, 0, len(merged))
	for _, f := range merged {
		hash := sha256.Sum256([]byte(f.result.Record.Content))
		if seen[hash] {
			continue
		}
		seen[hash] = true
		r := f.result
		r.Score = f.score
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
