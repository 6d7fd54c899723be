package retriever

import (
	"sort"
	"strconv"
)

func dedupKey(r Result, chunkLevel bool) string {
	if chunkLevel {
		return r.URL + "#" + strconv.Itoa(r.ChunkIndex)
	}

	return r.URL
}

// keeps the best-ranked entry per key; input must be ordered best first
func collapse(list []Result, chunkLevel bool) []Result {
	seen := make(map[string]bool, len(list))
	out := make([]Result, 0, len(list))

	for _, r := range list {
		key := dedupKey(r, chunkLevel)
		if seen[key] {
			continue
		}

		seen[key] = true
		out = append(out, r)
	}

	return out
}

type fused struct {
	Result
	minRank int
}

// fuseRRF merges two best-first lists with reciprocal rank fusion. Each key
// scores 1/(rank+k) per list it appears in. Ties go to the lower best rank,
// then URL, then chunk index.
func fuseRRF(vector, lexical []Result, chunkLevel bool, k int) []Result {
	vector = collapse(vector, chunkLevel)
	lexical = collapse(lexical, chunkLevel)

	byKey := make(map[string]*fused, len(vector)+len(lexical))
	order := make([]*fused, 0, len(vector)+len(lexical))

	add := func(r Result, rank int, isVector bool) {
		key := dedupKey(r, chunkLevel)

		f, ok := byKey[key]
		if !ok {
			f = &fused{Result: r, minRank: rank}
			f.Score = 0
			f.VectorRank, f.VectorScore = 0, 0
			f.LexicalRank, f.LexicalScore = 0, 0

			byKey[key] = f
			order = append(order, f)
		}

		f.Score += 1 / float64(rank+k)
		f.minRank = min(f.minRank, rank)

		if isVector {
			f.VectorRank, f.VectorScore = rank, r.VectorScore
		} else {
			f.LexicalRank, f.LexicalScore = rank, r.LexicalScore
		}
	}

	for i, r := range vector {
		add(r, i+1, true)
	}

	for i, r := range lexical {
		add(r, i+1, false)
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]

		if a.Score != b.Score {
			return a.Score > b.Score
		}

		if a.minRank != b.minRank {
			return a.minRank < b.minRank
		}

		if a.URL != b.URL {
			return a.URL < b.URL
		}

		return a.ChunkIndex < b.ChunkIndex
	})

	out := make([]Result, len(order))
	for i, f := range order {
		out[i] = f.Result
	}

	return out
}

// ranks a single branch: collapsed, branch score as the result score
func single(list []Result, chunkLevel bool, isVector bool) []Result {
	out := collapse(list, chunkLevel)

	for i := range out {
		if isVector {
			out[i].VectorRank = i + 1
			out[i].Score = out[i].VectorScore
		} else {
			out[i].LexicalRank = i + 1
			out[i].Score = out[i].LexicalScore
		}
	}

	return out
}

func paginate(results []Result, offset, limit int) []Result {
	if offset >= len(results) {
		return []Result{}
	}

	end := min(offset+limit, len(results))
	return results[offset:end]
}
