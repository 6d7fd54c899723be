package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(url string, chunk int) Result {
	return Result{URL: url, ChunkIndex: chunk, Text: url}
}

func urls(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.URL
	}
	return out
}

func TestFuseRRF_MatchesHandComputedScores(t *testing.T) {
	vector := []Result{hit("https://a.com", 0), hit("https://b.com", 0), hit("https://c.com", 0)}
	lexical := []Result{hit("https://b.com", 0), hit("https://d.com", 0), hit("https://a.com", 0)}

	fused := fuseRRF(vector, lexical, false, RRFK)

	require.Len(t, fused, 4)
	assert.Equal(t, []string{"https://b.com", "https://a.com", "https://d.com", "https://c.com"}, urls(fused))

	assert.InDelta(t, 1.0/62+1.0/61, fused[0].Score, 1e-12)
	assert.InDelta(t, 1.0/61+1.0/63, fused[1].Score, 1e-12)
	assert.InDelta(t, 1.0/62, fused[2].Score, 1e-12)
	assert.InDelta(t, 1.0/63, fused[3].Score, 1e-12)

	assert.Equal(t, 2, fused[0].VectorRank)
	assert.Equal(t, 1, fused[0].LexicalRank)
	assert.Equal(t, 0, fused[2].VectorRank)
	assert.Equal(t, 2, fused[2].LexicalRank)
}

func TestFuseRRF_IsDeterministic(t *testing.T) {
	vector := []Result{hit("https://z.com", 0), hit("https://m.com", 0)}
	lexical := []Result{hit("https://a.com", 0), hit("https://y.com", 0)}

	first := fuseRRF(vector, lexical, false, RRFK)
	for range 20 {
		assert.Equal(t, first, fuseRRF(vector, lexical, false, RRFK))
	}
}

func TestFuseRRF_TiesBreakByURLThenChunk(t *testing.T) {
	fused := fuseRRF(
		[]Result{hit("https://b.com", 0)},
		[]Result{hit("https://a.com", 0)},
		false, RRFK,
	)
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, urls(fused))

	fused = fuseRRF(
		[]Result{hit("https://a.com", 3)},
		[]Result{hit("https://a.com", 1)},
		true, RRFK,
	)
	require.Len(t, fused, 2)
	assert.Equal(t, 1, fused[0].ChunkIndex)
	assert.Equal(t, 3, fused[1].ChunkIndex)
}

func TestFuseRRF_URLLevelCollapsesChunksBeforeRanking(t *testing.T) {
	vector := []Result{hit("https://a.com", 0), hit("https://a.com", 1), hit("https://b.com", 0)}

	fused := fuseRRF(vector, nil, false, RRFK)

	require.Len(t, fused, 2)
	assert.Equal(t, 0, fused[0].ChunkIndex, "best chunk represents the url")
	assert.Equal(t, 2, fused[1].VectorRank, "ranks are recomputed after collapsing")
	assert.InDelta(t, 1.0/62, fused[1].Score, 1e-12)
}

func TestFuseRRF_SameURLAcrossBranchesSums(t *testing.T) {
	fused := fuseRRF(
		[]Result{hit("https://a.com", 0)},
		[]Result{hit("https://a.com", 4)},
		false, RRFK,
	)

	require.Len(t, fused, 1)
	assert.InDelta(t, 2.0/61, fused[0].Score, 1e-12)
	assert.Equal(t, 0, fused[0].ChunkIndex, "content comes from the vector hit")
}

func TestFuseRRF_ChunkLevelKeepsChunksApart(t *testing.T) {
	vector := []Result{hit("https://a.com", 0), hit("https://a.com", 1)}
	lexical := []Result{hit("https://a.com", 1)}

	fused := fuseRRF(vector, lexical, true, RRFK)

	require.Len(t, fused, 2)
	assert.Equal(t, 1, fused[0].ChunkIndex)
	assert.InDelta(t, 1.0/62+1.0/61, fused[0].Score, 1e-12)
}

func TestFuseRRF_Empty(t *testing.T) {
	assert.Empty(t, fuseRRF(nil, nil, false, RRFK))
}

func TestSingle_UsesBranchScore(t *testing.T) {
	list := []Result{
		{URL: "https://a.com", LexicalScore: 3.5},
		{URL: "https://a.com", ChunkIndex: 1, LexicalScore: 2.0},
		{URL: "https://b.com", LexicalScore: 1.25},
	}

	out := single(list, false, false)

	require.Len(t, out, 2)
	assert.Equal(t, 3.5, out[0].Score)
	assert.Equal(t, 2, out[1].LexicalRank)
	assert.Equal(t, 1.25, out[1].Score)
}

func TestPaginate(t *testing.T) {
	results := []Result{hit("1", 0), hit("2", 0), hit("3", 0)}

	assert.Equal(t, []string{"2", "3"}, urls(paginate(results, 1, 5)))
	assert.Equal(t, []string{"1"}, urls(paginate(results, 0, 1)))
	assert.Empty(t, paginate(results, 3, 1))
}
