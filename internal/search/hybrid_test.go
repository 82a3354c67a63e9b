package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/index/lexical"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/index/vector"
)

type fakeLexical struct {
	results []lexical.Result
}

func (f fakeLexical) Search(_ string, limit int) []lexical.Result {
	if limit < len(f.results) {
		return f.results[:limit]
	}
	return f.results
}

type fakeVector struct {
	results []vector.Result
}

func (f fakeVector) Search(_ context.Context, _ []float32, limit int) ([]vector.Result, error) {
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Dims() int { return 4 }
func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func TestSearchScenarioS5RustFirstAndDeterministic(t *testing.T) {
	lex := fakeLexical{results: []lexical.Result{
		{SkillID: "rust-errors", Score: 4.2},
		{SkillID: "go-errors", Score: 1.1},
	}}
	vec := fakeVector{results: []vector.Result{
		{SkillID: "rust-errors", Cosine: 0.92},
		{SkillID: "go-errors", Cosine: 0.40},
	}}

	e := NewEngine(lex, vec, fakeEmbedder{})

	first, err := e.Search(context.Background(), "rust errors", 5)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "rust-errors", first[0].SkillID)
	assert.Greater(t, first[0].Score, first[1].Score)

	second, err := e.Search(context.Background(), "rust errors", 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFuseMissingComponentTreatedAsZero(t *testing.T) {
	lex := []lexical.Result{{SkillID: "only-lexical", Score: 2.0}}
	vec := []vector.Result{{SkillID: "only-vector", Cosine: 0.5}}

	fused := fuse(lex, vec, 0.5, 0.5)
	require.Len(t, fused, 2)

	byID := make(map[string]HybridResult, len(fused))
	for _, r := range fused {
		byID[r.SkillID] = r
	}

	assert.Nil(t, byID["only-lexical"].SemanticScore)
	assert.Nil(t, byID["only-vector"].BM25Score)
}

func TestFuseBreaksScoreTiesByLowerCombinedRank(t *testing.T) {
	lex := []lexical.Result{
		{SkillID: "b", Score: 1.0},
		{SkillID: "a", Score: 1.0},
	}
	fused := fuse(lex, nil, 1.0, 0.0)
	require.Len(t, fused, 2)
	// Both normalize to the same score (degenerate pool), so the
	// earlier-ranked lexical hit ("b", rank 1) wins the tie.
	assert.Equal(t, "b", fused[0].SkillID)
	assert.Equal(t, "a", fused[1].SkillID)
}

func TestFuseBreaksRemainingTiesBySkillID(t *testing.T) {
	lex := []lexical.Result{
		{SkillID: "x", Score: 2.0},
		{SkillID: "y", Score: 1.0},
	}
	vec := []vector.Result{
		{SkillID: "y", Cosine: 0.9},
		{SkillID: "x", Cosine: 0.1},
	}
	fused := fuse(lex, vec, 0.5, 0.5)
	require.Len(t, fused, 2)
	assert.Equal(t, fused[0].Score, fused[1].Score)
	assert.Equal(t, "x", fused[0].SkillID)
	assert.Equal(t, "y", fused[1].SkillID)
}

func TestFuseEmptyInputsReturnsEmpty(t *testing.T) {
	fused := fuse(nil, nil, 0.5, 0.5)
	assert.Empty(t, fused)
}

func TestSearchAppliesCustomWeights(t *testing.T) {
	lex := fakeLexical{results: []lexical.Result{{SkillID: "s", Score: 1.0}}}
	vec := fakeVector{results: []vector.Result{{SkillID: "s", Cosine: 0.0}}}

	e := NewEngine(lex, vec, fakeEmbedder{}).WithWeights(1.0, 0.0)
	results, err := e.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestSearchTruncatesToLimit(t *testing.T) {
	lex := fakeLexical{results: []lexical.Result{
		{SkillID: "a", Score: 3},
		{SkillID: "b", Score: 2},
		{SkillID: "c", Score: 1},
	}}
	e := NewEngine(lex, nil, nil)
	results, err := e.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchWithNoVectorIndexFallsBackToLexicalOnly(t *testing.T) {
	lex := fakeLexical{results: []lexical.Result{{SkillID: "a", Score: 1}}}
	e := NewEngine(lex, nil, nil)
	results, err := e.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].SemanticScore)
}
