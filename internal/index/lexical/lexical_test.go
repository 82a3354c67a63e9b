package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeLowercasesAndSplitsOnPunctuation(t *testing.T) {
	got := Tokenize("Go's Error-Handling: idioms!")
	assert.Equal(t, []string{"go", "s", "error", "handling", "idioms"}, got)
}

func TestSearchRanksMoreRelevantDocHigher(t *testing.T) {
	idx := New()
	idx.Update("go-errors", "Go error handling idioms wrap errors with context")
	idx.Update("go-generics", "Go generics type parameters constraints")
	idx.Update("python-errors", "Python exceptions try except finally")

	results := idx.Search("go error handling", 10)
	require.NotEmpty(t, results)
	assert.Equal(t, "go-errors", results[0].SkillID)
}

func TestSearchDeterministicTieBreakBySkillID(t *testing.T) {
	idx := New()
	idx.Update("zzz-skill", "testing patterns testing patterns")
	idx.Update("aaa-skill", "testing patterns testing patterns")

	results := idx.Search("testing patterns", 10)
	require.Len(t, results, 2)
	assert.InDelta(t, results[0].Score, results[1].Score, 1e-9)
	assert.Equal(t, "aaa-skill", results[0].SkillID)
}

func TestSearchRespectsLimit(t *testing.T) {
	idx := New()
	for _, id := range []string{"a", "b", "c", "d"} {
		idx.Update(id, "shared vocabulary across every document")
	}
	results := idx.Search("shared vocabulary", 2)
	assert.Len(t, results, 2)
}

func TestSearchEmptyQueryReturnsNil(t *testing.T) {
	idx := New()
	idx.Update("a", "some text")
	assert.Nil(t, idx.Search("!!!", 10))
}

func TestRemoveDropsDocumentFromResults(t *testing.T) {
	idx := New()
	idx.Update("a", "removable document content")
	idx.Remove("a")
	assert.Nil(t, idx.Search("removable", 10))
}

func TestUpdateReplacesExistingDocument(t *testing.T) {
	idx := New()
	idx.Update("a", "original content about testing")
	idx.Update("a", "entirely different content about deployment")

	assert.Nil(t, idx.Search("testing", 10))
	results := idx.Search("deployment", 10)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].SkillID)
}

func TestRebuildReplacesWholeCorpus(t *testing.T) {
	idx := New()
	idx.Update("stale", "stale document")

	idx.Rebuild(map[string]string{
		"fresh-1": "fresh document one about caching",
		"fresh-2": "fresh document two about caching layers",
	})

	assert.Nil(t, idx.Search("stale", 10))
	results := idx.Search("caching", 10)
	assert.Len(t, results, 2)
}
