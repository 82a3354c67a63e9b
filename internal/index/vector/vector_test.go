package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(0)
	assert.Equal(t, DefaultDims, e.Dims())

	v1, err := e.Embed(context.Background(), "Go error handling idioms")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "Go error handling idioms")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestHashEmbedderDifferentTextDiffers(t *testing.T) {
	e := NewHashEmbedder(16)
	v1, _ := e.Embed(context.Background(), "writing go tests")
	v2, _ := e.Embed(context.Background(), "deploying kubernetes clusters")
	assert.NotEqual(t, v1, v2)
}

func TestHashEmbedderProducesUnitVector(t *testing.T) {
	e := NewHashEmbedder(32)
	v, err := e.Embed(context.Background(), "some reasonably long piece of text to embed")
	require.NoError(t, err)

	var sumSquares float64
	for _, f := range v {
		sumSquares += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, sumSquares, 1e-6)
}

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{0.6, 0.8}
	sim, err := CosineSimilarity(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 0}, []float32{1})
	assert.Error(t, err)
}

func TestFlatIndexSearchRanksByCosine(t *testing.T) {
	idx := NewFlatIndex(2)
	require.NoError(t, idx.Upsert("aligned", "hash-a", []float32{1, 0}))
	require.NoError(t, idx.Upsert("orthogonal", "hash-b", []float32{0, 1}))

	results, err := idx.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "aligned", results[0].SkillID)
	assert.InDelta(t, 1.0, results[0].Cosine, 1e-9)
}

func TestFlatIndexUpsertRejectsWrongDims(t *testing.T) {
	idx := NewFlatIndex(4)
	err := idx.Upsert("bad", "hash", []float32{1, 0})
	assert.Error(t, err)
}

func TestFlatIndexRemove(t *testing.T) {
	idx := NewFlatIndex(2)
	require.NoError(t, idx.Upsert("a", "h1", []float32{1, 0}))
	idx.Remove("a")
	results, err := idx.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFlatIndexContentHashTracksUpsert(t *testing.T) {
	idx := NewFlatIndex(2)
	_, ok := idx.ContentHash("a")
	assert.False(t, ok)

	require.NoError(t, idx.Upsert("a", "hash-1", []float32{1, 0}))
	hash, ok := idx.ContentHash("a")
	require.True(t, ok)
	assert.Equal(t, "hash-1", hash)
}

func TestFlatIndexSaveAndLoadRoundTrip(t *testing.T) {
	idx := NewFlatIndex(3)
	require.NoError(t, idx.Upsert("a", "hash-a", []float32{1, 0, 0}))
	require.NoError(t, idx.Upsert("b", "hash-b", []float32{0, 1, 0}))

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, idx.SaveTo(path))

	loaded := NewFlatIndex(3)
	require.NoError(t, loaded.LoadFrom(path))
	assert.Equal(t, 2, loaded.Len())

	hash, ok := loaded.ContentHash("a")
	require.True(t, ok)
	assert.Equal(t, "hash-a", hash)

	results, err := loaded.Search([]float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].SkillID)
}

func TestFlatIndexLoadFromMissingFileIsNotAnError(t *testing.T) {
	idx := NewFlatIndex(3)
	err := idx.LoadFrom(filepath.Join(t.TempDir(), "does-not-exist.bin"))
	assert.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
}
