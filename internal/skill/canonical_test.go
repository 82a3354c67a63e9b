package skill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSkill() *Skill {
	return &Skill{
		ID:          "go-error-handling",
		Name:        "Go Error Handling",
		Description: "How to handle errors idiomatically in Go.",
		Version:     "1.0.0",
		Layer:       LayerBase,
		Tags:        []string{"go", "errors"},
		Provides:    []string{"error-handling-guidance"},
		Requires:    []string{"go-basics"},
		Sections: []Section{
			{
				ID:    "overview",
				Title: "Overview",
				Tier:  TierCore,
				Blocks: []Block{
					{ID: "block-0", Kind: BlockProse, Content: "Errors are values in Go.   "},
				},
			},
		},
	}
}

func TestContentHashDeterministic(t *testing.T) {
	h1, err := ContentHash(sampleSkill())
	require.NoError(t, err)
	h2, err := ContentHash(sampleSkill())
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestContentHashChangesWithBody(t *testing.T) {
	s1 := sampleSkill()
	h1, err := ContentHash(s1)
	require.NoError(t, err)

	s2 := sampleSkill()
	s2.Sections[0].Blocks[0].Content = "Different content."
	h2, err := ContentHash(s2)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestCanonicalBytesNormalizesWhitespace(t *testing.T) {
	b, err := CanonicalBytes(sampleSkill())
	require.NoError(t, err)
	s := string(b)

	assert.NotContains(t, s, "\r")
	assert.NotContains(t, s, "   \n")
	assert.Equal(t, byte('\n'), s[len(s)-1])
}

func TestCanonicalBytesStableKeyOrder(t *testing.T) {
	b, err := CanonicalBytes(sampleSkill())
	require.NoError(t, err)
	s := string(b)

	idxID := indexOf(s, "id:")
	idxName := indexOf(s, "name:")
	idxVersion := indexOf(s, "version:")
	idxDescription := indexOf(s, "description:")
	idxLayer := indexOf(s, "layer:")

	assert.True(t, idxID < idxName)
	assert.True(t, idxName < idxVersion)
	assert.True(t, idxVersion < idxDescription)
	assert.True(t, idxDescription < idxLayer)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
