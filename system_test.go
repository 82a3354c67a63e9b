package ms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/config"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/lint"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

func sampleSystemSkill(id string) *skill.Skill {
	return &skill.Skill{
		ID:          id,
		Name:        "Rust Error Handling",
		Description: "Result, the ? operator, and anyhow for application errors.",
		Version:     "1.0.0",
		Layer:       skill.LayerProject,
		Source:      skill.Provenance{SourcePath: id + ".md"},
		Tags:        []string{"rust", "errors"},
		Sections: []skill.Section{
			{ID: "overview", Title: "Overview", Tier: skill.TierCore, Blocks: []skill.Block{
				{ID: "p1", Kind: skill.BlockProse, Content: "Use the ? operator to propagate Result errors."},
			}},
		},
	}
}

func openTestSystem(t *testing.T) *System {
	t.Helper()
	ctx := context.Background()
	sys, err := Open(ctx, t.TempDir(), true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close(ctx) })
	return sys
}

func TestOpenWiresEveryComponent(t *testing.T) {
	sys := openTestSystem(t)

	assert.NotNil(t, sys.Store)
	assert.NotNil(t, sys.Lexical)
	assert.NotNil(t, sys.Vector)
	assert.Nil(t, sys.ANNVector, "corpus is far below AnnThreshold, flat backend should be active")
	assert.NotNil(t, sys.Embedder)
	assert.NotNil(t, sys.Indexer)
	assert.NotNil(t, sys.Search)
	assert.NotNil(t, sys.Resolver)
	assert.NotNil(t, sys.Composer)
	assert.NotNil(t, sys.Dedup)
	assert.NotNil(t, sys.Bandit)
	assert.NotNil(t, sys.BanditDB)
	assert.NotNil(t, sys.Lint)
	assert.Nil(t, sys.Quarantine, "no AcipEngine supplied, Quarantine should stay unwired")
}

func TestOpenSwitchesToANNBackendAboveThreshold(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Search.AnnThreshold = 0
	require.NoError(t, cfg.Save(root))

	sys, err := Open(ctx, root, true, nil)
	require.NoError(t, err)
	defer sys.Close(ctx)

	assert.Nil(t, sys.Vector, "corpus is at/above AnnThreshold, flat backend should stay unset")
	assert.NotNil(t, sys.ANNVector)

	sk := sampleSystemSkill("rust-errors")
	require.NoError(t, sys.Store.Tx().PutSkill(ctx, sk))

	results, err := sys.Search.Search(ctx, "rust errors", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "rust-errors", results[0].SkillID)
}

func TestOpenRefusesConcurrentSecondInstance(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	first, err := Open(ctx, root, true, nil)
	require.NoError(t, err)
	defer first.Close(ctx)

	_, err = Open(ctx, root, true, nil)
	assert.Error(t, err)
}

func TestPutSkillIsSearchableThroughTheWiredIndexes(t *testing.T) {
	sys := openTestSystem(t)
	ctx := context.Background()

	sk := sampleSystemSkill("rust-errors")
	require.NoError(t, sys.Store.Tx().PutSkill(ctx, sk))

	results, err := sys.Search.Search(ctx, "rust errors", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "rust-errors", results[0].SkillID)
}

func TestSkillValidatesThroughTheWiredLintEngine(t *testing.T) {
	sys := openTestSystem(t)
	sk := sampleSystemSkill("rust-errors")

	result := sys.Lint.ValidateWithContext(lint.NewValidationContext(sk, lint.NewValidationConfig()).WithRepository(sys.Store))
	assert.True(t, result.Passed)
}

func TestDeleteSkillDropsItFromSearch(t *testing.T) {
	sys := openTestSystem(t)
	ctx := context.Background()

	sk := sampleSystemSkill("rust-errors")
	require.NoError(t, sys.Store.Tx().PutSkill(ctx, sk))
	require.NoError(t, sys.Store.Tx().DeleteSkill(ctx, sk.ID))

	results, err := sys.Search.Search(ctx, "rust errors", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCloseSavesVectorCacheAcrossReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	sys, err := Open(ctx, root, true, nil)
	require.NoError(t, err)
	require.NoError(t, sys.Store.Tx().PutSkill(ctx, sampleSystemSkill("rust-errors")))
	require.NoError(t, sys.Close(ctx))

	reopened, err := Open(ctx, root, true, nil)
	require.NoError(t, err)
	defer reopened.Close(ctx)

	assert.Equal(t, 1, reopened.Vector.Len())
}

func TestBanditRegistersEveryPersistedSkill(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	sys, err := Open(ctx, root, true, nil)
	require.NoError(t, err)
	require.NoError(t, sys.Store.Tx().PutSkill(ctx, sampleSystemSkill("rust-errors")))
	require.NoError(t, sys.Close(ctx))

	reopened, err := Open(ctx, root, true, nil)
	require.NoError(t, err)
	defer reopened.Close(ctx)

	_, _, ok := reopened.Bandit.ArmStats("rust-errors")
	assert.True(t, ok)
}
