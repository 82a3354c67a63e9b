package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "standard", cfg.Disclosure.DefaultLevel)
	assert.Equal(t, 4000, cfg.Disclosure.TokenBudget)
	assert.Equal(t, 100000, cfg.Search.AnnThreshold)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	contents := `
[disclosure]
default_level = "full"
token_budget = 8000

[search]
bm25_weight = 0.7
semantic_weight = 0.3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(contents), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "full", cfg.Disclosure.DefaultLevel)
	assert.Equal(t, 8000, cfg.Disclosure.TokenBudget)
	assert.InDelta(t, 0.7, cfg.Search.BM25Weight, 1e-9)
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MS_DISCLOSURE_TOKEN_BUDGET", "1234")
	t.Setenv("MS_SKILL_PATHS_PROJECT", "a/skills, b/skills")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.Disclosure.TokenBudget)
	assert.Equal(t, []string{"a/skills", "b/skills"}, cfg.SkillPaths.Project)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Disclosure.TokenBudget = 9999

	require.NoError(t, cfg.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Disclosure.TokenBudget)
}

func TestValidateRejectsUnknownLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disclosure.DefaultLevel = "bogus"
	assert.Error(t, cfg.Validate())
}
