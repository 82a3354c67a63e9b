// Package config loads and layers ms's TOML configuration, following the
// same default-then-override shape the teacher used for its own
// config (DefaultConfig + file unmarshal + environment overrides),
// retargeted from YAML to TOML per the data-root layout's literal
// config.toml file name.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
)

// FileName is the config file's name within the data root.
const FileName = "config.toml"

// Config is the full set of recognized top-level sections from
// spec.md §6.
type Config struct {
	SkillPaths SkillPathsConfig `toml:"skill_paths"`
	Layers     LayersConfig     `toml:"layers"`
	Disclosure DisclosureConfig `toml:"disclosure"`
	Search     SearchConfig     `toml:"search"`
	Cache      CacheConfig      `toml:"cache"`
	Security   SecurityConfig   `toml:"security"`
}

// SkillPathsConfig lists the directories scanned during indexing.
type SkillPathsConfig struct {
	Global    []string `toml:"global"`
	Project   []string `toml:"project"`
	Community []string `toml:"community"`
	Local     []string `toml:"local"`
}

// LayersConfig controls layer precedence at resolution time.
type LayersConfig struct {
	Priority         []string `toml:"priority"`
	AutoDetect       bool     `toml:"auto_detect"`
	ProjectOverrides bool     `toml:"project_overrides"`
}

// DisclosureConfig supplies the composer's and suggester's defaults.
type DisclosureConfig struct {
	DefaultLevel    string `toml:"default_level"`
	TokenBudget     int    `toml:"token_budget"`
	AutoSuggest     bool   `toml:"auto_suggest"`
	CooldownSeconds int    `toml:"cooldown_seconds"`
}

// SearchConfig controls retrieval toggles and fusion weights.
type SearchConfig struct {
	UseEmbeddings    bool    `toml:"use_embeddings"`
	EmbeddingBackend string  `toml:"embedding_backend"`
	EmbeddingDims    int     `toml:"embedding_dims"`
	BM25Weight       float64 `toml:"bm25_weight"`
	SemanticWeight   float64 `toml:"semantic_weight"`
	// AnnThreshold is the skill count at or above which the vector index
	// switches from flat brute-force cosine to the sqlite-vec ANN
	// backend (SPEC_FULL.md §9 Open Question b).
	AnnThreshold int `toml:"ann_threshold"`
}

// CacheConfig bounds the result and embedding caches.
type CacheConfig struct {
	Enabled    bool `toml:"enabled"`
	MaxSizeMB  int  `toml:"max_size_mb"`
	TTLSeconds int  `toml:"ttl_seconds"`
}

// SecurityConfig carries the injection-defense policy.
type SecurityConfig struct {
	Acip AcipConfig `toml:"acip"`
}

// AcipConfig configures the quarantine/injection-defense hook.
type AcipConfig struct {
	Enabled    bool        `toml:"enabled"`
	Version    string      `toml:"version"`
	PromptPath string      `toml:"prompt_path"`
	AuditMode  bool        `toml:"audit_mode"`
	Trust      TrustLevels `toml:"trust"`
}

// TrustLevels assigns a trust level name per content source.
type TrustLevels struct {
	UserMessages      string `toml:"user_messages"`
	AssistantMessages string `toml:"assistant_messages"`
	ToolOutputs       string `toml:"tool_outputs"`
	FileContents      string `toml:"file_contents"`
}

// DefaultConfig returns ms's out-of-the-box configuration: every key
// has a usable default per spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		SkillPaths: SkillPathsConfig{
			Global:    []string{"~/.ms/skills"},
			Project:   []string{".ms/skills"},
			Community: nil,
			Local:     nil,
		},
		Layers: LayersConfig{
			Priority:         []string{"user", "project", "org", "base"},
			AutoDetect:       true,
			ProjectOverrides: true,
		},
		Disclosure: DisclosureConfig{
			DefaultLevel:    "standard",
			TokenBudget:     4000,
			AutoSuggest:     true,
			CooldownSeconds: 300,
		},
		Search: SearchConfig{
			UseEmbeddings:    true,
			EmbeddingBackend: "hashed",
			EmbeddingDims:    384,
			BM25Weight:       0.5,
			SemanticWeight:   0.5,
			AnnThreshold:     100000,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxSizeMB:  64,
			TTLSeconds: 3600,
		},
		Security: SecurityConfig{
			Acip: AcipConfig{
				Enabled:    true,
				Version:    "1",
				PromptPath: "",
				AuditMode:  false,
				Trust: TrustLevels{
					UserMessages:      "trusted",
					AssistantMessages: "trusted",
					ToolOutputs:       "untrusted",
					FileContents:      "untrusted",
				},
			},
		},
	}
}

// Load reads config.toml from dataRoot, layering it over DefaultConfig
// and then applying MS_<SECTION>_<KEY> environment overrides. A
// missing file is not an error: defaults (plus env overrides) apply.
func Load(dataRoot string) (*Config, error) {
	cfg := DefaultConfig()
	log := logging.Get(logging.CategoryConfig)

	path := filepath.Join(dataRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("config file not found, using defaults", "path", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, mserr.Wrap(mserr.KindConfig, "failed to read config file", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, mserr.Wrap(mserr.KindConfig, "failed to parse config file", err)
	}

	cfg.applyEnvOverrides()
	log.Debug("config loaded", "path", path)
	return cfg, nil
}

// Save serializes c to config.toml under dataRoot.
func (c *Config) Save(dataRoot string) error {
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to create data root", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return mserr.Wrap(mserr.KindConfig, "failed to marshal config", err)
	}
	if err := os.WriteFile(filepath.Join(dataRoot, FileName), data, 0o644); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to write config file", err)
	}
	return nil
}

// applyEnvOverrides applies MS_<SECTION>_<KEY> overrides, following
// spec.md §6's convention: dot becomes underscore, uppercased; list
// variables are comma-separated.
func (c *Config) applyEnvOverrides() {
	overrideStrings(&c.SkillPaths.Global, "MS_SKILL_PATHS_GLOBAL")
	overrideStrings(&c.SkillPaths.Project, "MS_SKILL_PATHS_PROJECT")
	overrideStrings(&c.SkillPaths.Community, "MS_SKILL_PATHS_COMMUNITY")
	overrideStrings(&c.SkillPaths.Local, "MS_SKILL_PATHS_LOCAL")

	overrideStrings(&c.Layers.Priority, "MS_LAYERS_PRIORITY")
	overrideBool(&c.Layers.AutoDetect, "MS_LAYERS_AUTO_DETECT")
	overrideBool(&c.Layers.ProjectOverrides, "MS_LAYERS_PROJECT_OVERRIDES")

	overrideString(&c.Disclosure.DefaultLevel, "MS_DISCLOSURE_DEFAULT_LEVEL")
	overrideInt(&c.Disclosure.TokenBudget, "MS_DISCLOSURE_TOKEN_BUDGET")
	overrideBool(&c.Disclosure.AutoSuggest, "MS_DISCLOSURE_AUTO_SUGGEST")
	overrideInt(&c.Disclosure.CooldownSeconds, "MS_DISCLOSURE_COOLDOWN_SECONDS")

	overrideBool(&c.Search.UseEmbeddings, "MS_SEARCH_USE_EMBEDDINGS")
	overrideString(&c.Search.EmbeddingBackend, "MS_SEARCH_EMBEDDING_BACKEND")
	overrideInt(&c.Search.EmbeddingDims, "MS_SEARCH_EMBEDDING_DIMS")
	overrideFloat(&c.Search.BM25Weight, "MS_SEARCH_BM25_WEIGHT")
	overrideFloat(&c.Search.SemanticWeight, "MS_SEARCH_SEMANTIC_WEIGHT")
	overrideInt(&c.Search.AnnThreshold, "MS_SEARCH_ANN_THRESHOLD")

	overrideBool(&c.Cache.Enabled, "MS_CACHE_ENABLED")
	overrideInt(&c.Cache.MaxSizeMB, "MS_CACHE_MAX_SIZE_MB")
	overrideInt(&c.Cache.TTLSeconds, "MS_CACHE_TTL_SECONDS")

	overrideBool(&c.Security.Acip.Enabled, "MS_SECURITY_ACIP_ENABLED")
	overrideString(&c.Security.Acip.Version, "MS_SECURITY_ACIP_VERSION")
	overrideString(&c.Security.Acip.PromptPath, "MS_SECURITY_ACIP_PROMPT_PATH")
	overrideBool(&c.Security.Acip.AuditMode, "MS_SECURITY_ACIP_AUDIT_MODE")
}

func overrideString(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok {
		*dst = v
	}
}

func overrideStrings(dst *[]string, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if v == "" {
			*dst = nil
			return
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*dst = parts
	}
}

func overrideBool(dst *bool, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func overrideInt(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideFloat(dst *float64, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// Validate performs basic sanity checks beyond what TOML unmarshaling
// already guarantees.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"minimal": true, "overview": true, "standard": true, "full": true, "complete": true}
	if !validLevels[c.Disclosure.DefaultLevel] {
		return mserr.New(mserr.KindConfig, fmt.Sprintf("invalid disclosure.default_level: %q", c.Disclosure.DefaultLevel))
	}
	if c.Search.BM25Weight < 0 || c.Search.SemanticWeight < 0 {
		return mserr.New(mserr.KindConfig, "search fusion weights must be non-negative")
	}
	return nil
}
