// Package dedup detects near-duplicate skills using semantic
// similarity (embeddings) layered with structural comparison (tags,
// triggers, requirements), and recommends merge/alias/keep-both/review
// actions, per spec.md §4.8. Ported byte-for-byte in rule order and
// threshold values from original_source/src/core/dedup.rs.
package dedup

import (
	"context"
	"sort"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/index/vector"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

// DefaultSimilarityThreshold is dedup.rs's DEFAULT_SIMILARITY_THRESHOLD.
const DefaultSimilarityThreshold = 0.85

// Recommendation is the action recommended for a duplicate pair.
type Recommendation string

const (
	RecommendKeepBoth Recommendation = "keep_both"
	RecommendMerge    Recommendation = "merge"
	RecommendAlias    Recommendation = "alias"
	RecommendReview   Recommendation = "review"
)

// StructuralSimilarity is the non-semantic half of a duplicate
// comparison, mirroring dedup.rs's StructuralSimilarity.
type StructuralSimilarity struct {
	CommonTags              []string
	TagOverlap              float64
	SameTriggers            bool
	OverlappingRequirements bool
	SameLayer               bool
}

// DuplicateMatch pairs two skills with their computed similarity and a
// recommended action.
type DuplicateMatch struct {
	SkillA         string
	SkillB         string
	Similarity     float64
	Structural     StructuralSimilarity
	Recommendation Recommendation
}

// Action is a proposed remediation for a duplicate pair or a single
// skill; applying it is the caller's responsibility, routed through
// the store's transaction manager per spec.md §4.8.
type Action struct {
	Kind      string // "keep_both", "merge", "alias", "deprecate"
	Primary   string
	Secondary string
	Reason    string
}

// Engine indexes skills into a parallel vector index keyed by skill id
// and uses it to find and rank duplicate candidates.
type Engine struct {
	embedder  vector.Embedder
	index     *vector.FlatIndex
	threshold float64
	texts     map[string]string
	log       *logging.Logger
}

// New constructs an Engine with the spec's deterministic default
// embedder and similarity threshold.
func New() *Engine {
	embedder := vector.NewHashEmbedder(vector.DefaultDims)
	return &Engine{
		embedder:  embedder,
		index:     vector.NewFlatIndex(embedder.Dims()),
		threshold: DefaultSimilarityThreshold,
		texts:     make(map[string]string),
		log:       logging.Get(logging.CategoryDedup),
	}
}

// WithEmbedder constructs an Engine backed by a custom embedder.
func WithEmbedder(embedder vector.Embedder) *Engine {
	return &Engine{
		embedder:  embedder,
		index:     vector.NewFlatIndex(embedder.Dims()),
		threshold: DefaultSimilarityThreshold,
		texts:     make(map[string]string),
		log:       logging.Get(logging.CategoryDedup),
	}
}

// WithThreshold sets the similarity threshold, clamped to [0, 1].
func (e *Engine) WithThreshold(threshold float64) *Engine {
	switch {
	case threshold < 0:
		threshold = 0
	case threshold > 1:
		threshold = 1
	}
	e.threshold = threshold
	return e
}

// Threshold returns the engine's current similarity threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Len returns the number of indexed skills.
func (e *Engine) Len() int { return e.index.Len() }

// IsEmpty reports whether the index holds no skills.
func (e *Engine) IsEmpty() bool { return e.index.Len() == 0 }

// IndexSkill embeds sk's searchable text and adds it to the index.
func (e *Engine) IndexSkill(ctx context.Context, sk *skill.Skill) error {
	text := skillToText(sk)
	emb, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	if err := e.index.Upsert(sk.ID, sk.Source.ContentHash, emb); err != nil {
		return err
	}
	e.texts[sk.ID] = text
	return nil
}

// IndexSkills indexes each of skills in order.
func (e *Engine) IndexSkills(ctx context.Context, skills []*skill.Skill) error {
	for _, sk := range skills {
		if err := e.IndexSkill(ctx, sk); err != nil {
			return err
		}
	}
	return nil
}

// Clear empties the index.
func (e *Engine) Clear() {
	e.index = vector.NewFlatIndex(e.embedder.Dims())
	e.texts = make(map[string]string)
}

// FindSimilar returns indexed peers of sk with cosine similarity at or
// above the engine's threshold, excluding sk itself, most similar
// first, capped at limit.
func (e *Engine) FindSimilar(ctx context.Context, sk *skill.Skill, limit int) ([]vector.Result, error) {
	text := skillToText(sk)
	emb, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	results, err := e.index.Search(emb, limit+1) // +1 to account for self-match
	if err != nil {
		return nil, err
	}

	out := make([]vector.Result, 0, limit)
	for _, r := range results {
		if r.SkillID == sk.ID || r.Cosine < e.threshold {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// FindDuplicates finds duplicate candidates for sk against allSkills.
func (e *Engine) FindDuplicates(ctx context.Context, sk *skill.Skill, allSkills map[string]*skill.Skill) ([]DuplicateMatch, error) {
	similar, err := e.FindSimilar(ctx, sk, 10)
	if err != nil {
		return nil, err
	}

	matches := make([]DuplicateMatch, 0, len(similar))
	for _, s := range similar {
		other, ok := allSkills[s.SkillID]
		if !ok {
			continue
		}
		structural := computeStructuralSimilarity(sk, other)
		matches = append(matches, DuplicateMatch{
			SkillA:         sk.ID,
			SkillB:         s.SkillID,
			Similarity:     s.Cosine,
			Structural:     structural,
			Recommendation: recommendAction(s.Cosine, structural),
		})
	}
	return matches, nil
}

// ScanAll scans every indexed skill in skills for duplicates, returning
// each unordered pair once (normalized by id order), sorted by cosine
// similarity descending.
func (e *Engine) ScanAll(ctx context.Context, skills map[string]*skill.Skill) ([]DuplicateMatch, error) {
	var duplicates []DuplicateMatch
	seenPairs := make(map[[2]string]struct{})

	ids := sortedSkillIDs(skills)
	for _, id := range ids {
		sk := skills[id]
		found, err := e.FindDuplicates(ctx, sk, skills)
		if err != nil {
			return nil, err
		}
		for _, dup := range found {
			pair := normalizePair(dup.SkillA, dup.SkillB)
			if _, ok := seenPairs[pair]; ok {
				continue
			}
			seenPairs[pair] = struct{}{}
			duplicates = append(duplicates, dup)
		}
	}

	sort.SliceStable(duplicates, func(i, j int) bool {
		return duplicates[i].Similarity > duplicates[j].Similarity
	})
	return duplicates, nil
}

// ComputeSimilarity computes cosine similarity between two skills
// directly, without touching the index.
func (e *Engine) ComputeSimilarity(ctx context.Context, a, b *skill.Skill) (float64, error) {
	embA, err := e.embedder.Embed(ctx, skillToText(a))
	if err != nil {
		return 0, err
	}
	embB, err := e.embedder.Embed(ctx, skillToText(b))
	if err != nil {
		return 0, err
	}
	return vector.CosineSimilarity(embA, embB)
}

func sortedSkillIDs(skills map[string]*skill.Skill) []string {
	ids := make([]string, 0, len(skills))
	for id := range skills {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalizePair(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// skillToText renders a skill's searchable text: name, description,
// every non-empty block's content, and tags, joined with spaces.
func skillToText(sk *skill.Skill) string {
	parts := []string{sk.Name, sk.Description}
	for _, sec := range sk.Sections {
		for _, blk := range sec.Blocks {
			if blk.Content != "" {
				parts = append(parts, blk.Content)
			}
		}
	}
	parts = append(parts, sk.Tags...)
	return joinNonEmpty(parts, " ")
}

func joinNonEmpty(parts []string, sep string) string {
	var out string
	first := true
	for _, p := range parts {
		if p == "" {
			continue
		}
		if !first {
			out += sep
		}
		out += p
		first = false
	}
	return out
}
