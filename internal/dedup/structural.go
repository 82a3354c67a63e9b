package dedup

import (
	"strings"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

// computeStructuralSimilarity mirrors dedup.rs's
// compute_structural_similarity: Jaccard tag overlap, equal-triggers
// check, overlapping-requires check, same-layer check.
func computeStructuralSimilarity(a, b *skill.Skill) StructuralSimilarity {
	tagsA := lowerSet(a.Tags)
	tagsB := lowerSet(b.Tags)

	common := intersectionSorted(tagsA, tagsB)

	var tagOverlap float64
	if len(tagsA) != 0 || len(tagsB) != 0 {
		unionSize := len(union(tagsA, tagsB))
		if unionSize != 0 {
			tagOverlap = float64(len(common)) / float64(unionSize)
		}
	}

	triggersA := extractTriggers(a)
	triggersB := extractTriggers(b)
	sameTriggers := len(triggersA) != 0 && setsEqual(triggersA, triggersB)

	requiresA := toSet(a.Requires)
	requiresB := toSet(b.Requires)
	overlappingRequirements := !disjoint(requiresA, requiresB)

	return StructuralSimilarity{
		CommonTags:              common,
		TagOverlap:              tagOverlap,
		SameTriggers:            sameTriggers,
		OverlappingRequirements: overlappingRequirements,
		SameLayer:               a.Layer == b.Layer,
	}
}

// recommendAction mirrors dedup.rs's recommend_action exactly,
// including rule order (earlier rules take precedence).
func recommendAction(similarity float64, s StructuralSimilarity) Recommendation {
	if similarity >= 0.95 && (s.SameTriggers || s.TagOverlap >= 0.5) {
		return RecommendMerge
	}
	if similarity >= 0.90 && s.SameTriggers {
		return RecommendAlias
	}
	if similarity >= 0.90 {
		return RecommendReview
	}
	if similarity >= 0.85 && s.TagOverlap >= 0.6 {
		return RecommendAlias
	}
	if !s.SameLayer {
		return RecommendKeepBoth
	}
	return RecommendReview
}

// extractTriggers reads a skill's "triggers" metadata entry — a list
// of maps each with a "pattern" key — mirroring dedup.rs's
// extract_triggers, which reads the same shape out of metadata_json.
func extractTriggers(s *skill.Skill) map[string]struct{} {
	out := make(map[string]struct{})
	raw, ok := s.Metadata["triggers"]
	if !ok {
		return out
	}
	list, ok := raw.([]any)
	if !ok {
		return out
	}
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pattern, ok := m["pattern"].(string)
		if !ok || pattern == "" {
			continue
		}
		out[pattern] = struct{}{}
	}
	return out
}

func lowerSet(tags []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		out[strings.ToLower(t)] = struct{}{}
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}

func intersectionSorted(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; ok {
			out = append(out, k)
		}
	}
	return sortStrings(out)
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func disjoint(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return false
		}
	}
	return true
}

func sortStrings(ss []string) []string {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
	return ss
}
