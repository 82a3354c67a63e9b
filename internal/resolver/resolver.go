// Package resolver walks a skill's extends chain and merges ancestors
// into a single resolved SkillSpec, per spec.md §4.6.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

// Loader loads a skill's full body (metadata + sections) by id. The
// store's GetSkillBody satisfies this directly.
type Loader interface {
	GetSkillBody(ctx context.Context, id string) (*skill.Skill, error)
}

// MaxDepth is the inheritance chain's depth bound, per spec.md §4.6.
const MaxDepth = 16

// color is a DFS node state for the gray/black cycle check, grounded
// on the teacher's edge-lookup-by-id-each-traversal style
// (internal/store/local_graph.go's TraversePath/queryLinksLocked),
// generalized from knowledge-graph edges to extends edges.
type color int

const (
	white color = iota
	gray
	black
)

// Resolver walks extends chains loaded one ancestor at a time — no
// pre-built adjacency cache, matching the teacher's graph-traversal
// idiom of looking an edge up fresh at each hop.
type Resolver struct {
	loader Loader
	log    *logging.Logger
}

// New constructs a Resolver backed by loader.
func New(loader Loader) *Resolver {
	return &Resolver{loader: loader, log: logging.Get(logging.CategoryResolver)}
}

// Resolve walks skillID's extends chain, loading each ancestor from
// the Loader and merging child over parent per spec.md §4.6's rules,
// returning the fully resolved skill.
func (r *Resolver) Resolve(ctx context.Context, skillID string) (*skill.Skill, error) {
	timer := logging.StartTimer(logging.CategoryResolver, "Resolve")
	defer timer.Stop()

	colors := make(map[string]color)
	var chain []string
	resolved, err := r.resolveChain(ctx, skillID, colors, &chain, 0)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (r *Resolver) resolveChain(ctx context.Context, id string, colors map[string]color, chain *[]string, depth int) (*skill.Skill, error) {
	if depth > MaxDepth {
		return nil, mserr.New(mserr.KindValidation,
			fmt.Sprintf("extends chain exceeds max depth %d: %s", MaxDepth, strings.Join(append(*chain, id), " -> ")))
	}

	switch colors[id] {
	case gray:
		cycle := append(append([]string{}, *chain...), id)
		return nil, mserr.New(mserr.KindValidation, "cycle detected in extends chain: "+strings.Join(cycle, " -> "))
	case black:
		// Already fully resolved on another path through the same
		// ancestor; reload is cheap and keeps the function pure.
	}

	colors[id] = gray
	*chain = append(*chain, id)
	defer func() {
		colors[id] = black
		*chain = (*chain)[:len(*chain)-1]
	}()

	child, err := r.loader.GetSkillBody(ctx, id)
	if err != nil {
		return nil, err
	}
	if child.Extends == nil || *child.Extends == "" {
		return child, nil
	}

	parent, err := r.resolveChain(ctx, *child.Extends, colors, chain, depth+1)
	if err != nil {
		return nil, err
	}
	return merge(parent, child), nil
}

// merge overlays child onto parent per spec.md §4.6:
//   - scalar metadata fields: child overrides parent unless unset.
//   - tags/provides: set-union; requires: child order preserved,
//     duplicates removed, parent's trailing uniques appended.
//   - sections: parent's sections first, then child's; a child section
//     whose id matches a parent section's id replaces it in place.
func merge(parent, child *skill.Skill) *skill.Skill {
	out := *child

	out.Description = firstNonEmpty(child.Description, parent.Description)
	out.Version = firstNonEmpty(child.Version, parent.Version)
	if child.Author == nil {
		out.Author = parent.Author
	}
	if child.QualityScore == 0 {
		out.QualityScore = parent.QualityScore
	}

	out.Tags = unionStrings(parent.Tags, child.Tags)
	out.Provides = unionStrings(parent.Provides, child.Provides)
	out.Requires = mergeRequires(parent.Requires, child.Requires)
	out.Sections = mergeSections(parent.Sections, child.Sections)

	return &out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func unionStrings(parent, child []string) []string {
	seen := make(map[string]struct{}, len(parent)+len(child))
	var out []string
	for _, v := range append(append([]string{}, parent...), child...) {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// mergeRequires preserves child order with duplicates removed, then
// appends parent's remaining uniques in parent order.
func mergeRequires(parent, child []string) []string {
	seen := make(map[string]struct{}, len(parent)+len(child))
	var out []string
	for _, v := range child {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range parent {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// mergeSections places parent's sections first, then child's; a child
// section whose id matches a parent section's id replaces the parent
// section in place (not appended again at the end).
func mergeSections(parent, child []skill.Section) []skill.Section {
	childByID := make(map[string]skill.Section, len(child))
	childOnly := make([]skill.Section, 0, len(child))
	for _, cs := range child {
		childByID[cs.ID] = cs
	}

	out := make([]skill.Section, 0, len(parent)+len(child))
	seenParentIDs := make(map[string]struct{}, len(parent))
	for _, ps := range parent {
		seenParentIDs[ps.ID] = struct{}{}
		if replacement, ok := childByID[ps.ID]; ok {
			out = append(out, replacement)
			continue
		}
		out = append(out, ps)
	}
	for _, cs := range child {
		if _, ok := seenParentIDs[cs.ID]; ok {
			continue
		}
		childOnly = append(childOnly, cs)
	}
	return append(out, childOnly...)
}
