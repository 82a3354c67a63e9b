// Package composer implements the progressive-disclosure composer:
// it renders a resolved skill into markdown at a requested disclosure
// level, optionally fitted to a token budget, per spec.md §4.7.
package composer

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

// Level is a disclosure level requested by a caller, coarser than the
// skill.Tier a section is authored at.
type Level string

const (
	LevelMinimal  Level = "minimal"
	LevelOverview Level = "overview"
	LevelStandard Level = "standard"
	LevelFull     Level = "full"
	LevelComplete Level = "complete"
)

// maxTier returns the highest skill.Tier admitted at level, or -1 for
// levels (minimal, overview) that don't admit by tier at all.
func (l Level) maxTier() skill.Tier {
	switch l {
	case LevelStandard:
		return skill.TierStandard
	case LevelFull:
		return skill.TierFull
	case LevelComplete:
		return skill.TierComplete
	default:
		return -1
	}
}

// Resolver loads a skill's fully inherited form. internal/resolver's
// Resolver satisfies this directly.
type Resolver interface {
	Resolve(ctx context.Context, skillID string) (*skill.Skill, error)
}

// Options configures a single Compose call.
type Options struct {
	Level             Level
	TokenBudget       int // 0 means unbounded
	IncludeScripts    bool
	IncludeReferences bool
}

// PackInfo records how a token budget shaped the output, present only
// when TokenBudget was set.
type PackInfo struct {
	Budget        int
	DroppedCount  int
	DroppedReason string
}

// ComposedPayload is Compose's return value, per spec.md §4.7.
type ComposedPayload struct {
	Content          string
	SectionsIncluded []string
	BlocksIncluded   []string
	TokenCount       int
	PackInfo         *PackInfo
}

// Composer renders resolved skills at a requested disclosure level.
type Composer struct {
	resolver Resolver
	counter  *TokenCounter
	log      *logging.Logger
}

// New constructs a Composer backed by resolver.
func New(resolver Resolver) *Composer {
	return &Composer{resolver: resolver, counter: NewTokenCounter(), log: logging.Get(logging.CategoryComposer)}
}

// Compose resolves skillID and renders it at opts.Level, fitting it to
// opts.TokenBudget when set. Deterministic: identical (resolved skill,
// options) always produces identical output bytes.
func (c *Composer) Compose(ctx context.Context, skillID string, opts Options) (ComposedPayload, error) {
	timer := logging.StartTimer(logging.CategoryComposer, "Compose")
	defer timer.Stop()

	if opts.Level == "" {
		return ComposedPayload{}, mserr.New(mserr.KindValidation, "compose: level is required")
	}

	sk, err := c.resolver.Resolve(ctx, skillID)
	if err != nil {
		return ComposedPayload{}, err
	}

	candidate := c.candidateSections(sk, opts)

	var payload ComposedPayload
	if opts.TokenBudget > 0 {
		payload = c.fitToBudget(sk, candidate, opts.TokenBudget)
	} else {
		payload = c.renderAll(sk, candidate)
	}
	payload.TokenCount = c.counter.Count(payload.Content)
	return payload, nil
}

// candidateSections selects which sections (and, for overview, which
// blocks within the first section) are eligible for inclusion before
// any budget fitting is applied.
func (c *Composer) candidateSections(sk *skill.Skill, opts Options) []skill.Section {
	switch opts.Level {
	case LevelMinimal:
		return nil
	case LevelOverview:
		if len(sk.Sections) == 0 {
			return nil
		}
		first := sk.Sections[0]
		proseOnly := make([]skill.Block, 0, len(first.Blocks))
		for _, b := range first.Blocks {
			if b.Kind == skill.BlockProse {
				proseOnly = append(proseOnly, b)
			}
		}
		first.Blocks = proseOnly
		return []skill.Section{first}
	default:
		maxTier := opts.Level.maxTier()
		out := make([]skill.Section, 0, len(sk.Sections))
		for _, s := range sk.Sections {
			if s.Tier <= maxTier {
				out = append(out, s)
			}
		}
		return out
	}
}

// renderAll includes every candidate section and block unconditionally.
func (c *Composer) renderAll(sk *skill.Skill, sections []skill.Section) ComposedPayload {
	var b strings.Builder
	writeHeader(&b, sk)

	sectionIDs := make([]string, 0, len(sections))
	blockIDs := make([]string, 0)
	for _, s := range sections {
		writeSectionHeading(&b, s)
		sectionIDs = append(sectionIDs, s.ID)
		for _, blk := range s.Blocks {
			writeBlock(&b, blk)
			blockIDs = append(blockIDs, s.ID+"/"+blk.ID)
		}
	}
	return ComposedPayload{
		Content:          b.String(),
		SectionsIncluded: sectionIDs,
		BlocksIncluded:   blockIDs,
	}
}

// fitToBudget admits sections in order, then blocks within each section
// in order, until the running token count would exceed budget. A
// section that cannot fit even its first block is dropped wholesale. A
// partial section (some but not all of its blocks) is allowed only when
// its first admitted block is prose; code and table blocks are atomic
// and never split across the budget boundary.
func (c *Composer) fitToBudget(sk *skill.Skill, sections []skill.Section, budget int) ComposedPayload {
	var b strings.Builder
	writeHeader(&b, sk)
	used := c.counter.Count(b.String())

	var sectionIDs []string
	var blockIDs []string
	droppedCount := 0
	droppedReason := ""

	for _, s := range sections {
		headingCost := c.counter.Count(sectionHeading(s))
		remaining := budget - used
		if headingCost > remaining {
			droppedCount++
			droppedReason = "budget exhausted"
			continue
		}

		var sectionBuf strings.Builder
		writeSectionHeading(&sectionBuf, s)
		sectionCost := headingCost
		var admittedBlocks []string
		overflowed := false

		for _, blk := range s.Blocks {
			blockText := renderBlock(blk)
			blockCost := c.counter.Count(blockText)
			if sectionCost+blockCost > remaining {
				overflowed = true
				droppedCount++
				if droppedReason == "" {
					droppedReason = "budget exhausted"
				}
				break
			}
			sectionBuf.WriteString(blockText)
			sectionCost += blockCost
			admittedBlocks = append(admittedBlocks, s.ID+"/"+blk.ID)
		}

		switch {
		case len(admittedBlocks) == 0:
			// Not even the first block fit.
			droppedCount++
			droppedReason = "section too large"
			continue
		case overflowed && s.Blocks[0].Kind != skill.BlockProse:
			// Atomicity rule: a partial section is only offered when its
			// first block is prose; otherwise drop the section whole.
			droppedCount++
			droppedReason = "section too large"
			continue
		}

		b.WriteString(sectionBuf.String())
		used += sectionCost
		sectionIDs = append(sectionIDs, s.ID)
		blockIDs = append(blockIDs, admittedBlocks...)
	}

	payload := ComposedPayload{
		Content:          b.String(),
		SectionsIncluded: sectionIDs,
		BlocksIncluded:   blockIDs,
	}
	if droppedCount > 0 {
		payload.PackInfo = &PackInfo{Budget: budget, DroppedCount: droppedCount, DroppedReason: droppedReason}
	} else {
		payload.PackInfo = &PackInfo{Budget: budget}
	}
	return payload
}

func writeHeader(b *strings.Builder, sk *skill.Skill) {
	fmt.Fprintf(b, "# %s\n\n%s\n\n", sk.Name, sk.Description)
	if len(sk.Tags) > 0 {
		fmt.Fprintf(b, "Tags: %s\n\n", strings.Join(sk.Tags, ", "))
	}
}

func sectionHeading(s skill.Section) string {
	return fmt.Sprintf("## %s\n\n", s.Title)
}

func writeSectionHeading(b *strings.Builder, s skill.Section) {
	b.WriteString(sectionHeading(s))
}

func renderBlock(blk skill.Block) string {
	switch blk.Kind {
	case skill.BlockCode:
		return "```\n" + blk.Content + "\n```\n\n"
	default:
		return blk.Content + "\n\n"
	}
}

func writeBlock(b *strings.Builder, blk skill.Block) {
	b.WriteString(renderBlock(blk))
}
