// Package skill defines the canonical in-memory skill model — the
// Skill/Section/Block tree, its layer and disclosure-tier enums, and
// the canonical serialization used to compute a skill's content hash.
package skill

import "time"

// Layer orders where a skill came from; higher layers win when the
// same id is defined at more than one layer.
type Layer int

const (
	LayerBase Layer = iota
	LayerOrg
	LayerProject
	LayerUser
)

// String renders the layer as its front-matter value.
func (l Layer) String() string {
	switch l {
	case LayerBase:
		return "base"
	case LayerOrg:
		return "org"
	case LayerProject:
		return "project"
	case LayerUser:
		return "user"
	default:
		return "base"
	}
}

// ParseLayer parses a front-matter layer value, defaulting to LayerBase
// for anything unrecognized.
func ParseLayer(s string) Layer {
	switch s {
	case "org":
		return LayerOrg
	case "project":
		return LayerProject
	case "user":
		return LayerUser
	default:
		return LayerBase
	}
}

// Tier is a section's progressive-disclosure tier.
type Tier int

const (
	TierCore Tier = iota
	TierStandard
	TierFull
	TierComplete
)

// String renders the tier as its heading-marker value.
func (t Tier) String() string {
	switch t {
	case TierCore:
		return "core"
	case TierStandard:
		return "standard"
	case TierFull:
		return "full"
	case TierComplete:
		return "complete"
	default:
		return "standard"
	}
}

// ParseTier parses a heading tier marker, defaulting to TierStandard
// per spec.md §4.5.
func ParseTier(s string) Tier {
	switch s {
	case "core":
		return TierCore
	case "full":
		return TierFull
	case "complete":
		return TierComplete
	default:
		return TierStandard
	}
}

// BlockKind is the syntactic kind of a body block.
type BlockKind string

const (
	BlockProse   BlockKind = "prose"
	BlockCode    BlockKind = "code"
	BlockList    BlockKind = "list"
	BlockTable   BlockKind = "table"
	BlockCallout BlockKind = "callout"
)

// Block is leaf body content with a stable id unique within its section.
type Block struct {
	ID      string
	Kind    BlockKind
	Content string
}

// Section is an ordered run of blocks at a single disclosure tier, with
// an id unique within its skill.
type Section struct {
	ID     string
	Title  string
	Tier   Tier
	Blocks []Block
}

// Provenance records where a skill's bytes came from and their hash.
type Provenance struct {
	SourcePath  string
	GitRemote   *string
	GitCommit   *string
	ContentHash string
}

// Skill is the atomic unit of the system: front-matter metadata plus an
// ordered sequence of sections.
type Skill struct {
	ID           string
	Name         string
	Description  string
	Version      string
	Author       *string
	Layer        Layer
	Source       Provenance
	Tags         []string
	Provides     []string
	Requires     []string
	Extends      *string
	TokenCount   int
	QualityScore float64

	IndexedAt  time.Time
	ModifiedAt time.Time

	Deprecated        bool
	DeprecationReason *string

	Metadata map[string]any

	Sections []Section
}
