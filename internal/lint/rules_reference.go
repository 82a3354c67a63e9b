package lint

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

// maxRecommendedDepth mirrors original_source's MAX_INHERITANCE_DEPTH:
// this package has no access to that unretrieved constant (resolution.rs
// was never pulled into original_source/), so it uses the same value as
// internal/resolver.MaxDepth (16), the grounded bound the actual
// resolver enforces, rather than inventing an unrelated number.
const maxRecommendedDepth = 16

// deepInheritanceSafetyLimit bounds DeepInheritanceRule's own walk
// against a misbehaving repository, ported from calculate_depth's
// `if depth > 100` guard in reference.rs.
const deepInheritanceSafetyLimit = 100

// ReferenceRules returns every built-in reference validation rule,
// ported from original_source/src/lint/rules/reference.rs's
// reference_rules(). FormatVersionRule is omitted: the Go skill model
// has no format_version field (front-matter is the markdown + YAML
// doc itself, not a versioned wire format), so there is nothing for
// that rule to check here.
func ReferenceRules() []ValidationRule {
	return []ValidationRule{
		ValidExtendsRule{},
		NoCycleRule{},
		DeepInheritanceRule{MaxDepth: maxRecommendedDepth},
	}
}

// DefaultRules returns every built-in rule, structural then reference,
// in the order a fresh Engine should register them.
func DefaultRules() []ValidationRule {
	rules := make([]ValidationRule, 0, len(StructuralRules())+len(ReferenceRules()))
	rules = append(rules, StructuralRules()...)
	rules = append(rules, ReferenceRules()...)
	return rules
}

// ValidExtendsRule checks that an extends reference resolves to an
// existing skill, ported from ValidExtendsRule in reference.rs.
type ValidExtendsRule struct{ NoFix }

func (ValidExtendsRule) ID() string { return "valid-extends" }
func (ValidExtendsRule) Name() string { return "Valid Extends Reference" }
func (ValidExtendsRule) Description() string { return "The extends field must reference an existing skill" }
func (ValidExtendsRule) Category() RuleCategory { return CategoryReference }
func (ValidExtendsRule) DefaultSeverity() Severity { return SeverityError }

func (ValidExtendsRule) Validate(ctx *ValidationContext) []Diagnostic {
	if ctx.Skill.Extends == nil || *ctx.Skill.Extends == "" {
		return nil
	}
	parentID := *ctx.Skill.Extends

	if ctx.Repository == nil {
		return []Diagnostic{
			Info("valid-extends", "Cannot validate extends reference without repository access").
				WithCategory(CategoryReference),
		}
	}

	_, err := ctx.Repository.GetSkillBody(context.Background(), parentID)
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return []Diagnostic{
			Error("valid-extends", fmt.Sprintf("Parent skill '%s' not found", parentID)).
				WithSuggestion("Check that the parent skill ID is correct and indexed").
				WithCategory(CategoryReference),
		}
	default:
		return []Diagnostic{
			Warning("valid-extends", fmt.Sprintf("Could not validate parent skill '%s': %v", parentID, err)).
				WithCategory(CategoryReference),
		}
	}
}

// NoCycleRule detects circular extends chains, ported from NoCycleRule
// in reference.rs. The walk itself is detectInheritanceCycle below,
// not a call into internal/resolver.Resolver — see that function's
// comment for why.
type NoCycleRule struct{ NoFix }

func (NoCycleRule) ID() string { return "no-cycle" }
func (NoCycleRule) Name() string { return "No Circular Dependencies" }
func (NoCycleRule) Description() string { return "Skills must not form circular inheritance chains" }
func (NoCycleRule) Category() RuleCategory { return CategoryReference }
func (NoCycleRule) DefaultSeverity() Severity { return SeverityError }

func (NoCycleRule) Validate(ctx *ValidationContext) []Diagnostic {
	if ctx.Skill.Extends == nil || *ctx.Skill.Extends == "" {
		return nil
	}
	if ctx.Repository == nil {
		return []Diagnostic{
			Info("no-cycle", "Cannot check for cycles without repository access").
				WithCategory(CategoryReference),
		}
	}

	cycle, err := detectInheritanceCycle(ctx.Skill, ctx.Repository)
	if err != nil {
		return []Diagnostic{
			Warning("no-cycle", fmt.Sprintf("Could not check for cycles: %v", err)).
				WithCategory(CategoryReference),
		}
	}
	if cycle == nil {
		return nil
	}
	return []Diagnostic{
		Error("no-cycle", fmt.Sprintf("Circular dependency detected: %s", strings.Join(cycle, " -> "))).
			WithSuggestion("Remove one of the extends relationships to break the cycle").
			WithCategory(CategoryReference),
	}
}

// DeepInheritanceRule warns when an inheritance chain exceeds a
// recommended depth, ported from DeepInheritanceRule in reference.rs.
type DeepInheritanceRule struct {
	NoFix
	MaxDepth int
}

func (DeepInheritanceRule) ID() string { return "deep-inheritance" }
func (DeepInheritanceRule) Name() string { return "Deep Inheritance Warning" }
func (DeepInheritanceRule) Description() string { return "Warns about deeply nested inheritance chains" }
func (DeepInheritanceRule) Category() RuleCategory { return CategoryReference }
func (DeepInheritanceRule) DefaultSeverity() Severity { return SeverityWarning }

func (r DeepInheritanceRule) Validate(ctx *ValidationContext) []Diagnostic {
	if ctx.Skill.Extends == nil || *ctx.Skill.Extends == "" {
		return nil
	}
	maxDepth := r.MaxDepth
	if maxDepth <= 0 {
		maxDepth = maxRecommendedDepth
	}

	depth, ok := r.calculateDepth(ctx)
	if !ok {
		return []Diagnostic{
			Info("deep-inheritance", "Cannot calculate inheritance depth without repository access").
				WithCategory(CategoryReference),
		}
	}

	if depth > maxDepth {
		return []Diagnostic{
			Warning("deep-inheritance",
				fmt.Sprintf("Inheritance depth %d exceeds recommended maximum %d", depth, maxDepth)).
				WithSuggestion("Consider flattening the inheritance chain or using composition").
				WithCategory(CategoryReference),
		}
	}
	return nil
}

func (DeepInheritanceRule) calculateDepth(ctx *ValidationContext) (int, bool) {
	if ctx.Repository == nil {
		return 0, false
	}
	depth := 0
	sk := ctx.Skill
	for sk.Extends != nil && *sk.Extends != "" {
		depth++
		if depth > deepInheritanceSafetyLimit {
			return depth, true
		}
		next, err := ctx.Repository.GetSkillBody(context.Background(), *sk.Extends)
		if err != nil {
			return 0, false
		}
		sk = next
	}
	return depth, true
}

// detectInheritanceCycle walks the extends chain starting at start (the
// skill under validation, which need not be in repo yet), fetching each
// ancestor from repo and recording each id's position in a seen map. It
// returns the cycle (as a slice of ids ending back at the repeat) if an
// id repeats. The walk is local rather than a call to
// internal/resolver.Resolve because resolution's merge semantics are of
// no use to this rule.
func detectInheritanceCycle(start *skill.Skill, repo Repository) ([]string, error) {
	seen := make(map[string]int)
	var chain []string
	sk := start
	currentID := start.ID
	for {
		if idx, ok := seen[currentID]; ok {
			return append(chain[idx:], currentID), nil
		}
		seen[currentID] = len(chain)
		chain = append(chain, currentID)
		if len(chain) > deepInheritanceSafetyLimit {
			return nil, mserr.New(mserr.KindValidation, "inheritance chain exceeds safety limit while checking for cycles")
		}

		if len(chain) > 1 {
			next, err := repo.GetSkillBody(context.Background(), currentID)
			if err != nil {
				return nil, err
			}
			sk = next
		}
		if sk.Extends == nil || *sk.Extends == "" {
			return nil, nil
		}
		currentID = *sk.Extends
	}
}

func isNotFound(err error) bool {
	kind, ok := mserr.KindOf(err)
	return ok && (kind == mserr.KindSkillNotFound || kind == mserr.KindNotFound)
}
