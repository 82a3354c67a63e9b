package lint

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

// StructuralRules returns every built-in structural validation rule,
// ported from original_source/src/lint/rules/structural.rs's
// structural_rules().
func StructuralRules() []ValidationRule {
	return []ValidationRule{
		RequiredMetadataRule{},
		ValidVersionRule{},
		UniqueSectionIDsRule{},
		UniqueBlockIDsRule{},
		NonEmptyBlocksRule{},
	}
}

// RequiredMetadataRule checks that id, name, and description are
// present, ported from RequiredMetadataRule in structural.rs.
type RequiredMetadataRule struct{}

func (RequiredMetadataRule) ID() string { return "required-metadata" }
func (RequiredMetadataRule) Name() string { return "Required Metadata" }
func (RequiredMetadataRule) Description() string { return "Skills must have id, name, and description fields" }
func (RequiredMetadataRule) Category() RuleCategory { return CategoryStructure }
func (RequiredMetadataRule) DefaultSeverity() Severity { return SeverityError }
func (RequiredMetadataRule) CanFix() bool { return true }

func (RequiredMetadataRule) Validate(ctx *ValidationContext) []Diagnostic {
	var out []Diagnostic
	sk := ctx.Skill

	if sk.ID == "" {
		out = append(out, Error("required-metadata", "Skill must have an 'id' field").
			WithSuggestion("Add 'id: your-skill-id' to the metadata").
			WithCategory(CategoryStructure))
	}
	if sk.Name == "" {
		out = append(out, Error("required-metadata", "Skill must have a 'name' field").
			WithSuggestion("Add 'name: Your Skill Name' to the metadata").
			WithCategory(CategoryStructure))
	}
	if sk.Description == "" {
		out = append(out, Warning("required-metadata", "Skill should have a 'description' field").
			WithSuggestion("Add a brief description of what this skill covers").
			WithFix().
			WithCategory(CategoryStructure))
	}
	return out
}

func (RequiredMetadataRule) Fix(sk *skill.Skill, diag Diagnostic) error {
	if strings.Contains(diag.Message, "description") {
		sk.Description = fmt.Sprintf("TODO: Add description for %s", sk.ID)
		return nil
	}
	return mserr.New(mserr.KindNotImplemented, "cannot auto-fix id or name - please provide manually")
}

// ValidVersionRule checks for an X.Y.Z semver string, ported from
// ValidVersionRule in structural.rs.
type ValidVersionRule struct{ NoFix }

func (ValidVersionRule) ID() string { return "valid-version" }
func (ValidVersionRule) Name() string { return "Valid Version" }
func (ValidVersionRule) Description() string { return "Version must be a valid semver string" }
func (ValidVersionRule) Category() RuleCategory { return CategoryStructure }
func (ValidVersionRule) DefaultSeverity() Severity { return SeverityWarning }

func (ValidVersionRule) Validate(ctx *ValidationContext) []Diagnostic {
	version := ctx.Skill.Version
	if version == "" {
		return []Diagnostic{
			Warning("valid-version", "Skill should have a version").
				WithSuggestion("Add 'version: 1.0.0' to the metadata").
				WithCategory(CategoryStructure),
		}
	}

	parts := strings.Split(version, ".")
	valid := len(parts) == 3
	if valid {
		for _, p := range parts {
			if _, err := strconv.ParseUint(p, 10, 32); err != nil {
				valid = false
				break
			}
		}
	}
	if !valid {
		return []Diagnostic{
			Warning("valid-version", fmt.Sprintf("Version '%s' is not valid semver (expected X.Y.Z)", version)).
				WithSuggestion("Use semantic versioning like '1.0.0' or '2.1.3'").
				WithCategory(CategoryStructure),
		}
	}
	return nil
}

// UniqueSectionIDsRule checks that every section id within a skill is
// unique, ported from UniqueSectionIdsRule in structural.rs.
type UniqueSectionIDsRule struct{ NoFix }

func (UniqueSectionIDsRule) ID() string { return "unique-section-ids" }
func (UniqueSectionIDsRule) Name() string { return "Unique Section IDs" }
func (UniqueSectionIDsRule) Description() string { return "All section IDs must be unique within a skill" }
func (UniqueSectionIDsRule) Category() RuleCategory { return CategoryStructure }
func (UniqueSectionIDsRule) DefaultSeverity() Severity { return SeverityError }

func (UniqueSectionIDsRule) Validate(ctx *ValidationContext) []Diagnostic {
	var out []Diagnostic
	seen := make(map[string]struct{})
	for _, section := range ctx.Skill.Sections {
		if _, ok := seen[section.ID]; ok {
			out = append(out, Error("unique-section-ids", fmt.Sprintf("Duplicate section ID: '%s'", section.ID)).
				WithSuggestion("Each section must have a unique ID").
				WithCategory(CategoryStructure))
			continue
		}
		seen[section.ID] = struct{}{}
	}
	return out
}

// UniqueBlockIDsRule checks that block ids are unique within their
// section, ported from UniqueBlockIdsRule in structural.rs.
type UniqueBlockIDsRule struct{ NoFix }

func (UniqueBlockIDsRule) ID() string { return "unique-block-ids" }
func (UniqueBlockIDsRule) Name() string { return "Unique Block IDs" }
func (UniqueBlockIDsRule) Description() string { return "All block IDs must be unique within a section" }
func (UniqueBlockIDsRule) Category() RuleCategory { return CategoryStructure }
func (UniqueBlockIDsRule) DefaultSeverity() Severity { return SeverityError }

func (UniqueBlockIDsRule) Validate(ctx *ValidationContext) []Diagnostic {
	var out []Diagnostic
	for _, section := range ctx.Skill.Sections {
		seen := make(map[string]struct{})
		for _, block := range section.Blocks {
			if _, ok := seen[block.ID]; ok {
				out = append(out, Error("unique-block-ids",
					fmt.Sprintf("Duplicate block ID '%s' in section '%s'", block.ID, section.ID)).
					WithSuggestion("Each block must have a unique ID within its section").
					WithCategory(CategoryStructure))
				continue
			}
			seen[block.ID] = struct{}{}
		}
	}
	return out
}

// NonEmptyBlocksRule checks that blocks have non-whitespace content,
// ported from NonEmptyBlocksRule in structural.rs.
type NonEmptyBlocksRule struct{ NoFix }

func (NonEmptyBlocksRule) ID() string { return "non-empty-blocks" }
func (NonEmptyBlocksRule) Name() string { return "Non-Empty Blocks" }
func (NonEmptyBlocksRule) Description() string { return "Blocks should have meaningful content" }
func (NonEmptyBlocksRule) Category() RuleCategory { return CategoryStructure }
func (NonEmptyBlocksRule) DefaultSeverity() Severity { return SeverityWarning }

func (NonEmptyBlocksRule) Validate(ctx *ValidationContext) []Diagnostic {
	var out []Diagnostic
	for _, section := range ctx.Skill.Sections {
		for _, block := range section.Blocks {
			if strings.TrimSpace(block.Content) == "" {
				out = append(out, Warning("non-empty-blocks",
					fmt.Sprintf("Block '%s' in section '%s' has no content", block.ID, section.ID)).
					WithSuggestion("Add meaningful content or remove the empty block").
					WithCategory(CategoryStructure))
			}
		}
	}
	return out
}
