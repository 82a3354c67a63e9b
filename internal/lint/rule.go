package lint

import "github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"

// ValidationRule is the interface every lint rule implements, per
// spec.md §4.12. Rules that don't support auto-fix can embed NoFix to
// get a default CanFix()==false / Fix() no-op.
type ValidationRule interface {
	ID() string
	Name() string
	Description() string
	Category() RuleCategory
	DefaultSeverity() Severity
	Validate(ctx *ValidationContext) []Diagnostic
	CanFix() bool
	Fix(sk *skill.Skill, diag Diagnostic) error
}

// NoFix is embedded by rules with no auto-fix support, so they only
// need to implement Validate plus the identity methods.
type NoFix struct{}

// CanFix always reports false for NoFix.
func (NoFix) CanFix() bool { return false }

// Fix is a no-op for NoFix; callers should only invoke a rule's Fix
// when CanFix() is true.
func (NoFix) Fix(*skill.Skill, Diagnostic) error { return nil }
