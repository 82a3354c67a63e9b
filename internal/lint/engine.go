// Package lint implements the skill validation framework of
// spec.md §4.12: a registry of ValidationRule implementations run in
// registration order against a ValidationContext, with strict-mode
// severity promotion, per-rule disabling, max-errors truncation, and
// gated auto-fix application.
package lint

import (
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

// ValidationResult is the outcome of running every registered rule.
type ValidationResult struct {
	Diagnostics []Diagnostic
	Truncated   bool
	Passed      bool
}

// Errors returns only error-severity diagnostics.
func (r ValidationResult) Errors() []Diagnostic { return r.bySeverity(SeverityError) }

// Warnings returns only warning-severity diagnostics.
func (r ValidationResult) Warnings() []Diagnostic { return r.bySeverity(SeverityWarning) }

// Infos returns only info-severity diagnostics.
func (r ValidationResult) Infos() []Diagnostic { return r.bySeverity(SeverityInfo) }

func (r ValidationResult) bySeverity(sev Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}

// ByCategory filters diagnostics to a single category.
func (r ValidationResult) ByCategory(cat RuleCategory) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Category == cat {
			out = append(out, d)
		}
	}
	return out
}

// ErrorCount, WarningCount, TotalCount are convenience counters.
func (r ValidationResult) ErrorCount() int   { return len(r.Errors()) }
func (r ValidationResult) WarningCount() int { return len(r.Warnings()) }
func (r ValidationResult) TotalCount() int   { return len(r.Diagnostics) }

// FixResult is the outcome of applying auto-fixes.
type FixResult struct {
	Fixed  []string
	Failed []FailedFix
}

// FailedFix pairs a rule id with the error its Fix returned.
type FailedFix struct {
	RuleID string
	Error  string
}

// AllSucceeded reports whether every attempted fix succeeded.
func (r FixResult) AllSucceeded() bool { return len(r.Failed) == 0 }

// FixedCount is how many fixes were successfully applied.
func (r FixResult) FixedCount() int { return len(r.Fixed) }

// RuleInfo describes one registered rule, for introspection/listing.
type RuleInfo struct {
	ID              string
	Name            string
	Description     string
	Category        RuleCategory
	DefaultSeverity Severity
	CanFix          bool
	Disabled        bool
}

// Engine runs its registered rules, in registration order, against a
// ValidationContext.
type Engine struct {
	rules  []ValidationRule
	config ValidationConfig
	log    *logging.Logger
}

// NewEngine builds an engine with the given config and no rules
// registered yet.
func NewEngine(config ValidationConfig) *Engine {
	return &Engine{config: config, log: logging.Get(logging.CategoryLint)}
}

// WithDefaults builds an engine with a default config, registering
// every rule DefaultRules returns.
func WithDefaults() *Engine {
	e := NewEngine(NewValidationConfig())
	for _, r := range DefaultRules() {
		e.Register(r)
	}
	return e
}

// Register appends rule to the engine's rule list.
func (e *Engine) Register(rule ValidationRule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the engine's registered rules, in registration order.
func (e *Engine) Rules() []ValidationRule {
	return e.rules
}

// Config returns the engine's active config.
func (e *Engine) Config() ValidationConfig { return e.config }

// SetConfig replaces the engine's config.
func (e *Engine) SetConfig(cfg ValidationConfig) { e.config = cfg }

// Validate runs every registered, non-disabled rule against sk, with
// no repository access.
func (e *Engine) Validate(sk *skill.Skill) ValidationResult {
	return e.ValidateWithContext(NewValidationContext(sk, e.config))
}

// ValidateWithContext runs every registered, non-disabled rule in
// registration order, applying severity overrides and strict-mode
// promotion, and stopping once max_errors errors have accumulated.
func (e *Engine) ValidateWithContext(ctx *ValidationContext) ValidationResult {
	result := ValidationResult{Passed: true}
	errorCount := 0

	for _, rule := range e.rules {
		if e.config.IsRuleDisabled(rule.ID()) {
			continue
		}

		for _, diag := range rule.Validate(ctx) {
			diag.Severity = e.config.EffectiveSeverity(diag.RuleID, diag.Severity)
			if diag.Severity == SeverityError {
				errorCount++
			}
			result.Diagnostics = append(result.Diagnostics, diag)

			if max := e.config.MaxErrors(); max > 0 && errorCount >= max {
				result.Truncated = true
				result.Passed = false
				return result
			}
		}
	}

	result.Passed = errorCount == 0
	return result
}

// AutoFix applies every fixable, non-disabled rule's fix to sk in
// place, for diagnostics that were marked FixAvailable.
func (e *Engine) AutoFix(sk *skill.Skill) FixResult {
	var result FixResult
	ctx := NewValidationContext(sk, e.config)

	type pending struct {
		ruleID string
		rule   ValidationRule
		diag   Diagnostic
	}
	var work []pending
	for _, rule := range e.rules {
		if !rule.CanFix() || e.config.IsRuleDisabled(rule.ID()) {
			continue
		}
		for _, diag := range rule.Validate(ctx) {
			if diag.FixAvailable {
				work = append(work, pending{ruleID: rule.ID(), rule: rule, diag: diag})
			}
		}
	}

	for _, p := range work {
		if err := p.rule.Fix(sk, p.diag); err != nil {
			result.Failed = append(result.Failed, FailedFix{RuleID: p.ruleID, Error: err.Error()})
			continue
		}
		result.Fixed = append(result.Fixed, p.ruleID)
	}
	return result
}

// ListRules reports every registered rule's identity and enable state.
func (e *Engine) ListRules() []RuleInfo {
	out := make([]RuleInfo, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, RuleInfo{
			ID:              r.ID(),
			Name:            r.Name(),
			Description:     r.Description(),
			Category:        r.Category(),
			DefaultSeverity: r.DefaultSeverity(),
			CanFix:          r.CanFix(),
			Disabled:        e.config.IsRuleDisabled(r.ID()),
		})
	}
	return out
}
