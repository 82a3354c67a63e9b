package lint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

func strPtr(s string) *string { return &s }

func validSkill() *skill.Skill {
	return &skill.Skill{
		ID:          "test-skill",
		Name:        "Test Skill",
		Description: "A skill used for testing",
		Version:     "1.0.0",
		Sections: []skill.Section{
			{
				ID:    "sec-1",
				Title: "Overview",
				Tier:  skill.TierCore,
				Blocks: []skill.Block{
					{ID: "blk-1", Kind: skill.BlockProse, Content: "some content"},
				},
			},
		},
	}
}

// fakeRepository is a hand-scripted Repository stand-in, mapping ids to
// either a skill or a not-found/other error.
type fakeRepository struct {
	skills map[string]*skill.Skill
	errs   map[string]error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{skills: make(map[string]*skill.Skill), errs: make(map[string]error)}
}

func (r *fakeRepository) GetSkillBody(_ context.Context, id string) (*skill.Skill, error) {
	if err, ok := r.errs[id]; ok {
		return nil, err
	}
	if sk, ok := r.skills[id]; ok {
		return sk, nil
	}
	return nil, mserr.New(mserr.KindSkillNotFound, "skill not found: "+id)
}

func TestEngineWithDefaultsRegistersAllRules(t *testing.T) {
	e := WithDefaults()
	assert.Len(t, e.Rules(), len(StructuralRules())+len(ReferenceRules()))
}

func TestEngineValidateEmptySkillFindsErrors(t *testing.T) {
	e := WithDefaults()
	result := e.Validate(&skill.Skill{})
	assert.False(t, result.Passed)
	assert.NotZero(t, result.ErrorCount())
}

func TestEngineValidateValidSkillPasses(t *testing.T) {
	e := WithDefaults()
	result := e.Validate(validSkill())
	assert.True(t, result.Passed)
	assert.Zero(t, result.ErrorCount())
}

func TestEngineDisabledRuleIsSkipped(t *testing.T) {
	cfg := NewValidationConfig().DisableRule("required-metadata")
	e := NewEngine(cfg)
	e.Register(RequiredMetadataRule{})

	result := e.Validate(&skill.Skill{})
	assert.Empty(t, result.Diagnostics)
}

func TestEngineStrictModePromotesWarningsToErrors(t *testing.T) {
	cfg := NewValidationConfig().Strict()
	e := NewEngine(cfg)
	e.Register(ValidVersionRule{})

	result := e.Validate(&skill.Skill{})
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, SeverityError, result.Diagnostics[0].Severity)
	assert.False(t, result.Passed)
}

func TestEngineMaxErrorsTruncates(t *testing.T) {
	cfg := NewValidationConfig().WithMaxErrors(1)
	e := NewEngine(cfg)
	e.Register(RequiredMetadataRule{})

	result := e.ValidateWithContext(NewValidationContext(&skill.Skill{}, cfg))
	assert.True(t, result.Truncated)
	assert.False(t, result.Passed)
	assert.Len(t, result.Diagnostics, 1)
}

func TestEngineListRulesReportsDisabledState(t *testing.T) {
	cfg := NewValidationConfig().DisableRule("valid-version")
	e := NewEngine(cfg)
	e.Register(RequiredMetadataRule{})
	e.Register(ValidVersionRule{})

	infos := e.ListRules()
	require.Len(t, infos, 2)
	assert.False(t, infos[0].Disabled)
	assert.True(t, infos[1].Disabled)
}

func TestEngineAutoFixAppliesDescriptionFix(t *testing.T) {
	e := NewEngine(NewValidationConfig())
	e.Register(RequiredMetadataRule{})

	sk := validSkill()
	sk.Description = ""

	result := e.AutoFix(sk)
	assert.True(t, result.AllSucceeded())
	assert.Equal(t, 1, result.FixedCount())
	assert.NotEmpty(t, sk.Description)
}

func TestEngineAutoFixSkipsDiagnosticsWithoutFix(t *testing.T) {
	e := NewEngine(NewValidationConfig())
	e.Register(RequiredMetadataRule{})

	sk := validSkill()
	sk.ID = ""
	sk.Name = ""

	result := e.AutoFix(sk)
	assert.True(t, result.AllSucceeded())
	assert.Empty(t, result.Failed)
}

func TestValidationResultFilters(t *testing.T) {
	result := ValidationResult{Diagnostics: []Diagnostic{
		Error("a", "e1").WithCategory(CategoryStructure),
		Warning("b", "w1").WithCategory(CategoryReference),
		Info("c", "i1").WithCategory(CategoryStructure),
	}}
	assert.Len(t, result.Errors(), 1)
	assert.Len(t, result.Warnings(), 1)
	assert.Len(t, result.Infos(), 1)
	assert.Len(t, result.ByCategory(CategoryStructure), 2)
	assert.Equal(t, 3, result.TotalCount())
}

func TestRequiredMetadataRuleMissingFields(t *testing.T) {
	diags := RequiredMetadataRule{}.Validate(NewValidationContext(&skill.Skill{}, NewValidationConfig()))
	require.Len(t, diags, 3)
	for _, d := range diags {
		assert.Equal(t, "required-metadata", d.RuleID)
	}
}

func TestRequiredMetadataRuleValidSkillHasNoDiagnostics(t *testing.T) {
	diags := RequiredMetadataRule{}.Validate(NewValidationContext(validSkill(), NewValidationConfig()))
	assert.Empty(t, diags)
}

func TestValidVersionRuleAcceptsSemver(t *testing.T) {
	sk := validSkill()
	sk.Version = "2.1.3"
	diags := ValidVersionRule{}.Validate(NewValidationContext(sk, NewValidationConfig()))
	assert.Empty(t, diags)
}

func TestValidVersionRuleRejectsMalformed(t *testing.T) {
	sk := validSkill()
	sk.Version = "v1"
	diags := ValidVersionRule{}.Validate(NewValidationContext(sk, NewValidationConfig()))
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityWarning, diags[0].Severity)
}

func TestUniqueSectionIDsRuleDetectsDuplicate(t *testing.T) {
	sk := validSkill()
	sk.Sections = append(sk.Sections, skill.Section{ID: "sec-1", Title: "Dup"})
	diags := UniqueSectionIDsRule{}.Validate(NewValidationContext(sk, NewValidationConfig()))
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityError, diags[0].Severity)
}

func TestUniqueSectionIDsRuleValidHasNoDiagnostics(t *testing.T) {
	diags := UniqueSectionIDsRule{}.Validate(NewValidationContext(validSkill(), NewValidationConfig()))
	assert.Empty(t, diags)
}

func TestUniqueBlockIDsRuleDetectsDuplicateWithinSection(t *testing.T) {
	sk := validSkill()
	sk.Sections[0].Blocks = append(sk.Sections[0].Blocks, skill.Block{ID: "blk-1", Kind: skill.BlockProse, Content: "x"})
	diags := UniqueBlockIDsRule{}.Validate(NewValidationContext(sk, NewValidationConfig()))
	require.Len(t, diags, 1)
}

func TestNonEmptyBlocksRuleFlagsBlankContent(t *testing.T) {
	sk := validSkill()
	sk.Sections[0].Blocks = append(sk.Sections[0].Blocks, skill.Block{ID: "blk-2", Kind: skill.BlockProse, Content: "   "})
	diags := NonEmptyBlocksRule{}.Validate(NewValidationContext(sk, NewValidationConfig()))
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityWarning, diags[0].Severity)
}

func TestValidExtendsRuleNoExtendsIsClean(t *testing.T) {
	diags := ValidExtendsRule{}.Validate(NewValidationContext(validSkill(), NewValidationConfig()))
	assert.Empty(t, diags)
}

func TestValidExtendsRuleNoRepositoryReportsInfo(t *testing.T) {
	sk := validSkill()
	sk.Extends = strPtr("parent-skill")
	diags := ValidExtendsRule{}.Validate(NewValidationContext(sk, NewValidationConfig()))
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityInfo, diags[0].Severity)
}

func TestValidExtendsRuleFoundParentIsClean(t *testing.T) {
	sk := validSkill()
	sk.Extends = strPtr("parent-skill")
	repo := newFakeRepository()
	repo.skills["parent-skill"] = validSkill()

	diags := ValidExtendsRule{}.Validate(NewValidationContext(sk, NewValidationConfig()).WithRepository(repo))
	assert.Empty(t, diags)
}

func TestValidExtendsRuleMissingParentIsError(t *testing.T) {
	sk := validSkill()
	sk.Extends = strPtr("missing-parent")
	repo := newFakeRepository()

	diags := ValidExtendsRule{}.Validate(NewValidationContext(sk, NewValidationConfig()).WithRepository(repo))
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityError, diags[0].Severity)
}

func TestValidExtendsRuleOtherErrorIsWarning(t *testing.T) {
	sk := validSkill()
	sk.Extends = strPtr("broken-parent")
	repo := newFakeRepository()
	repo.errs["broken-parent"] = mserr.New(mserr.KindIO, "disk on fire")

	diags := ValidExtendsRule{}.Validate(NewValidationContext(sk, NewValidationConfig()).WithRepository(repo))
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityWarning, diags[0].Severity)
}

func TestNoCycleRuleNoCycleIsClean(t *testing.T) {
	sk := validSkill()
	sk.Extends = strPtr("parent-skill")
	repo := newFakeRepository()
	repo.skills["parent-skill"] = validSkill()

	diags := NoCycleRule{}.Validate(NewValidationContext(sk, NewValidationConfig()).WithRepository(repo))
	assert.Empty(t, diags)
}

func TestNoCycleRuleDetectsCycle(t *testing.T) {
	a := validSkill()
	a.ID = "a"
	a.Extends = strPtr("b")
	b := validSkill()
	b.ID = "b"
	b.Extends = strPtr("a")

	repo := newFakeRepository()
	repo.skills["a"] = a
	repo.skills["b"] = b

	diags := NoCycleRule{}.Validate(NewValidationContext(a, NewValidationConfig()).WithRepository(repo))
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityError, diags[0].Severity)
	assert.Contains(t, diags[0].Message, "a")
}

func TestNoCycleRuleNoRepositoryReportsInfo(t *testing.T) {
	sk := validSkill()
	sk.Extends = strPtr("parent-skill")
	diags := NoCycleRule{}.Validate(NewValidationContext(sk, NewValidationConfig()))
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityInfo, diags[0].Severity)
}

func TestDeepInheritanceRuleShallowChainIsClean(t *testing.T) {
	sk := validSkill()
	sk.ID = "child"
	sk.Extends = strPtr("parent-skill")
	repo := newFakeRepository()
	repo.skills["parent-skill"] = validSkill()

	diags := DeepInheritanceRule{MaxDepth: maxRecommendedDepth}.Validate(NewValidationContext(sk, NewValidationConfig()).WithRepository(repo))
	assert.Empty(t, diags)
}

func TestDeepInheritanceRuleDeepChainWarns(t *testing.T) {
	repo := newFakeRepository()
	const chainLen = 5
	var prevID *string
	for i := chainLen; i >= 0; i-- {
		sk := validSkill()
		sk.ID = depthNodeID(i)
		sk.Extends = prevID
		repo.skills[sk.ID] = sk
		id := sk.ID
		prevID = &id
	}
	root := repo.skills[depthNodeID(0)]

	diags := DeepInheritanceRule{MaxDepth: 2}.Validate(NewValidationContext(root, NewValidationConfig()).WithRepository(repo))
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityWarning, diags[0].Severity)
}

func depthNodeID(i int) string {
	return "node-" + string(rune('a'+i))
}

func TestDeepInheritanceRuleNoRepositoryReportsInfo(t *testing.T) {
	sk := validSkill()
	sk.Extends = strPtr("parent-skill")
	diags := DeepInheritanceRule{MaxDepth: maxRecommendedDepth}.Validate(NewValidationContext(sk, NewValidationConfig()))
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityInfo, diags[0].Severity)
}

func TestDefaultRulesOmitsFormatVersionRule(t *testing.T) {
	for _, r := range DefaultRules() {
		assert.NotEqual(t, "format-version", r.ID())
	}
}
