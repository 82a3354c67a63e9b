package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

type fakeLoader struct {
	skills map[string]*skill.Skill
}

func (f *fakeLoader) GetSkillBody(_ context.Context, id string) (*skill.Skill, error) {
	sk, ok := f.skills[id]
	if !ok {
		return nil, mserr.New(mserr.KindSkillNotFound, "not found: "+id)
	}
	return sk, nil
}

func strPtr(s string) *string { return &s }

func TestResolveNoExtendsReturnsSkillUnchanged(t *testing.T) {
	loader := &fakeLoader{skills: map[string]*skill.Skill{
		"standalone": {ID: "standalone", Name: "Standalone", Tags: []string{"go"}},
	}}
	r := New(loader)

	got, err := r.Resolve(context.Background(), "standalone")
	require.NoError(t, err)
	assert.Equal(t, "Standalone", got.Name)
}

func TestResolveMergesScalarsWithChildPrecedence(t *testing.T) {
	loader := &fakeLoader{skills: map[string]*skill.Skill{
		"base":  {ID: "base", Name: "Base", Description: "base description", Version: "1.0.0"},
		"child": {ID: "child", Name: "Child", Extends: strPtr("base")},
	}}
	r := New(loader)

	got, err := r.Resolve(context.Background(), "child")
	require.NoError(t, err)
	assert.Equal(t, "Child", got.Name)
	assert.Equal(t, "base description", got.Description)
	assert.Equal(t, "1.0.0", got.Version)
}

func TestResolveUnionsTagsAndProvides(t *testing.T) {
	loader := &fakeLoader{skills: map[string]*skill.Skill{
		"base":  {ID: "base", Tags: []string{"go", "testing"}, Provides: []string{"go-tests"}},
		"child": {ID: "child", Tags: []string{"testing", "mocks"}, Extends: strPtr("base")},
	}}
	r := New(loader)

	got, err := r.Resolve(context.Background(), "child")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"go", "testing", "mocks"}, got.Tags)
	assert.ElementsMatch(t, []string{"go-tests"}, got.Provides)
}

func TestResolveRequiresChildOrderThenParentTrailingUniques(t *testing.T) {
	loader := &fakeLoader{skills: map[string]*skill.Skill{
		"base":  {ID: "base", Requires: []string{"x", "y", "z"}},
		"child": {ID: "child", Requires: []string{"y", "a"}, Extends: strPtr("base")},
	}}
	r := New(loader)

	got, err := r.Resolve(context.Background(), "child")
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "a", "x", "z"}, got.Requires)
}

func TestResolveSectionsParentFirstChildReplacesMatchingID(t *testing.T) {
	loader := &fakeLoader{skills: map[string]*skill.Skill{
		"base": {ID: "base", Sections: []skill.Section{
			{ID: "overview", Title: "Base Overview"},
			{ID: "advanced", Title: "Base Advanced"},
		}},
		"child": {ID: "child", Extends: strPtr("base"), Sections: []skill.Section{
			{ID: "overview", Title: "Child Overview"},
			{ID: "new-section", Title: "Child New"},
		}},
	}}
	r := New(loader)

	got, err := r.Resolve(context.Background(), "child")
	require.NoError(t, err)
	require.Len(t, got.Sections, 3)
	assert.Equal(t, "Child Overview", got.Sections[0].Title)
	assert.Equal(t, "Base Advanced", got.Sections[1].Title)
	assert.Equal(t, "Child New", got.Sections[2].Title)
}

func TestResolveDetectsCycle(t *testing.T) {
	loader := &fakeLoader{skills: map[string]*skill.Skill{
		"a": {ID: "a", Extends: strPtr("b")},
		"b": {ID: "b", Extends: strPtr("a")},
	}}
	r := New(loader)

	_, err := r.Resolve(context.Background(), "a")
	require.Error(t, err)
	kind, _ := mserr.KindOf(err)
	assert.Equal(t, mserr.KindValidation, kind)
}

func TestResolveEnforcesDepthLimit(t *testing.T) {
	skills := make(map[string]*skill.Skill)
	for i := 0; i < MaxDepth+5; i++ {
		id := skillIDForDepth(i)
		sk := &skill.Skill{ID: id}
		if i > 0 {
			sk.Extends = strPtr(skillIDForDepth(i - 1))
		}
		skills[id] = sk
	}
	loader := &fakeLoader{skills: skills}
	r := New(loader)

	_, err := r.Resolve(context.Background(), skillIDForDepth(MaxDepth+4))
	require.Error(t, err)
	kind, _ := mserr.KindOf(err)
	assert.Equal(t, mserr.KindValidation, kind)
}

func TestResolveMissingAncestorPropagatesError(t *testing.T) {
	loader := &fakeLoader{skills: map[string]*skill.Skill{
		"child": {ID: "child", Extends: strPtr("missing-parent")},
	}}
	r := New(loader)

	_, err := r.Resolve(context.Background(), "child")
	require.Error(t, err)
	kind, _ := mserr.KindOf(err)
	assert.Equal(t, mserr.KindSkillNotFound, kind)
}

func skillIDForDepth(i int) string {
	return "depth-skill-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
