package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkingArtifact_AppendIsCopyOnWrite(t *testing.T) {
	base := NewWorkingArtifact().
		Append(NewFragment("structure", FragmentStructure, "Layout", "src/ holds the code"))

	left := base.Append(NewFragment("rules", FragmentConvention, "Conventions", "use gofmt"))
	right := base.Append(NewFragment("rules", FragmentConvention, "Conventions", "tabs only"))

	assert.Equal(t, 1, base.Len(), "appending must not grow the receiver")
	require.Equal(t, 2, left.Len())
	require.Equal(t, 2, right.Len())
	assert.Equal(t, "use gofmt", left.Fragments()[1].Content)
	assert.Equal(t, "tabs only", right.Fragments()[1].Content)
	assert.True(t, base.IsPrefixOf(left))
	assert.True(t, base.IsPrefixOf(right))
	assert.False(t, left.IsPrefixOf(right))
}

func TestWorkingArtifact_FragmentsAreDefensiveCopies(t *testing.T) {
	a := NewWorkingArtifact().Append(
		NewFragment("context", FragmentDomainContext, "RAN", "gNB split").WithMetadata("tag", "ran"),
	)

	frags := a.Fragments()
	frags[0].Content = "mutated"
	frags[0].Metadata["tag"] = "core"

	got := a.Fragments()[0]
	assert.Equal(t, "gNB split", got.Content)
	assert.Equal(t, "ran", got.Metadata["tag"])
}

func TestWorkingArtifact_Annotate(t *testing.T) {
	target := NewFragment("transform", FragmentRequirements, "Requirements", "REQ-1")
	a := NewWorkingArtifact().Append(target)

	annotated, err := a.Annotate(target.ID, NewFragment("mapping", FragmentTraceability, "", "REQ-1 -> unmapped"))
	require.NoError(t, err)
	require.Equal(t, 2, annotated.Len())

	note := annotated.Fragments()[1]
	assert.Equal(t, FragmentAnnotation, note.Kind)
	assert.Equal(t, target.ID, note.Annotates)

	_, err = a.Annotate("missing", NewFragment("mapping", FragmentTraceability, "", "x"))
	require.ErrorIs(t, err, ErrFragmentNotFound)
}

func TestNewFragment_Deterministic(t *testing.T) {
	a := NewFragment("context", FragmentDomainContext, "Core", "AMF handles N1")
	b := NewFragment("context", FragmentDomainContext, "Core", "AMF handles N1")
	c := NewFragment("context", FragmentDomainContext, "Core", "SMF handles N4")

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestWorkingArtifact_PromptPrefersTransformed(t *testing.T) {
	a := NewWorkingArtifact().
		Append(NewFragment("transform", FragmentRequirements, "Requirements", "- REQ-1"))
	assert.Contains(t, a.Prompt(), "## Requirements")

	a = a.Append(NewFragment("enhancement", FragmentTransformed, "", "polished prompt"))
	assert.Equal(t, "polished prompt", a.Prompt())
	assert.NotContains(t, a.Render(), "polished prompt")
}

func TestWorkingArtifact_JSON(t *testing.T) {
	a := NewWorkingArtifact().
		Append(NewFragment("structure", FragmentStructure, "Layout", "cmd/ and internal/"))

	data, err := json.Marshal(a)
	require.NoError(t, err)

	var decoded WorkingArtifact
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, a.Fragments(), decoded.Fragments())

	empty, err := json.Marshal(NewWorkingArtifact())
	require.NoError(t, err)
	assert.JSONEq(t, `{"fragments":[]}`, string(empty))
}
