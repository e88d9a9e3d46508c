package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	tests := map[string]string{
		"Functional Requirements":    "functional-requirements",
		"  3.1 Interfaces (N2/N3) ":  "3-1-interfaces-n2-n3",
		"acceptance-criteria":        "acceptance-criteria",
		"Architecture":               "architecture",
		"--":                         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeTitle(in), "input %q", in)
	}
}

func TestDocument_Fingerprint(t *testing.T) {
	doc := Document{Sections: []Section{
		{Title: "Architecture", Body: "gNB with CU/DU split", Kind: SectionNarrative},
		{Title: "Interfaces", Body: "N2 towards AMF", Kind: SectionInterfaceSpec},
	}}

	t.Run("stable across clones and edge whitespace", func(t *testing.T) {
		clone := doc.Clone()
		clone.Sections[0].Body = "  gNB with CU/DU split\n"
		assert.Equal(t, doc.Fingerprint(), clone.Fingerprint())
	})

	t.Run("changes with content", func(t *testing.T) {
		clone := doc.Clone()
		clone.Sections[1].Body = "N3 towards UPF"
		assert.NotEqual(t, doc.Fingerprint(), clone.Fingerprint())
	})

	t.Run("clone does not alias sections", func(t *testing.T) {
		clone := doc.Clone()
		clone.Sections[0].Title = "Changed"
		assert.Equal(t, "Architecture", doc.Sections[0].Title)
	})
}

func TestDocument_SectionRefs(t *testing.T) {
	doc := Document{Sections: []Section{
		{Title: "Performance", Kind: SectionRequirement},
		{Title: "Performance 2", Kind: SectionRequirement},
		{Title: "Architecture", Kind: SectionNarrative},
		{Title: "performance", Kind: SectionRequirement},
		{Title: "Performance", Kind: SectionRequirement},
	}}
	assert.Equal(t, []string{
		"performance", "performance-2", "architecture", "performance-3", "performance-4",
	}, doc.SectionRefs())
}

func TestDocument_Validate(t *testing.T) {
	require.NoError(t, Document{Sections: []Section{{Title: "A", Kind: SectionNarrative}}}.Validate())

	err := Document{}.Validate()
	require.ErrorIs(t, err, ErrInvalidDocument)

	err = Document{Sections: []Section{{Title: "A", Kind: "table"}}}.Validate()
	require.ErrorIs(t, err, ErrInvalidDocument)
}

func TestDiagnostic_RootKindAndRetry(t *testing.T) {
	timeout := NewDiagnostic(ErrorKindExternalTransformTimeout, "transform", "deadline exceeded", errors.New("context deadline exceeded"))
	failed := GenerationStageFailed(6, "enhancement", timeout)

	assert.Equal(t, ErrorKindGenerationStageFailed, failed.Kind)
	assert.Equal(t, 6, failed.StageIndex)
	assert.Equal(t, ErrorKindExternalTransformTimeout, failed.RootKind())
	assert.True(t, failed.ShouldRetry())
	assert.Contains(t, failed.Error(), "#6")

	var inner *Diagnostic
	require.ErrorAs(t, failed.Unwrap(), &inner)
	assert.Equal(t, "transform", inner.Stage)

	plain := GenerationStageFailed(2, "transform", errors.New("bad record"))
	assert.True(t, plain.Retryable)
	assert.Equal(t, ErrorKindGenerationStageFailed, plain.RootKind())
}

func TestAsDiagnostic(t *testing.T) {
	assert.Nil(t, AsDiagnostic(nil, "x"))

	d := AsDiagnostic(errors.New("boom"), "rules")
	assert.Equal(t, ErrorKindStageFault, d.Kind)
	assert.Equal(t, "rules", d.Stage)
	assert.False(t, d.Retryable)

	orig := NewDiagnostic(ErrorKindExternalTransformFailure, "", "provider down", nil)
	got := AsDiagnostic(orig, "enhancement")
	assert.Equal(t, "enhancement", got.Stage)
	assert.Empty(t, orig.Stage, "original diagnostic must not be mutated")
}

func TestResultCode_ExitCode(t *testing.T) {
	assert.Equal(t, 0, CodeAccepted.ExitCode())
	assert.Equal(t, 2, CodeValidationBlocked.ExitCode())
	assert.Equal(t, 4, CodeQualityRejected.ExitCode())
	assert.Equal(t, 1, ResultCode("weird").ExitCode())
}
