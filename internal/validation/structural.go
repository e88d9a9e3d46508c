package validation

import (
	"context"
	"strings"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
)

// Structural rule IDs.
const (
	RuleMissingSection = "structural.missing-section"
	RuleEmptySection   = "structural.empty-section"
)

// StructuralCheck verifies that every required section is present.
type StructuralCheck struct {
	required []RequiredSection
}

// NewStructuralCheck creates the check for the given required sections.
func NewStructuralCheck(required []RequiredSection) *StructuralCheck {
	return &StructuralCheck{required: required}
}

// Name implements Check.
func (c *StructuralCheck) Name() string { return CheckStructural }

// Run implements Check. A missing section is an error finding with message
// "missing-section: <id>"; a present section with an empty body is a warning.
func (c *StructuralCheck) Run(_ context.Context, doc domain.Document, _ *knowledge.Snapshot) ([]domain.Finding, error) {
	var findings []domain.Finding
	for _, rs := range c.required {
		sec, ok := matchSection(doc, rs)
		if !ok {
			findings = append(findings, domain.Finding{
				Severity:   domain.SeverityError,
				SectionRef: rs.ID,
				Message:    "missing-section: " + rs.ID,
				RuleID:     RuleMissingSection,
			})
			continue
		}
		if strings.TrimSpace(sec.Body) == "" {
			findings = append(findings, domain.Finding{
				Severity:   domain.SeverityWarning,
				SectionRef: sec.Ref(),
				Message:    "empty-section: " + rs.ID,
				RuleID:     RuleEmptySection,
			})
		}
	}
	return findings, nil
}

// matchSection finds the first section whose normalized title equals the
// required ID or contains one of its aliases as a whole-word phrase.
func matchSection(doc domain.Document, rs RequiredSection) (domain.Section, bool) {
	for _, s := range doc.Sections {
		title := "-" + s.Ref() + "-"
		if strings.Contains(title, "-"+rs.ID+"-") {
			return s, true
		}
		for _, alias := range rs.Aliases {
			a := domain.NormalizeTitle(alias)
			if a != "" && strings.Contains(title, "-"+a+"-") {
				return s, true
			}
		}
	}
	return domain.Section{}, false
}
