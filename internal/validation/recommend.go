package validation

import (
	"fmt"
	"strings"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

// Recommend turns findings into document-level advice, one line per concern,
// in a stable order.
func Recommend(findings []domain.Finding) []string {
	var (
		missing       []string
		entities      int
		acronyms      int
		conflicts     int
		contradiction int
		empty         int
	)
	for _, f := range findings {
		switch f.RuleID {
		case RuleMissingSection:
			missing = append(missing, f.SectionRef)
		case RuleEmptySection:
			empty++
		case RuleUndefinedEntity:
			entities++
		case RuleUndefinedAcronym:
			acronyms++
		case RuleConflictingClaim:
			conflicts++
		case RuleContradiction:
			contradiction++
		}
	}

	var out []string
	if len(missing) > 0 {
		out = append(out, "Add missing sections: "+strings.Join(missing, ", "))
	}
	if empty > 0 {
		out = append(out, "Fill in the empty sections with concrete design detail")
	}
	if entities > 0 {
		out = append(out, fmt.Sprintf("Define the %d referenced interface(s) in an interface specification section", entities))
	}
	if acronyms > 0 {
		out = append(out, "Add an acronym section or expand acronyms on first use")
	}
	if conflicts > 0 || contradiction > 0 {
		out = append(out, "Review and resolve potential inconsistencies in the document")
	}
	return out
}
