package domain

import "fmt"

// Severity grades a validation finding.
type Severity string

// Finding severities. Any SeverityError finding blocks a run.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Rank orders severities so that error > warning > info.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// ParseSeverity converts a configuration string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityInfo, SeverityWarning, SeverityError:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// Finding is a single validation observation about the document.
type Finding struct {
	Severity   Severity `json:"severity"`
	SectionRef string   `json:"section_ref,omitempty"`
	Message    string   `json:"message"`
	RuleID     string   `json:"rule_id"`
	Check      string   `json:"check"`
}

// ValidationReport is the merged output of the validation checks.
type ValidationReport struct {
	Findings        []Finding `json:"findings"`
	Recommendations []string  `json:"recommendations,omitempty"`
}

// Blocking reports whether any finding has error severity.
func (r ValidationReport) Blocking() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// BySeverity returns the findings with exactly severity s, in report order.
func (r ValidationReport) BySeverity(s Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

// Count returns the number of findings with severity s.
func (r ValidationReport) Count(s Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == s {
			n++
		}
	}
	return n
}
