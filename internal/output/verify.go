package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Length bounds outside which Verify suggests revising the prompt.
const (
	MinLength = 500
	MaxLength = 20000
)

// domainTerms are the vocabulary a 5G prompt is expected to use.
var domainTerms = []string{"5G", "3GPP", "gNB", "gNodeB", "NR", "RAN", "AMF", "SMF", "UPF"}

// requiredSlots must come from the prompt itself, not from Defaults.
var requiredSlots = []Slot{SlotRequirements}

// Verification is the outcome of checking a formatted prompt. Issues make
// the output invalid; suggestions only lower the score.
type Verification struct {
	Valid       bool     `json:"valid"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Score       float64  `json:"score"`
}

// Verify checks the structured prompt p and its rendering content for t.
// The score starts at 1 and loses 0.2 per issue and 0.1 per suggestion.
func Verify(p Prompt, content string, t Target) Verification {
	var v Verification
	if strings.TrimSpace(content) == "" {
		v.Issues = append(v.Issues, "output is empty")
	}
	if t == TargetJSON && content != "" && !json.Valid([]byte(content)) {
		v.Issues = append(v.Issues, "output is not valid JSON")
	}
	for _, slot := range requiredSlots {
		if s, ok := p.Section(slot); !ok || s.Default || strings.TrimSpace(s.Body) == "" {
			v.Issues = append(v.Issues, fmt.Sprintf("missing %s section", slot.Title()))
		}
	}

	var own strings.Builder
	for _, s := range p.Sections {
		if s.Default {
			v.Suggestions = append(v.Suggestions, fmt.Sprintf("%s uses generic default text", s.Title))
			continue
		}
		own.WriteString(s.Title)
		own.WriteByte('\n')
		own.WriteString(s.Body)
		own.WriteByte('\n')
	}
	if !mentionsAny(own.String(), domainTerms) {
		v.Suggestions = append(v.Suggestions, "prompt uses no 5G domain terms")
	}
	switch n := len(content); {
	case n < MinLength:
		v.Suggestions = append(v.Suggestions, fmt.Sprintf("prompt is short (%d bytes); add more detail", n))
	case n > MaxLength:
		v.Suggestions = append(v.Suggestions, fmt.Sprintf("prompt is long (%d bytes); consider trimming", n))
	}

	v.Valid = len(v.Issues) == 0
	v.Score = max(0, 1-0.2*float64(len(v.Issues))-0.1*float64(len(v.Suggestions)))
	return v
}

// mentionsAny reports whether s contains any term as a whole word.
func mentionsAny(s string, terms []string) bool {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	for _, t := range terms {
		if set[t] {
			return true
		}
	}
	return false
}
