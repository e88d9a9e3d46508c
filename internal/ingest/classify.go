package ingest

import (
	"strings"
	"unicode"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

type kindKeywords struct {
	kind     domain.SectionKind
	keywords []string
}

// Order breaks ties. Keywords match word prefixes, so "requirement" also
// matches "requirements".
var sectionKeywords = []kindKeywords{
	{domain.SectionAcronym, []string{"acronym", "glossary", "abbreviation", "terminology", "definition"}},
	{domain.SectionInterfaceSpec, []string{"interface", "api", "protocol", "endpoint", "signaling", "signalling"}},
	{domain.SectionRequirement, []string{"requirement", "criteria", "acceptance", "performance", "kpi", "constraint"}},
}

const (
	minBodyScore  = 4
	maxBodyCounts = 2
)

// Classify assigns a section kind from keywords. Title keywords decide when
// present; otherwise body mentions need to recur before they outweigh the
// narrative default.
func Classify(title, body string) domain.SectionKind {
	titleWords := words(title)
	bodyWords := words(body)

	best := domain.SectionNarrative
	bestTitle, bestBody := 0, 0
	for _, kk := range sectionKeywords {
		ts, bs := 0, 0
		for _, kw := range kk.keywords {
			ts += countPrefix(titleWords, kw)
			bs += min(countPrefix(bodyWords, kw), maxBodyCounts)
		}
		if ts > bestTitle || (ts == bestTitle && bs > bestBody) {
			best, bestTitle, bestBody = kk.kind, ts, bs
		}
	}
	if bestTitle == 0 && bestBody < minBodyScore {
		return domain.SectionNarrative
	}
	return best
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func countPrefix(ws []string, prefix string) int {
	n := 0
	for _, w := range ws {
		if strings.HasPrefix(w, prefix) {
			n++
		}
	}
	return n
}
