package generation

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/pipeline"
)

const minKeywordLength = 4

var (
	bulletPrefix  = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
	modalVerb     = regexp.MustCompile(`(?i)\b(?:shall|must|should|will|required to)\b`)
	sentenceBreak = regexp.MustCompile(`[.!?](?:\s+|$)`)
	wordPattern   = regexp.MustCompile(`[A-Za-z][A-Za-z0-9-]*`)
)

var stopWords = map[string]bool{
	"shall": true, "must": true, "should": true, "will": true, "with": true,
	"that": true, "this": true, "from": true, "into": true, "each": true,
	"every": true, "when": true, "than": true, "then": true, "have": true,
	"there": true, "their": true, "which": true, "other": true, "under": true,
	"over": true, "also": true, "been": true, "being": true, "such": true,
	"only": true, "able": true, "support": true, "system": true,
}

var kindKeywords = []struct {
	kind  RequirementKind
	words []string
}{
	{KindPerformance, []string{"latency", "throughput", "performance", "jitter", "per second", "ms", "gbps", "mbps"}},
	{KindSecurity, []string{"security", "authentication", "encryption", "integrity", "ciphering"}},
	{KindInterface, []string{"interface", "api", "protocol", "message"}},
	{KindFunctional, []string{"shall", "must", "implement", "provide", "support"}},
}

// NormalizeRequirements converts document sections into requirement records.
// Requirement and interface sections contribute every list item or line;
// narrative sections contribute only sentences with a modal verb; acronym
// sections contribute nothing. IDs are REQ-<section ref>-<nnn>, numbered per
// section in document order; repeated titles get distinct refs.
func NormalizeRequirements(doc domain.Document) []Requirement {
	var reqs []Requirement
	refs := doc.SectionRefs()
	for si, s := range doc.Sections {
		ref := refs[si]
		acceptance := strings.Contains(ref, "acceptance") || strings.Contains(ref, "verification")
		var texts []string
		switch s.Kind {
		case domain.SectionRequirement, domain.SectionInterfaceSpec:
			texts = itemLines(s.Body)
		case domain.SectionNarrative:
			for _, sent := range sentences(s.Body) {
				if modalVerb.MatchString(sent) {
					texts = append(texts, sent)
				}
			}
		}
		for i, t := range texts {
			kind := classify(t)
			switch {
			case acceptance:
				kind = KindAcceptance
			case s.Kind == domain.SectionInterfaceSpec && kind != KindPerformance:
				kind = KindInterface
			}
			reqs = append(reqs, Requirement{
				ID:         fmt.Sprintf("REQ-%s-%03d", ref, i+1),
				SectionRef: ref,
				Kind:       kind,
				Text:       t,
				Keywords:   keywords(t),
			})
		}
	}
	return reqs
}

func itemLines(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func sentences(body string) []string {
	var out []string
	for _, s := range sentenceBreak.Split(strings.ReplaceAll(body, "\n", " "), -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func classify(text string) RequirementKind {
	lower := " " + strings.ToLower(text) + " "
	for _, k := range kindKeywords {
		for _, w := range k.words {
			if strings.Contains(lower, " "+w+" ") || strings.Contains(lower, " "+w+".") || strings.Contains(lower, " "+w+",") {
				return k.kind
			}
		}
	}
	return KindNonFunctional
}

// keywords returns the distinct lowercased content words of text, sorted.
func keywords(text string) []string {
	var out []string
	for _, w := range wordPattern.FindAllString(text, -1) {
		w = strings.ToLower(w)
		if len(w) < minKeywordLength || stopWords[w] || slices.Contains(out, w) {
			continue
		}
		out = append(out, w)
	}
	slices.Sort(out)
	return out
}

// renderRequirements lists requirements grouped by kind in a fixed order.
func renderRequirements(reqs []Requirement) string {
	if len(reqs) == 0 {
		return "The document states no explicit requirements; derive them from the design narrative."
	}
	order := []RequirementKind{KindFunctional, KindInterface, KindPerformance, KindSecurity, KindNonFunctional, KindAcceptance}
	var b strings.Builder
	for _, kind := range order {
		var lines []string
		for _, r := range reqs {
			if r.Kind == kind {
				lines = append(lines, fmt.Sprintf("- [%s] %s", r.ID, r.Text))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n%s\n\n", titleCase(string(kind)), strings.Join(lines, "\n"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// renderFindings carries non-blocking validation findings into the prompt.
func renderFindings(findings []domain.Finding) string {
	var b strings.Builder
	for _, f := range findings {
		if f.Severity == domain.SeverityError {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.Severity, f.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderOverview summarizes every non-acronym section. It is added when a
// retry targets completeness.
func renderOverview(doc domain.Document) string {
	var b strings.Builder
	for _, s := range doc.Sections {
		if s.Kind == domain.SectionAcronym {
			continue
		}
		body := strings.Join(strings.Fields(s.Body), " ")
		fmt.Fprintf(&b, "#### %s\n%s\n\n", s.Title, body)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newDocumentTransformStage() pipeline.Stage {
	return pipeline.NewStage(pipeline.Spec{
		Name:         StageDocumentTransform,
		Capabilities: pipeline.CapTransforms,
		Requires:     []pipeline.Field{pipeline.FieldDocument, pipeline.FieldReport, pipeline.FieldArtifact},
		Produces:     []pipeline.Field{pipeline.FieldRequirements, pipeline.FieldArtifact},
	}, func(_ context.Context, in pipeline.Bundle, _ *knowledge.Snapshot) (pipeline.Bundle, error) {
		doc, err := pipeline.Value[domain.Document](in, pipeline.FieldDocument)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		report, err := pipeline.Value[domain.ValidationReport](in, pipeline.FieldReport)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		artifact, err := pipeline.Value[domain.WorkingArtifact](in, pipeline.FieldArtifact)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		hint, _ := pipeline.Optional[domain.Hint](in, pipeline.FieldHint)

		reqs := NormalizeRequirements(doc)
		frag := domain.NewFragment(StageDocumentTransform, domain.FragmentRequirements, "Requirements", renderRequirements(reqs)).
			WithMetadata("count", fmt.Sprint(len(reqs)))
		artifact = artifact.Append(frag)

		if notes := renderFindings(report.Findings); notes != "" {
			note := domain.NewFragment(StageDocumentTransform, domain.FragmentAnnotation, "Validation notes", notes)
			if artifact, err = artifact.Annotate(frag.ID, note); err != nil {
				return pipeline.Bundle{}, err
			}
		}
		if hint.Dimension == domain.DimCompleteness {
			artifact = artifact.Append(domain.NewFragment(StageDocumentTransform, domain.FragmentRequirements,
				"Design overview", renderOverview(doc)))
		}

		return pipeline.NewBundle(map[pipeline.Field]any{
			pipeline.FieldRequirements: reqs,
			pipeline.FieldArtifact:     artifact,
		}), nil
	})
}
