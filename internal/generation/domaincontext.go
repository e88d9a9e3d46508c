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

// Ontology key prefixes.
const (
	domainKeyPrefix  = "domain/"
	acronymKeyPrefix = "acronym/"
)

var upperToken = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,5}\b`)

// DetectDomainTags returns the sorted domain tags whose ontology keywords
// occur in the document as whole words.
func DetectDomainTags(doc domain.Document, snap *knowledge.Snapshot) []string {
	text := " " + normalizeText(doc.Text()) + " "
	var tags []string
	for _, e := range snap.List(knowledge.CategoryOntology) {
		tag, ok := strings.CutPrefix(e.Key, domainKeyPrefix)
		if !ok {
			continue
		}
		for _, kw := range e.Tags {
			if strings.Contains(text, " "+normalizeText(kw)+" ") {
				tags = append(tags, tag)
				break
			}
		}
	}
	slices.Sort(tags)
	return tags
}

// normalizeText lowercases s and collapses punctuation other than '-' into
// single spaces so keywords can be matched on word boundaries.
func normalizeText(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if r == '-' || r == '/' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r > 127 {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// glossary expands the acronyms used in the document that the ontology knows.
func glossary(doc domain.Document, snap *knowledge.Snapshot) string {
	var acrs []string
	for _, tok := range upperToken.FindAllString(doc.Text(), -1) {
		if !slices.Contains(acrs, tok) {
			acrs = append(acrs, tok)
		}
	}
	slices.Sort(acrs)
	var lines []string
	for _, a := range acrs {
		if e, ok := snap.Get(knowledge.CategoryOntology, acronymKeyPrefix+a); ok {
			lines = append(lines, fmt.Sprintf("- %s: %s", a, e.Value))
		}
	}
	return strings.Join(lines, "\n")
}

func newContextInjectionStage() pipeline.Stage {
	return pipeline.NewStage(pipeline.Spec{
		Name:         StageContextInjection,
		Capabilities: pipeline.CapTransforms,
		Requires:     []pipeline.Field{pipeline.FieldDocument, pipeline.FieldArtifact},
		Produces:     []pipeline.Field{pipeline.FieldDomainTags, pipeline.FieldArtifact},
	}, func(_ context.Context, in pipeline.Bundle, snap *knowledge.Snapshot) (pipeline.Bundle, error) {
		doc, err := pipeline.Value[domain.Document](in, pipeline.FieldDocument)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		artifact, err := pipeline.Value[domain.WorkingArtifact](in, pipeline.FieldArtifact)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		hint, _ := pipeline.Optional[domain.Hint](in, pipeline.FieldHint)

		tags := DetectDomainTags(doc, snap)
		added := 0
		for _, tag := range tags {
			for _, cat := range []knowledge.Category{knowledge.CategoryTemplate, knowledge.CategoryGuideline} {
				e, ok := snap.Get(cat, tag)
				if !ok {
					continue
				}
				title := fmt.Sprintf("%s %s", titleCase(tag), cat)
				frag := domain.NewFragment(StageContextInjection, domain.FragmentDomainContext, title, strings.TrimSpace(e.Value)).
					WithMetadata("domain", tag).
					WithMetadata("source", string(cat)+"/"+e.Key)
				artifact = artifact.Append(frag)
				added++
			}
		}

		if hint.Dimension == domain.DimTechnicalAccuracy {
			var lines []string
			for _, tag := range tags {
				if e, ok := snap.Get(knowledge.CategoryOntology, domainKeyPrefix+tag); ok {
					lines = append(lines, fmt.Sprintf("- %s: %s", tag, e.Value))
				}
			}
			if g := glossary(doc, snap); g != "" {
				lines = append(lines, "", "Acronyms:", g)
			}
			if len(lines) > 0 {
				artifact = artifact.Append(domain.NewFragment(StageContextInjection, domain.FragmentDomainContext,
					"Domain reference", strings.Join(lines, "\n")))
				added++
			}
		}

		if added == 0 {
			artifact = artifact.Append(domain.NewFragment(StageContextInjection, domain.FragmentDomainContext,
				"Domain context", "No domain-specific reference material matched this document."))
		}

		return pipeline.NewBundle(map[pipeline.Field]any{
			pipeline.FieldDomainTags: tags,
			pipeline.FieldArtifact:   artifact,
		}), nil
	})
}
