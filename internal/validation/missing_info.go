package validation

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
)

// Missing-information rule IDs.
const (
	RuleUndefinedEntity  = "missing-info.undefined-entity"
	RuleUndefinedAcronym = "missing-info.undefined-acronym"
)

var (
	acronymPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,5}\b`)
	// "Access and Mobility Management Function (AMF)" or "AMF: ..." in an
	// acronym section.
	inlineDefinition = regexp.MustCompile(`\(([A-Z][A-Z0-9]{1,5})\)`)
	listDefinition   = regexp.MustCompile(`(?m)^\s*[-*]?\s*([A-Z][A-Z0-9]{1,5})\s*[:=\-]`)
)

// MissingInfoCheck reports entities and acronyms that are referenced but
// never defined.
//
// An interface entity is defined when it appears in an interface-spec
// section. An acronym is defined by an acronym section, by an inline
// "Expansion (ACR)" anywhere in the document, or by an ontology entry
// keyed acronym/<ACR> in the knowledge snapshot.
type MissingInfoCheck struct {
	entities []*regexp.Regexp
}

// NewMissingInfoCheck compiles the entity patterns.
func NewMissingInfoCheck(patterns []string) (*MissingInfoCheck, error) {
	c := &MissingInfoCheck{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: entity pattern %q: %w", ErrInvalidConfig, p, err)
		}
		c.entities = append(c.entities, re)
	}
	return c, nil
}

// Name implements Check.
func (c *MissingInfoCheck) Name() string { return CheckMissingInfo }

// Run implements Check. Each undefined name is reported once, against the
// first section that references it.
func (c *MissingInfoCheck) Run(ctx context.Context, doc domain.Document, snap *knowledge.Snapshot) ([]domain.Finding, error) {
	defined := c.definedEntities(doc)
	acronyms := definedAcronyms(doc)

	var findings []domain.Finding
	reported := make(map[string]bool)
	for _, s := range doc.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.Kind == domain.SectionInterfaceSpec {
			continue
		}
		for _, re := range c.entities {
			for _, name := range re.FindAllString(s.Body, -1) {
				if defined[name] || reported["e:"+name] {
					continue
				}
				reported["e:"+name] = true
				findings = append(findings, domain.Finding{
					Severity:   domain.SeverityWarning,
					SectionRef: s.Ref(),
					Message:    fmt.Sprintf("undefined-entity: %s is referenced but no interface section defines it", name),
					RuleID:     RuleUndefinedEntity,
				})
			}
		}
		if s.Kind == domain.SectionAcronym {
			continue
		}
		for _, acr := range acronymPattern.FindAllString(s.Body, -1) {
			if acronyms[acr] || reported["a:"+acr] || c.isEntity(acr) {
				continue
			}
			if _, ok := snap.Get(knowledge.CategoryOntology, "acronym/"+strings.ToUpper(acr)); ok {
				continue
			}
			reported["a:"+acr] = true
			findings = append(findings, domain.Finding{
				Severity:   domain.SeverityInfo,
				SectionRef: s.Ref(),
				Message:    fmt.Sprintf("undefined-acronym: %s", acr),
				RuleID:     RuleUndefinedAcronym,
			})
		}
	}
	return findings, nil
}

func (c *MissingInfoCheck) definedEntities(doc domain.Document) map[string]bool {
	defined := make(map[string]bool)
	for _, s := range doc.SectionsOfKind(domain.SectionInterfaceSpec) {
		text := s.Title + "\n" + s.Body
		for _, re := range c.entities {
			for _, name := range re.FindAllString(text, -1) {
				defined[name] = true
			}
		}
	}
	return defined
}

func (c *MissingInfoCheck) isEntity(s string) bool {
	return slices.ContainsFunc(c.entities, func(re *regexp.Regexp) bool {
		loc := re.FindStringIndex(s)
		return loc != nil && loc[0] == 0 && loc[1] == len(s)
	})
}

func definedAcronyms(doc domain.Document) map[string]bool {
	defined := make(map[string]bool)
	for _, s := range doc.Sections {
		for _, m := range inlineDefinition.FindAllStringSubmatch(s.Body, -1) {
			defined[m[1]] = true
		}
		if s.Kind != domain.SectionAcronym {
			continue
		}
		for _, m := range listDefinition.FindAllStringSubmatch(s.Body, -1) {
			defined[m[1]] = true
		}
	}
	return defined
}
