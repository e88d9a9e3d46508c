package output

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ahrav/go-dldprompt/internal/ingest"
)

// Slot is a canonical prompt section.
type Slot string

// Canonical sections, in output order.
const (
	SlotSystemContext  Slot = "system_context"
	SlotDomainContext  Slot = "domain_context"
	SlotRequirements   Slot = "requirements"
	SlotSpecifications Slot = "technical_specifications"
	SlotConstraints    Slot = "constraints"
	SlotGuidelines     Slot = "implementation_guidelines"
	SlotExamples       Slot = "examples"
	SlotTask           Slot = "task"
	SlotDeliverables   Slot = "deliverables"
)

var slotOrder = []Slot{
	SlotSystemContext,
	SlotDomainContext,
	SlotRequirements,
	SlotSpecifications,
	SlotConstraints,
	SlotGuidelines,
	SlotExamples,
	SlotTask,
	SlotDeliverables,
}

var slotTitles = map[Slot]string{
	SlotSystemContext:  "System Context",
	SlotDomainContext:  "Domain Context",
	SlotRequirements:   "Requirements",
	SlotSpecifications: "Technical Specifications",
	SlotConstraints:    "Constraints",
	SlotGuidelines:     "Implementation Guidelines",
	SlotExamples:       "Examples",
	SlotTask:           "Task",
	SlotDeliverables:   "Deliverables",
}

// Title returns the heading used for s.
func (s Slot) Title() string { return slotTitles[s] }

// slotRules maps heading keywords to slots. The first matching rule wins, so
// narrower rules come first. Single words match as word prefixes; phrases
// match anywhere in the normalized title.
var slotRules = []struct {
	slot     Slot
	keywords []string
}{
	{SlotDeliverables, []string{"deliverable", "expected output", "output format"}},
	{SlotTask, []string{"task", "objective", "instruction"}},
	{SlotExamples, []string{"example", "sample"}},
	{SlotGuidelines, []string{"implementation", "guidance", "adjustment", "plan", "approach"}},
	{SlotDomainContext, []string{"domain", "template", "guideline", "ontology", "glossary", "acronym", "5g context"}},
	{SlotConstraints, []string{"constraint", "convention", "limitation"}},
	{SlotRequirements, []string{"requirement", "traceability", "acceptance"}},
	{SlotSpecifications, []string{"specification", "interface", "codebase", "structure", "architecture", "design"}},
	{SlotSystemContext, []string{"context", "overview", "role", "background", "introduction"}},
}

// Defaults fill canonical sections the prompt does not provide.
var Defaults = map[Slot]string{
	SlotSystemContext: "You are an expert 5G telecommunications software engineer. " +
		"Write production-quality code that follows 3GPP conventions.",
	SlotDomainContext: "- Follow the 3GPP specifications and interface definitions that apply to this component.\n" +
		"- Meet the latency and throughput targets stated in the requirements.\n" +
		"- Use standard 5G terminology such as gNB, AMF, SMF and UPF.",
	SlotTask: "Implement the functionality described above so that every listed requirement is satisfied.",
	SlotDeliverables: "- A complete, working implementation\n" +
		"- Unit tests covering each requirement\n" +
		"- A short note on any requirement that could not be met",
}

// Section is one section of a structured prompt.
type Section struct {
	// Slot is empty for sections that map to no canonical slot.
	Slot  Slot
	Title string
	Body  string
	// Default marks a section filled from Defaults.
	Default bool
}

// Key returns the identifier used in structured formats.
func (s Section) Key() string {
	if s.Slot != "" {
		return string(s.Slot)
	}
	var b strings.Builder
	for _, w := range titleWords(s.Title) {
		if b.Len() > 0 {
			b.WriteByte('_')
		}
		b.WriteString(w)
	}
	return b.String()
}

// Prompt is a prompt split into canonical sections.
type Prompt struct {
	Name     string
	Sections []Section
}

// Section returns the section for slot.
func (p Prompt) Section(slot Slot) (Section, bool) {
	for _, s := range p.Sections {
		if s.Slot == slot {
			return s, true
		}
	}
	return Section{}, false
}

// Structure parses markdown prompt text and reorders its sections into the
// canonical order. Sections sharing a slot are merged under sub-headings.
// Sections matching no slot are kept, in their original order, ahead of the
// examples. Missing slots with a default are filled from Defaults.
func Structure(prompt string) (Prompt, error) {
	doc, err := ingest.ParseMarkdown([]byte(prompt), "")
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyDocument) {
			return Prompt{}, ErrNoPrompt
		}
		return Prompt{}, fmt.Errorf("structure prompt: %w", err)
	}

	type part struct{ title, body string }
	bySlot := make(map[Slot][]part, len(slotOrder))
	var extra []Section
	for _, s := range doc.Sections {
		slot, ok := slotFor(s.Title)
		if !ok {
			extra = append(extra, Section{Title: s.Title, Body: s.Body})
			continue
		}
		bySlot[slot] = append(bySlot[slot], part{s.Title, s.Body})
	}

	out := Prompt{Name: doc.Name}
	for _, slot := range slotOrder {
		if slot == SlotExamples {
			out.Sections = append(out.Sections, extra...)
		}
		parts := bySlot[slot]
		if len(parts) == 0 {
			if def, ok := Defaults[slot]; ok {
				out.Sections = append(out.Sections, Section{Slot: slot, Title: slot.Title(), Body: def, Default: true})
			}
			continue
		}
		if len(parts) == 1 && strings.EqualFold(parts[0].title, slot.Title()) {
			out.Sections = append(out.Sections, Section{Slot: slot, Title: slot.Title(), Body: parts[0].body})
			continue
		}
		bodies := make([]string, 0, len(parts))
		for _, p := range parts {
			bodies = append(bodies, strings.TrimSpace("### "+p.title+"\n\n"+p.body))
		}
		out.Sections = append(out.Sections, Section{Slot: slot, Title: slot.Title(), Body: strings.Join(bodies, "\n\n")})
	}
	return out, nil
}

func slotFor(title string) (Slot, bool) {
	words := titleWords(title)
	joined := " " + strings.Join(words, " ") + " "
	for _, r := range slotRules {
		for _, kw := range r.keywords {
			if strings.Contains(kw, " ") {
				if strings.Contains(joined, " "+kw+" ") {
					return r.slot, true
				}
				continue
			}
			for _, w := range words {
				if strings.HasPrefix(w, kw) {
					return r.slot, true
				}
			}
		}
	}
	return "", false
}

func titleWords(title string) []string {
	return strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
