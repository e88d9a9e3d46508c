// Package domain defines the core types that flow through a prompt run:
// the input design document, validation findings, the working prompt
// artifact, quality scores, typed diagnostics, and the run record that is
// persisted once a run terminates.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// SectionKind tags a document section with its role in the design document.
type SectionKind string

// Section kinds recognized by the pipeline.
const (
	SectionRequirement   SectionKind = "requirement"
	SectionInterfaceSpec SectionKind = "interface-spec"
	SectionAcronym       SectionKind = "acronym"
	SectionNarrative     SectionKind = "narrative"
)

// Valid reports whether k is one of the known section kinds.
func (k SectionKind) Valid() bool {
	switch k {
	case SectionRequirement, SectionInterfaceSpec, SectionAcronym, SectionNarrative:
		return true
	default:
		return false
	}
}

// Section is a titled block of free text within a Document.
type Section struct {
	Title string      `json:"title" validate:"required"`
	Body  string      `json:"body"`
	Kind  SectionKind `json:"kind"  validate:"required,oneof=requirement interface-spec acronym narrative"`
}

// Ref returns the normalized reference used by findings and requirement IDs.
func (s Section) Ref() string { return NormalizeTitle(s.Title) }

// Document is the input design document. It is treated as immutable for the
// lifetime of a run; callers that need to change it should build a new one.
type Document struct {
	Name     string    `json:"name,omitempty"`
	Sections []Section `json:"sections" validate:"required,min=1,dive"`
}

// SectionRefs returns one reference per section, in order. A repeated
// title gets a -2, -3, ... suffix so every section keeps its own identity.
func (d Document) SectionRefs() []string {
	refs := make([]string, len(d.Sections))
	taken := make(map[string]bool, len(d.Sections))
	for i, s := range d.Sections {
		ref := s.Ref()
		for n := 2; taken[ref]; n++ {
			ref = fmt.Sprintf("%s-%d", s.Ref(), n)
		}
		taken[ref] = true
		refs[i] = ref
	}
	return refs
}

// Validate checks structural well-formedness of the document.
func (d Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := Document{Name: d.Name, Sections: make([]Section, len(d.Sections))}
	copy(out.Sections, d.Sections)
	return out
}

// Fingerprint returns a stable hex-encoded SHA-256 over the section content.
// Whitespace differences at the edges of titles and bodies do not change it.
func (d Document) Fingerprint() string {
	h := sha256.New()
	for _, s := range d.Sections {
		h.Write([]byte(strings.TrimSpace(s.Title)))
		h.Write([]byte{0})
		h.Write([]byte(s.Kind))
		h.Write([]byte{0})
		h.Write([]byte(strings.TrimSpace(s.Body)))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SectionsOfKind returns the sections tagged with kind, in document order.
func (d Document) SectionsOfKind(kind SectionKind) []Section {
	var out []Section
	for _, s := range d.Sections {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Text concatenates every title and body. Used by whole-document scans.
func (d Document) Text() string {
	var b strings.Builder
	for _, s := range d.Sections {
		b.WriteString(s.Title)
		b.WriteByte('\n')
		b.WriteString(s.Body)
		b.WriteByte('\n')
	}
	return b.String()
}

// NormalizeTitle lowercases title and collapses every run of non-alphanumeric
// characters into a single hyphen: "Functional Requirements" becomes
// "functional-requirements".
func NormalizeTitle(title string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
