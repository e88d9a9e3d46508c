package domain

import (
	"encoding/json"
	"maps"
	"strings"

	"github.com/google/uuid"
)

// FragmentKind describes what a fragment contributes to the prompt.
type FragmentKind string

// Fragment kinds appended by the generation sub-stages.
const (
	FragmentStructure     FragmentKind = "structure"
	FragmentRequirements  FragmentKind = "requirements"
	FragmentDomainContext FragmentKind = "domain-context"
	FragmentConvention    FragmentKind = "convention"
	FragmentTraceability  FragmentKind = "traceability"
	FragmentConstraint    FragmentKind = "constraint"
	FragmentGuidance      FragmentKind = "guidance"
	FragmentAnnotation    FragmentKind = "annotation"
	FragmentTransformed   FragmentKind = "transformed"
)

// fragmentNamespace seeds deterministic fragment IDs.
var fragmentNamespace = uuid.MustParse("6f1c3c1e-8f0a-4d55-9b7e-2a4f0b9d7c11")

// Fragment is one immutable unit of the working prompt.
type Fragment struct {
	ID        string            `json:"id"`
	Stage     string            `json:"stage"`
	Kind      FragmentKind      `json:"kind"`
	Title     string            `json:"title,omitempty"`
	Content   string            `json:"content"`
	Annotates string            `json:"annotates,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewFragment builds a fragment whose ID is derived from its stage, kind,
// title, and content, so identical inputs always yield identical fragments.
func NewFragment(stage string, kind FragmentKind, title, content string) Fragment {
	seed := strings.Join([]string{stage, string(kind), title, content}, "\x00")
	return Fragment{
		ID:      uuid.NewSHA1(fragmentNamespace, []byte(seed)).String(),
		Stage:   stage,
		Kind:    kind,
		Title:   title,
		Content: content,
	}
}

// WithMetadata returns a copy of f with the key set.
func (f Fragment) WithMetadata(key, value string) Fragment {
	md := make(map[string]string, len(f.Metadata)+1)
	maps.Copy(md, f.Metadata)
	md[key] = value
	f.Metadata = md
	return f
}

func (f Fragment) clone() Fragment {
	if f.Metadata != nil {
		f.Metadata = maps.Clone(f.Metadata)
	}
	return f
}

// WorkingArtifact is the prompt under construction. It is a value type with
// an append-only fragment sequence: Append and Annotate return a new artifact
// and never touch fragments already present.
type WorkingArtifact struct {
	frags []Fragment
}

// NewWorkingArtifact returns an empty artifact.
func NewWorkingArtifact() WorkingArtifact { return WorkingArtifact{} }

// Append returns a new artifact with f added at the end.
func (a WorkingArtifact) Append(f Fragment) WorkingArtifact {
	// Full slice expression forces a copy so sibling artifacts never share
	// a backing array.
	next := append(a.frags[:len(a.frags):len(a.frags)], f.clone())
	return WorkingArtifact{frags: next}
}

// Annotate appends f as an annotation of the fragment identified by target.
func (a WorkingArtifact) Annotate(target string, f Fragment) (WorkingArtifact, error) {
	if _, ok := a.Find(target); !ok {
		return a, ErrFragmentNotFound
	}
	f.Kind = FragmentAnnotation
	f.Annotates = target
	return a.Append(f), nil
}

// Find returns the fragment with the given ID.
func (a WorkingArtifact) Find(id string) (Fragment, bool) {
	for _, f := range a.frags {
		if f.ID == id {
			return f.clone(), true
		}
	}
	return Fragment{}, false
}

// Fragments returns a copy of the fragment sequence.
func (a WorkingArtifact) Fragments() []Fragment {
	out := make([]Fragment, len(a.frags))
	for i, f := range a.frags {
		out[i] = f.clone()
	}
	return out
}

// ByKind returns the fragments of the given kind in order.
func (a WorkingArtifact) ByKind(kind FragmentKind) []Fragment {
	var out []Fragment
	for _, f := range a.frags {
		if f.Kind == kind {
			out = append(out, f.clone())
		}
	}
	return out
}

// Len returns the number of fragments.
func (a WorkingArtifact) Len() int { return len(a.frags) }

// IsPrefixOf reports whether every fragment of a appears, in order and
// unchanged, at the start of other.
func (a WorkingArtifact) IsPrefixOf(other WorkingArtifact) bool {
	if len(a.frags) > len(other.frags) {
		return false
	}
	for i, f := range a.frags {
		g := other.frags[i]
		if f.ID != g.ID || f.Content != g.Content || f.Annotates != g.Annotates {
			return false
		}
	}
	return true
}

// Render joins the fragments into a markdown document. Annotations are
// rendered as quoted notes.
func (a WorkingArtifact) Render() string {
	var b strings.Builder
	for _, f := range a.frags {
		if f.Kind == FragmentTransformed {
			continue
		}
		if f.Kind == FragmentAnnotation {
			for _, line := range strings.Split(strings.TrimSpace(f.Content), "\n") {
				b.WriteString("> ")
				b.WriteString(line)
				b.WriteByte('\n')
			}
			b.WriteByte('\n')
			continue
		}
		if f.Title != "" {
			b.WriteString("## ")
			b.WriteString(f.Title)
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(f.Content))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// Prompt returns the final prompt text: the content of the last transformed
// fragment when the external transform has run, the rendered fragments
// otherwise.
func (a WorkingArtifact) Prompt() string {
	for i := len(a.frags) - 1; i >= 0; i-- {
		if a.frags[i].Kind == FragmentTransformed {
			return a.frags[i].Content
		}
	}
	return a.Render()
}

// MarshalJSON encodes the artifact as its fragment list.
func (a WorkingArtifact) MarshalJSON() ([]byte, error) {
	frags := a.frags
	if frags == nil {
		frags = []Fragment{}
	}
	return json.Marshal(struct {
		Fragments []Fragment `json:"fragments"`
	}{frags})
}

// UnmarshalJSON decodes an artifact produced by MarshalJSON.
func (a *WorkingArtifact) UnmarshalJSON(data []byte) error {
	var raw struct {
		Fragments []Fragment `json:"fragments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.frags = raw.Fragments
	return nil
}
