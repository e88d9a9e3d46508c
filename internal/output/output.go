// Package output shapes an accepted prompt for the tool that will consume it.
//
// A prompt is first split into canonical sections (see Structure), then
// rendered for a Target and checked by Verify.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

// Target names an output format.
type Target string

// Supported targets.
const (
	TargetMarkdown Target = "markdown"
	TargetCursor   Target = "cursor"
	TargetJSON     Target = "json"
	TargetText     Target = "text"
	TargetTemplate Target = "template"
)

// FormatVersion is reported in structured output metadata.
const FormatVersion = "1.0"

var (
	// ErrUnknownTarget is returned by ParseTarget for unsupported names.
	ErrUnknownTarget = errors.New("unknown output format")
	// ErrNoPrompt indicates there is no prompt text to format.
	ErrNoPrompt = errors.New("no prompt to format")
)

var targetAliases = map[string]Target{
	"markdown":        TargetMarkdown,
	"md":              TargetMarkdown,
	"cursor":          TargetCursor,
	"cursor_ai":       TargetCursor,
	"json":            TargetJSON,
	"structured_json": TargetJSON,
	"text":            TargetText,
	"plain":           TargetText,
	"plain_text":      TargetText,
	"txt":             TargetText,
	"template":        TargetTemplate,
}

// Targets lists the supported targets.
func Targets() []Target {
	return []Target{TargetMarkdown, TargetCursor, TargetJSON, TargetText, TargetTemplate}
}

// ParseTarget resolves a target name. Matching ignores case, and dashes are
// read as underscores.
func ParseTarget(name string) (Target, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if t, ok := targetAliases[key]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w %q (want one of %v)", ErrUnknownTarget, name, Targets())
}

// Meta describes the run a prompt came from.
type Meta struct {
	RunID     string
	Outcome   domain.Outcome
	Code      domain.ResultCode
	Composite float64
}

// Result is a formatted prompt.
type Result struct {
	Target       Target
	Content      string
	Prompt       Prompt
	Verification Verification
}

// FormatRun formats the prompt of a finished run.
func FormatRun(res domain.RunResult, t Target) (Result, error) {
	if strings.TrimSpace(res.Prompt) == "" {
		return Result{}, ErrNoPrompt
	}
	return Format(res.Prompt, t, Meta{
		RunID:     res.RunID,
		Outcome:   res.Outcome,
		Code:      res.Code,
		Composite: res.Composite,
	})
}

// Format structures prompt and renders it for t.
func Format(prompt string, t Target, meta Meta) (Result, error) {
	p, err := Structure(prompt)
	if err != nil {
		return Result{}, err
	}
	var content string
	switch t {
	case TargetMarkdown:
		content = renderMarkdown(p)
	case TargetCursor:
		content = renderCursor(p, meta)
	case TargetJSON:
		content, err = renderJSON(p, meta)
	case TargetText:
		content = renderText(p)
	case TargetTemplate:
		content = renderTemplate(p)
	default:
		return Result{}, fmt.Errorf("%w %q", ErrUnknownTarget, t)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Target: t, Content: content, Prompt: p, Verification: Verify(p, content, t)}, nil
}

func renderMarkdown(p Prompt) string {
	var b strings.Builder
	for i, s := range p.Sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("# ")
		b.WriteString(s.Title)
		if body := strings.TrimSpace(s.Body); body != "" {
			b.WriteString("\n\n")
			b.WriteString(body)
		}
	}
	return b.String()
}

const cursorFooter = "---\n\n" +
	"_Read every section before writing code. Ask before deviating from a stated constraint._"

func renderCursor(p Prompt, meta Meta) string {
	var b strings.Builder
	b.WriteString("<!--\nCursor optimized prompt\n")
	if p.Name != "" {
		fmt.Fprintf(&b, "Document: %s\n", p.Name)
	}
	if meta.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", meta.RunID)
	}
	if meta.Composite > 0 {
		fmt.Fprintf(&b, "Quality: %.2f\n", meta.Composite)
	}
	b.WriteString("-->\n\n")
	b.WriteString(renderMarkdown(p))
	b.WriteString("\n\n")
	b.WriteString(cursorFooter)
	return b.String()
}

type jsonPrompt struct {
	Metadata jsonMeta      `json:"metadata"`
	Sections []jsonSection `json:"sections"`
}

type jsonMeta struct {
	Version   string            `json:"version"`
	Format    Target            `json:"format"`
	Document  string            `json:"document,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
	Outcome   domain.Outcome    `json:"outcome,omitempty"`
	Code      domain.ResultCode `json:"code,omitempty"`
	Composite float64           `json:"composite,omitempty"`
}

type jsonSection struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Default bool   `json:"default,omitempty"`
}

func renderJSON(p Prompt, meta Meta) (string, error) {
	out := jsonPrompt{
		Metadata: jsonMeta{
			Version:   FormatVersion,
			Format:    TargetJSON,
			Document:  p.Name,
			RunID:     meta.RunID,
			Outcome:   meta.Outcome,
			Code:      meta.Code,
			Composite: meta.Composite,
		},
		Sections: make([]jsonSection, 0, len(p.Sections)),
	}
	for _, s := range p.Sections {
		out.Sections = append(out.Sections, jsonSection{
			Key:     s.Key(),
			Title:   s.Title,
			Content: strings.TrimSpace(s.Body),
			Default: s.Default,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	return string(data), nil
}

func renderText(p Prompt) string {
	var b strings.Builder
	for i, s := range p.Sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.ToUpper(s.Title))
		if body := plainText(s.Body); body != "" {
			b.WriteString("\n\n")
			b.WriteString(body)
		}
	}
	return b.String()
}

// quantityRE matches numeric targets such as "10 ms", "1.5Gbps" or "99.9%".
var quantityRE = regexp.MustCompile(`\b\d+(?:\.\d+)?\s?(?:ms|µs|us|ns|s|Gbps|Mbps|kbps|GHz|MHz|kHz|dBm|dB)\b|\b\d+(?:\.\d+)?\s?%`)

// renderTemplate replaces numeric targets with numbered placeholders so the
// prompt can be reused for a component with different figures. Repeated
// values share a placeholder.
func renderTemplate(p Prompt) string {
	body := renderMarkdown(p)
	seen := make(map[string]string)
	var legend []string
	body = quantityRE.ReplaceAllStringFunc(body, func(v string) string {
		if ph, ok := seen[v]; ok {
			return ph
		}
		ph := fmt.Sprintf("{VALUE_%d}", len(seen)+1)
		seen[v] = ph
		legend = append(legend, ph+" = "+v)
		return ph
	})

	var b strings.Builder
	b.WriteString("<!--\nPrompt template\n")
	if p.Name != "" {
		fmt.Fprintf(&b, "Document: %s\n", p.Name)
	}
	for _, l := range legend {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString("-->\n\n")
	b.WriteString(body)
	return b.String()
}
