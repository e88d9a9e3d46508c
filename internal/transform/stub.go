package transform

import (
	"context"
	"strings"
)

// Stub is a deterministic offline transformer. It returns the input text
// with any directives appended as a guidance list, so identical inputs always
// yield identical outputs.
type Stub struct{}

// Transform implements Transformer.
func (Stub) Transform(ctx context.Context, text string, p Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out := strings.TrimSpace(text)
	if len(p.Directives) == 0 {
		return out, nil
	}
	var b strings.Builder
	b.WriteString(out)
	b.WriteString("\n\n## Additional guidance\n\n")
	for _, d := range p.Directives {
		b.WriteString("- ")
		b.WriteString(d)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String()), nil
}
