// Package transform wraps the external prompt-optimization service behind a
// single call, transform(text, params) -> text | failure, and provides the
// middleware that every call passes through: structured logging, response
// caching, retries, a circuit breaker, a timeout and rate limiting.
package transform

import (
	"context"
	"maps"
	"slices"
)

// Params are the knobs passed to a transform call.
type Params struct {
	Model       string            `json:"model,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	System      string            `json:"system,omitempty"`
	Directives  []string          `json:"directives,omitempty"`
	Values      map[string]string `json:"values,omitempty"`
}

// Clone returns a deep copy of p.
func (p Params) Clone() Params {
	p.Directives = slices.Clone(p.Directives)
	if p.Values != nil {
		p.Values = maps.Clone(p.Values)
	}
	return p
}

// Transformer rewrites prompt text. Implementations must honor ctx deadlines
// and report every failure through the returned error.
type Transformer interface {
	Transform(ctx context.Context, text string, p Params) (string, error)
}

// Func adapts a function to Transformer.
type Func func(ctx context.Context, text string, p Params) (string, error)

// Transform implements Transformer.
func (f Func) Transform(ctx context.Context, text string, p Params) (string, error) {
	return f(ctx, text, p)
}

// Middleware decorates a Transformer.
type Middleware func(next Transformer) Transformer

// Chain wraps t with mws. The first middleware is the outermost.
func Chain(t Transformer, mws ...Middleware) Transformer {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i](t)
	}
	return t
}
