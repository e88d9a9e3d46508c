// Package pipeline provides the stage abstraction and the dependency-checked
// stage graph used by the orchestrator and by composite stage groups.
package pipeline

import (
	"context"
	"strings"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
)

// Capability is the set of things a stage does.
type Capability uint8

// Stage capabilities.
const (
	CapValidates Capability = 1 << iota
	CapTransforms
	CapScores
)

// Has reports whether c includes every bit of other.
func (c Capability) Has(other Capability) bool { return c&other == other }

func (c Capability) String() string {
	var parts []string
	if c.Has(CapValidates) {
		parts = append(parts, "validates")
	}
	if c.Has(CapTransforms) {
		parts = append(parts, "transforms")
	}
	if c.Has(CapScores) {
		parts = append(parts, "scores")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Stage is one unit of pipeline work. Execute reads its input bundle and the
// run's snapshot and returns a bundle holding the fields it produces. It must
// not mutate shared state; failures are reported as diagnostics, never as
// panics or raw errors.
type Stage interface {
	Name() string
	Capabilities() Capability
	Requires() []Field
	Produces() []Field
	Execute(ctx context.Context, in Bundle, snap *knowledge.Snapshot) (Bundle, []domain.Diagnostic)
}

// ExecFunc is the body of a stage built with NewStage.
type ExecFunc func(ctx context.Context, in Bundle, snap *knowledge.Snapshot) (Bundle, error)

// Spec declares a stage built from a function.
type Spec struct {
	Name         string
	Capabilities Capability
	Requires     []Field
	Produces     []Field
}

type funcStage struct {
	spec Spec
	fn   ExecFunc
}

// NewStage adapts fn into a Stage. A returned error is converted to a typed
// diagnostic attributed to the stage.
func NewStage(spec Spec, fn ExecFunc) Stage {
	return &funcStage{spec: spec, fn: fn}
}

func (s *funcStage) Name() string             { return s.spec.Name }
func (s *funcStage) Capabilities() Capability { return s.spec.Capabilities }
func (s *funcStage) Requires() []Field        { return append([]Field(nil), s.spec.Requires...) }
func (s *funcStage) Produces() []Field        { return append([]Field(nil), s.spec.Produces...) }

func (s *funcStage) Execute(ctx context.Context, in Bundle, snap *knowledge.Snapshot) (Bundle, []domain.Diagnostic) {
	out, err := s.fn(ctx, in, snap)
	if err != nil {
		return Bundle{}, []domain.Diagnostic{*domain.AsDiagnostic(err, s.spec.Name)}
	}
	return out, nil
}
