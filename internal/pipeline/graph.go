package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/metrics"
)

// Graph construction errors.
var (
	ErrEmptyGraph     = errors.New("pipeline graph has no stages")
	ErrNilStage       = errors.New("pipeline graph contains a nil stage")
	ErrDuplicateStage = errors.New("duplicate stage name")
	ErrUnsatisfied    = errors.New("stage requirement is not satisfied")
	ErrOrdering       = errors.New("stage requires a field produced only by a later stage")
)

// Node is a stage plus its resolved dependency metadata.
type Node struct {
	Stage        Stage
	Index        int // 1-based position in execution order
	Dependencies []string
	Dependents   []string
}

// FailureMapper rewrites the diagnostic of a failed stage. index is 1-based.
type FailureMapper func(index int, stage string, d domain.Diagnostic) domain.Diagnostic

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the graph's logger.
func WithLogger(l *slog.Logger) Option { return func(g *Graph) { g.logger = l } }

// WithMetrics sets the graph's metrics sink.
func WithMetrics(m metrics.Metrics) Option { return func(g *Graph) { g.metrics = m } }

// WithFailureMapper sets a mapper applied to every stage failure.
func WithFailureMapper(fm FailureMapper) Option { return func(g *Graph) { g.mapFailure = fm } }

// WithCapabilities overrides the capability set the graph reports as a Stage.
func WithCapabilities(c Capability) Option { return func(g *Graph) { g.caps = &c } }

// Graph is a validated, ordered set of stages. Every requirement is checked
// once in NewGraph: a field must be one of the graph inputs or be produced by
// a stage declared earlier. Execution follows declaration order.
//
// A Graph is itself a Stage, so a stage group can be nested inside a larger
// pipeline.
type Graph struct {
	name       string
	inputs     []Field
	nodes      []*Node
	byName     map[string]*Node
	produces   []Field
	caps       *Capability
	logger     *slog.Logger
	metrics    metrics.Metrics
	mapFailure FailureMapper
}

// NewGraph validates the stage list against the declared inputs.
func NewGraph(name string, inputs []Field, stages []Stage, opts ...Option) (*Graph, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("graph %s: %w", name, ErrEmptyGraph)
	}
	g := &Graph{
		name:   name,
		inputs: slices.Clone(inputs),
		byName: make(map[string]*Node, len(stages)),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.metrics = metrics.OrNoOp(g.metrics)

	// lastProducer tracks, for each field, the most recent stage producing it.
	lastProducer := make(map[Field]string)
	laterProducer := func(from int, f Field) (string, bool) {
		for _, s := range stages[from+1:] {
			if slices.Contains(s.Produces(), f) {
				return s.Name(), true
			}
		}
		return "", false
	}

	for i, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("graph %s: stage %d: %w", name, i+1, ErrNilStage)
		}
		if _, dup := g.byName[s.Name()]; dup {
			return nil, fmt.Errorf("graph %s: %w: %s", name, ErrDuplicateStage, s.Name())
		}
		node := &Node{Stage: s, Index: i + 1}
		for _, f := range s.Requires() {
			if producer, ok := lastProducer[f]; ok {
				if !slices.Contains(node.Dependencies, producer) {
					node.Dependencies = append(node.Dependencies, producer)
				}
				continue
			}
			if slices.Contains(g.inputs, f) {
				continue
			}
			if later, ok := laterProducer(i, f); ok {
				return nil, fmt.Errorf("graph %s: stage %s field %s (produced by %s): %w", name, s.Name(), f, later, ErrOrdering)
			}
			return nil, fmt.Errorf("graph %s: stage %s field %s: %w", name, s.Name(), f, ErrUnsatisfied)
		}
		for _, f := range s.Produces() {
			lastProducer[f] = s.Name()
			if !slices.Contains(g.produces, f) {
				g.produces = append(g.produces, f)
			}
		}
		g.nodes = append(g.nodes, node)
		g.byName[s.Name()] = node
	}
	for _, n := range g.nodes {
		for _, dep := range n.Dependencies {
			d := g.byName[dep]
			d.Dependents = append(d.Dependents, n.Stage.Name())
		}
	}
	for _, n := range g.nodes {
		slices.Sort(n.Dependencies)
		slices.Sort(n.Dependents)
	}
	slices.Sort(g.produces)
	return g, nil
}

// Nodes returns the nodes in execution order.
func (g *Graph) Nodes() []*Node { return slices.Clone(g.nodes) }

// Node returns the node for a stage name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.byName[name]
	return n, ok
}

// Stage returns the stage with the given name.
func (g *Graph) Stage(name string) (Stage, bool) {
	n, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return n.Stage, true
}

// Name implements Stage.
func (g *Graph) Name() string { return g.name }

// Capabilities implements Stage as the union of the member capabilities.
func (g *Graph) Capabilities() Capability {
	if g.caps != nil {
		return *g.caps
	}
	var c Capability
	for _, n := range g.nodes {
		c |= n.Stage.Capabilities()
	}
	return c
}

// Requires implements Stage.
func (g *Graph) Requires() []Field { return slices.Clone(g.inputs) }

// Produces implements Stage.
func (g *Graph) Produces() []Field { return slices.Clone(g.produces) }

// StageReport describes one executed stage.
type StageReport struct {
	Name        string
	Index       int
	Duration    time.Duration
	Diagnostics []domain.Diagnostic
}

// Execute implements Stage.
func (g *Graph) Execute(ctx context.Context, in Bundle, snap *knowledge.Snapshot) (Bundle, []domain.Diagnostic) {
	out, _, diags := g.Run(ctx, in, snap)
	return out, diags
}

// Run executes the stages in order, stopping at the first stage that reports
// a diagnostic. Cancellation of ctx is observed between stages only: each
// stage runs with a context that keeps ctx's values but not its cancellation.
// The returned bundle holds every field accumulated so far.
func (g *Graph) Run(ctx context.Context, in Bundle, snap *knowledge.Snapshot) (Bundle, []StageReport, []domain.Diagnostic) {
	acc := in
	reports := make([]StageReport, 0, len(g.nodes))
	stageCtx := context.WithoutCancel(ctx)

	for _, n := range g.nodes {
		name := n.Stage.Name()
		if err := ctx.Err(); err != nil {
			d := domain.NewDiagnostic(domain.ErrorKindCancelled, name, "run cancelled before stage", err)
			return acc, reports, []domain.Diagnostic{*d}
		}

		if missing := missingFields(acc, n.Stage.Requires()); len(missing) > 0 {
			d := domain.NewDiagnostic(domain.ErrorKindStageFault, name,
				fmt.Sprintf("missing required fields %v", missing), nil)
			return acc, reports, []domain.Diagnostic{g.fail(n, *d)}
		}

		start := time.Now()
		out, diags := g.invoke(stageCtx, n.Stage, acc, snap)
		dur := time.Since(start)
		tags := map[string]string{"graph": g.name, "stage": name}
		g.metrics.RecordHistogram(metrics.StageDurationMS, tags, float64(dur.Milliseconds()))

		if len(diags) == 0 {
			if missing := missingFields(out, n.Stage.Produces()); len(missing) > 0 {
				d := domain.NewDiagnostic(domain.ErrorKindStageFault, name,
					fmt.Sprintf("stage did not produce declared fields %v", missing), nil)
				diags = []domain.Diagnostic{*d}
			}
		}

		if len(diags) > 0 {
			for i := range diags {
				diags[i] = g.fail(n, diags[i])
			}
			reports = append(reports, StageReport{Name: name, Index: n.Index, Duration: dur, Diagnostics: diags})
			g.metrics.IncrementCounter(metrics.StageFailures, tags, 1)
			g.logger.Warn("stage failed",
				"graph", g.name,
				"stage", name,
				"index", n.Index,
				"kind", diags[0].Kind,
				"message", diags[0].Message)
			return acc, reports, diags
		}

		acc = acc.Merge(out)
		reports = append(reports, StageReport{Name: name, Index: n.Index, Duration: dur})
		g.logger.Debug("stage completed", "graph", g.name, "stage", name, "duration_ms", dur.Milliseconds())
	}
	return acc, reports, nil
}

func (g *Graph) fail(n *Node, d domain.Diagnostic) domain.Diagnostic {
	if g.mapFailure == nil || d.Kind == domain.ErrorKindCancelled {
		return d
	}
	return g.mapFailure(n.Index, n.Stage.Name(), d)
}

// invoke runs one stage and turns a panic into a diagnostic.
func (g *Graph) invoke(ctx context.Context, s Stage, in Bundle, snap *knowledge.Snapshot) (out Bundle, diags []domain.Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			d := domain.NewDiagnostic(domain.ErrorKindStageFault, s.Name(), fmt.Sprintf("stage panicked: %v", r), nil)
			out, diags = Bundle{}, []domain.Diagnostic{*d}
		}
	}()
	return s.Execute(ctx, in, snap)
}

func missingFields(b Bundle, fields []Field) []Field {
	var missing []Field
	for _, f := range fields {
		if !b.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}
