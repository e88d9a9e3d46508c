package quality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/metrics"
	"github.com/ahrav/go-dldprompt/internal/pipeline"
)

// StageName is the gate's name in the pipeline.
const StageName = "quality-gate"

// ErrMissingScorer indicates a gate built without a scorer for every dimension.
var ErrMissingScorer = errors.New("quality gate requires a scorer for every dimension")

// Verdict is the gate's decision for one attempt.
type Verdict string

// Gate verdicts.
const (
	VerdictAccept Verdict = "accept"
	VerdictRetry  Verdict = "retry"
	VerdictReject Verdict = "reject"
)

// Decision is the gate outcome. Hint is set only for VerdictRetry.
type Decision struct {
	Verdict Verdict      `json:"verdict"`
	Hint    *domain.Hint `json:"hint,omitempty"`
}

// Gate scores an artifact on every dimension and decides its fate.
type Gate struct {
	cfg     Config
	weights domain.Weights
	scorers []Scorer
	logger  *slog.Logger
	metrics metrics.Metrics
}

// NewGate builds a gate. Weights are validated here so a misconfigured gate
// never runs.
func NewGate(cfg Config, logger *slog.Logger, m metrics.Metrics, scorers ...Scorer) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w, err := cfg.DimensionWeights()
	if err != nil {
		return nil, err
	}
	byDim := make(map[domain.Dimension]Scorer, len(scorers))
	for _, s := range scorers {
		byDim[s.Dimension()] = s
	}
	ordered := make([]Scorer, 0, len(byDim))
	for _, d := range domain.Dimensions() {
		s, ok := byDim[d]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingScorer, d)
		}
		ordered = append(ordered, s)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{cfg: cfg, weights: w, scorers: ordered, logger: logger, metrics: metrics.OrNoOp(m)}, nil
}

// NewDefaultGate builds a gate with the built-in heuristic scorers.
func NewDefaultGate(cfg Config, logger *slog.Logger, m metrics.Metrics) (*Gate, error) {
	return NewGate(cfg, logger, m, DefaultScorers()...)
}

// Score runs every scorer over in.
func (g *Gate) Score(ctx context.Context, in Input, snap *knowledge.Snapshot) domain.QualityScore {
	scores := make([]domain.DimensionScore, 0, len(g.scorers))
	for _, s := range g.scorers {
		ds := s.Score(ctx, in, snap)
		ds.Name = s.Dimension()
		scores = append(scores, ds)
	}
	return domain.NewQualityScore(scores, g.weights)
}

// Decide applies the thresholds to score. retriesLeft is the remaining retry
// budget of the run; attempt is the 0-based attempt being judged.
func (g *Gate) Decide(score domain.QualityScore, retriesLeft, attempt int) Decision {
	switch {
	case score.Composite >= g.cfg.AcceptThreshold:
		return Decision{Verdict: VerdictAccept}
	case score.Composite >= g.cfg.RetryThreshold && retriesLeft > 0:
		lowest, ok := score.Lowest()
		if !ok {
			return Decision{Verdict: VerdictReject}
		}
		return Decision{Verdict: VerdictRetry, Hint: &domain.Hint{
			Dimension:   lowest.Name,
			Attempt:     attempt + 1,
			Score:       lowest.Value,
			Suggestions: append([]string(nil), lowest.Suggestions...),
		}}
	default:
		return Decision{Verdict: VerdictReject}
	}
}

// Evaluate scores in and decides.
func (g *Gate) Evaluate(ctx context.Context, in Input, snap *knowledge.Snapshot, retriesLeft, attempt int) (domain.QualityScore, Decision) {
	score := g.Score(ctx, in, snap)
	d := g.Decide(score, retriesLeft, attempt)
	g.metrics.RecordHistogram(metrics.CompositeScore, map[string]string{"verdict": string(d.Verdict)}, score.Composite)
	g.logger.Info("quality gate evaluated",
		"composite", score.Composite,
		"verdict", d.Verdict,
		"attempt", attempt,
		"retries_left", retriesLeft)
	return score, d
}

// Name implements pipeline.Stage.
func (g *Gate) Name() string { return StageName }

// Capabilities implements pipeline.Stage.
func (g *Gate) Capabilities() pipeline.Capability { return pipeline.CapScores }

// Requires implements pipeline.Stage.
func (g *Gate) Requires() []pipeline.Field {
	return []pipeline.Field{pipeline.FieldDocument, pipeline.FieldArtifact, pipeline.FieldRetriesLeft}
}

// Produces implements pipeline.Stage.
func (g *Gate) Produces() []pipeline.Field {
	return []pipeline.Field{pipeline.FieldScore, pipeline.FieldDecision}
}

// Execute implements pipeline.Stage. The attempt number is read from the
// optional hint field.
func (g *Gate) Execute(ctx context.Context, in pipeline.Bundle, snap *knowledge.Snapshot) (pipeline.Bundle, []domain.Diagnostic) {
	doc, err := pipeline.Value[domain.Document](in, pipeline.FieldDocument)
	if err != nil {
		return pipeline.Bundle{}, []domain.Diagnostic{*domain.AsDiagnostic(err, StageName)}
	}
	artifact, err := pipeline.Value[domain.WorkingArtifact](in, pipeline.FieldArtifact)
	if err != nil {
		return pipeline.Bundle{}, []domain.Diagnostic{*domain.AsDiagnostic(err, StageName)}
	}
	retriesLeft, err := pipeline.Value[int](in, pipeline.FieldRetriesLeft)
	if err != nil {
		return pipeline.Bundle{}, []domain.Diagnostic{*domain.AsDiagnostic(err, StageName)}
	}
	attempt := 0
	if h, ok := pipeline.Optional[domain.Hint](in, pipeline.FieldHint); ok {
		attempt = h.Attempt
	}

	score, d := g.Evaluate(ctx, Input{Prompt: artifact.Prompt(), Document: doc, Artifact: artifact}, snap, retriesLeft, attempt)
	return pipeline.NewBundle(map[pipeline.Field]any{
		pipeline.FieldScore:    score,
		pipeline.FieldDecision: d,
	}), nil
}
