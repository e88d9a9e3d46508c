// Package orchestrator owns the lifecycle of a prompt run. It takes the
// knowledge snapshot, runs validation, then loops generation and the quality
// gate under a retry budget, and always finishes by handing exactly one run
// record to the feedback recorder.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/generation"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/metrics"
	"github.com/ahrav/go-dldprompt/internal/pipeline"
	"github.com/ahrav/go-dldprompt/internal/quality"
)

// Graph names.
const (
	GraphRun        = "run"
	GraphValidation = "validate"
	GraphGeneration = "generate"
	GraphGate       = "gate"
)

// snapshotStage attributes knowledge read failures.
const snapshotStage = "knowledge-snapshot"

// Defaults.
const (
	DefaultRetryBudget  = 2
	DefaultHistoryLimit = 5
)

var (
	// ErrInvalidConfig indicates a malformed orchestrator configuration.
	ErrInvalidConfig = errors.New("invalid orchestrator configuration")

	// ErrMissingComponent indicates New was called without a required collaborator.
	ErrMissingComponent = errors.New("orchestrator component missing")
)

// Config bounds a run.
type Config struct {
	// RetryBudget is the maximum number of Generation re-entries per run.
	RetryBudget int `koanf:"retry_budget" validate:"gte=0"`
	// HistoryLimit is how many prior records of the same document are read
	// into the snapshot.
	HistoryLimit int `koanf:"history_limit" validate:"gte=0"`
	// LearnFromHistory seeds the first attempt with the last recorded hint.
	LearnFromHistory bool `koanf:"-"`
}

// DefaultConfig returns the default run limits.
func DefaultConfig() Config {
	return Config{
		RetryBudget:      DefaultRetryBudget,
		HistoryLimit:     DefaultHistoryLimit,
		LearnFromHistory: generation.DefaultLearnFromHistory,
	}
}

// Validate checks the limits.
func (c Config) Validate() error {
	if err := domain.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Recorder receives the terminal record of every run. Implementations must
// return without waiting for persistence.
type Recorder interface {
	Record(ctx context.Context, rec domain.RunRecord) error
}

// RunInputs are the fields a run starts with.
func RunInputs() []pipeline.Field {
	return []pipeline.Field{
		pipeline.FieldDocument,
		pipeline.FieldCodeFacts,
		pipeline.FieldConventions,
		pipeline.FieldParameters,
		pipeline.FieldRetriesLeft,
	}
}

// Orchestrator runs documents through the pipeline. It is safe for
// concurrent use; runs share nothing but the store and the recorder.
type Orchestrator struct {
	cfg      Config
	store    knowledge.Reader
	recorder Recorder

	validation *pipeline.Graph
	generation *pipeline.Graph
	gate       *pipeline.Graph

	logger  *slog.Logger
	metrics metrics.Metrics
	now     func() time.Time
	newID   func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithIDGenerator overrides run id generation for requests without one.
func WithIDGenerator(fn func() string) Option { return func(o *Orchestrator) { o.newID = fn } }

// New wires the three phases. The data flow validation → generation → gate
// is checked once here; a run never starts on an unsatisfiable graph.
func New(cfg Config, store knowledge.Reader, rec Recorder, validate, generate, gate pipeline.Stage, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case store == nil:
		return nil, fmt.Errorf("%w: knowledge store", ErrMissingComponent)
	case rec == nil:
		return nil, fmt.Errorf("%w: recorder", ErrMissingComponent)
	case validate == nil, generate == nil, gate == nil:
		return nil, fmt.Errorf("%w: stage", ErrMissingComponent)
	}

	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		recorder: rec,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.metrics = metrics.OrNoOp(o.metrics)

	graphOpts := []pipeline.Option{pipeline.WithLogger(o.logger), pipeline.WithMetrics(o.metrics)}
	if _, err := pipeline.NewGraph(GraphRun, RunInputs(), []pipeline.Stage{validate, generate, gate}, graphOpts...); err != nil {
		return nil, err
	}

	var err error
	if o.validation, err = phase(GraphValidation, RunInputs(), validate, graphOpts); err != nil {
		return nil, err
	}
	genInputs := slices.Concat(RunInputs(), validate.Produces())
	if o.generation, err = phase(GraphGeneration, genInputs, generate, graphOpts); err != nil {
		return nil, err
	}
	gateInputs := slices.Concat(genInputs, generate.Produces())
	if o.gate, err = phase(GraphGate, gateInputs, gate, graphOpts); err != nil {
		return nil, err
	}
	return o, nil
}

// phase returns the graph that runs one lifecycle phase. A stage that is
// already a graph runs as-is so that cancellation is observed between its
// own stages.
func phase(name string, inputs []pipeline.Field, s pipeline.Stage, opts []pipeline.Option) (*pipeline.Graph, error) {
	if g, ok := s.(*pipeline.Graph); ok {
		return g, nil
	}
	return pipeline.NewGraph(name, inputs, []pipeline.Stage{s}, opts...)
}

// run is the mutable state of one execution. It never leaves Run.
type run struct {
	id          string
	fingerprint string
	started     time.Time
	m           *machine
	log         *slog.Logger

	report   domain.ValidationReport
	artifact *domain.WorkingArtifact
	score    domain.QualityScore
	hints    []domain.Hint
	retries  int

	outcome domain.Outcome
	code    domain.ResultCode
	diag    *domain.Diagnostic
}

// Run executes one document. The error is non-nil only for a malformed
// request, which never enters the lifecycle; every other failure is reported
// through the result code and the record.
func (o *Orchestrator) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	if err := req.Validate(); err != nil {
		return domain.RunResult{}, err
	}
	id := req.RunID
	if id == "" {
		id = o.newID()
	}
	r := &run{
		id:          id,
		fingerprint: req.Document.Fingerprint(),
		started:     o.now(),
		m:           newMachine(),
	}
	r.log = o.logger.With("run_id", r.id, "fingerprint", shortFingerprint(r.fingerprint))
	r.log.Info("run started", "sections", len(req.Document.Sections), "retry_budget", o.cfg.RetryBudget)

	o.execute(ctx, r, req)
	return o.finish(ctx, r), nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, req domain.RunRequest) {
	if err := ctx.Err(); err != nil {
		o.fail(r, domain.CodeCancelled, domain.NewDiagnostic(domain.ErrorKindCancelled, snapshotStage, "run cancelled before start", err))
		return
	}
	snap, err := knowledge.Take(ctx, o.store, r.fingerprint, o.cfg.HistoryLimit)
	if err != nil {
		o.fail(r, domain.CodeKnowledgeStoreUnavailable, domain.NewDiagnostic(
			domain.ErrorKindKnowledgeStoreUnavailable, snapshotStage, "knowledge snapshot could not be taken", err))
		return
	}

	in := pipeline.NewBundle(map[pipeline.Field]any{
		pipeline.FieldDocument:    req.Document.Clone(),
		pipeline.FieldCodeFacts:   req.CodeFacts,
		pipeline.FieldConventions: nonNilConventions(req.Conventions),
		pipeline.FieldParameters:  nonNilParameters(req.Parameters),
		pipeline.FieldRetriesLeft: o.cfg.RetryBudget,
	})

	// Validating
	out, _, diags := o.validation.Run(ctx, in, snap)
	if len(diags) > 0 {
		o.failDiagnostic(r, diags[0])
		return
	}
	report, err := pipeline.Value[domain.ValidationReport](out, pipeline.FieldReport)
	if err != nil {
		o.fail(r, domain.CodeInternalError, domain.AsDiagnostic(err, GraphValidation))
		return
	}
	r.report = report
	if report.Blocking() {
		d := domain.NewDiagnostic(domain.ErrorKindValidationBlocked, GraphValidation,
			fmt.Sprintf("%d error finding(s) block the run", report.Count(domain.SeverityError)), nil)
		d.Details = map[string]any{"findings": blockingMessages(report)}
		o.fail(r, domain.CodeValidationBlocked, d)
		return
	}
	in = in.Merge(out)

	var (
		hint   domain.Hint
		hinted bool
	)
	if o.cfg.LearnFromHistory {
		if hint, hinted = generation.HistoryHint(snap); hinted {
			r.log.Info("first attempt seeded from history", "dimension", hint.Dimension)
		}
	}

	o.move(r, StateGenerating)
	for {
		attemptIn := in.MustWith(pipeline.FieldRetriesLeft, o.cfg.RetryBudget-r.retries)
		if hinted {
			hint.Attempt = r.retries
			attemptIn = attemptIn.MustWith(pipeline.FieldHint, hint)
		}

		genOut, _, diags := o.generation.Run(ctx, attemptIn, snap)
		if len(diags) > 0 {
			d := diags[0]
			if d.Retryable && d.Kind != domain.ErrorKindCancelled && r.retries < o.cfg.RetryBudget {
				o.retry(r, "generation", d.Message)
				continue
			}
			if d.Kind == domain.ErrorKindGenerationStageFailed || d.Retryable {
				o.fail(r, domain.CodeGenerationFailed, &d)
				return
			}
			o.failDiagnostic(r, d)
			return
		}
		artifact, err := pipeline.Value[domain.WorkingArtifact](genOut, pipeline.FieldArtifact)
		if err != nil {
			o.fail(r, domain.CodeInternalError, domain.AsDiagnostic(err, GraphGeneration))
			return
		}
		r.artifact = &artifact

		o.move(r, StateGating)
		gateOut, _, diags := o.gate.Run(ctx, attemptIn.Merge(genOut), snap)
		if len(diags) > 0 {
			o.failDiagnostic(r, diags[0])
			return
		}
		score, err := pipeline.Value[domain.QualityScore](gateOut, pipeline.FieldScore)
		if err != nil {
			o.fail(r, domain.CodeInternalError, domain.AsDiagnostic(err, GraphGate))
			return
		}
		decision, err := pipeline.Value[quality.Decision](gateOut, pipeline.FieldDecision)
		if err != nil {
			o.fail(r, domain.CodeInternalError, domain.AsDiagnostic(err, GraphGate))
			return
		}
		r.score = score

		switch decision.Verdict {
		case quality.VerdictAccept:
			r.outcome, r.code = domain.OutcomeAccepted, domain.CodeAccepted
			return
		case quality.VerdictRetry:
			if decision.Hint == nil || r.retries >= o.cfg.RetryBudget {
				o.reject(r, score)
				return
			}
			hint, hinted = *decision.Hint, true
			r.hints = append(r.hints, hint)
			o.retry(r, "quality", fmt.Sprintf("lowest dimension %s=%.3f", hint.Dimension, hint.Score))
		default:
			o.reject(r, score)
			return
		}
	}
}

func (o *Orchestrator) retry(r *run, reason, detail string) {
	r.retries++
	o.metrics.IncrementCounter(metrics.RetriesTotal, map[string]string{"reason": reason}, 1)
	r.log.Info("retrying generation", "reason", reason, "detail", detail, "retry", r.retries)
	o.move(r, StateRetrying)
	o.move(r, StateGenerating)
}

func (o *Orchestrator) reject(r *run, score domain.QualityScore) {
	d := domain.NewDiagnostic(domain.ErrorKindQualityRejected, quality.StageName,
		fmt.Sprintf("composite %.3f did not pass the gate after %d retries", score.Composite, r.retries), nil)
	scores := make(map[string]any, len(score.Dimensions))
	for dim, v := range score.AsMap() {
		scores[string(dim)] = v
	}
	d.Details = map[string]any{"composite": score.Composite, "scores": scores}
	r.outcome, r.code, r.diag = domain.OutcomeRejected, domain.CodeQualityRejected, d
}

// failDiagnostic classifies a diagnostic returned by a phase graph.
func (o *Orchestrator) failDiagnostic(r *run, d domain.Diagnostic) {
	switch d.Kind {
	case domain.ErrorKindCancelled:
		o.fail(r, domain.CodeCancelled, &d)
	case domain.ErrorKindKnowledgeStoreUnavailable:
		o.fail(r, domain.CodeKnowledgeStoreUnavailable, &d)
	default:
		o.fail(r, domain.CodeInternalError, &d)
	}
}

func (o *Orchestrator) fail(r *run, code domain.ResultCode, d *domain.Diagnostic) {
	r.code, r.diag = code, d
	switch code {
	case domain.CodeValidationBlocked, domain.CodeQualityRejected:
		r.outcome = domain.OutcomeRejected
	default:
		r.outcome = domain.OutcomeErrored
	}
}

func (o *Orchestrator) move(r *run, next State) {
	if err := r.m.to(next); err != nil {
		r.log.Error("state machine", "error", err)
	}
}

// finish builds the record, hands it to the recorder and returns the result.
func (o *Orchestrator) finish(ctx context.Context, r *run) domain.RunResult {
	o.move(r, StateRecording)

	rec := domain.RunRecord{
		RunID:       r.id,
		Fingerprint: r.fingerprint,
		Score:       r.score,
		RetryCount:  r.retries,
		Outcome:     r.outcome,
		Code:        r.code,
		Diagnostic:  r.diag,
		Hints:       append([]domain.Hint(nil), r.hints...),
		CreatedAt:   o.now().UTC(),
	}
	if r.outcome == domain.OutcomeAccepted && r.artifact != nil {
		rec.AcceptedFragments = r.artifact.Fragments()
	}
	if err := o.recorder.Record(ctx, rec); err != nil {
		r.log.Warn("run record not queued", "error", err)
	}

	if r.outcome == domain.OutcomeAccepted {
		o.move(r, StateDone)
	} else {
		o.move(r, StateFailed)
	}

	res := domain.RunResult{
		RunID:      r.id,
		Outcome:    r.outcome,
		Code:       r.code,
		Composite:  r.score.Composite,
		Score:      r.score,
		Report:     r.report,
		RetryCount: r.retries,
		Record:     rec,
	}
	for _, s := range r.m.path {
		res.States = append(res.States, string(s))
	}
	if r.outcome == domain.OutcomeAccepted {
		res.Artifact = r.artifact
		res.Prompt = r.artifact.Prompt()
	} else if r.diag != nil {
		res.Diagnostics = []domain.Diagnostic{*r.diag}
	}

	o.metrics.IncrementCounter(metrics.RunsTotal, map[string]string{"outcome": string(r.outcome), "code": string(r.code)}, 1)
	args := []any{
		"outcome", r.outcome,
		"code", r.code,
		"composite", r.score.Composite,
		"retries", r.retries,
		"duration_ms", o.now().Sub(r.started).Milliseconds(),
	}
	if r.diag != nil {
		args = append(args, "diagnostic", r.diag.Error())
	}
	r.log.Info("run finished", args...)
	return res
}

func nonNilConventions(in []domain.Convention) []domain.Convention {
	if in == nil {
		return []domain.Convention{}
	}
	return append([]domain.Convention(nil), in...)
}

func nonNilParameters(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func blockingMessages(report domain.ValidationReport) []string {
	var out []string
	for _, f := range report.BySeverity(domain.SeverityError) {
		out = append(out, f.Message)
	}
	return out
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
