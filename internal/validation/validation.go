// Package validation runs the document checks that gate a run: structural
// completeness, missing-information detection, and cross-section
// consistency. The checks run concurrently and their findings are merged in
// a fixed order so reports are stable across runs.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/metrics"
	"github.com/ahrav/go-dldprompt/internal/pipeline"
)

// StageName is the name of the validation group in the pipeline.
const StageName = "validation"

// Check names.
const (
	CheckStructural  = "structural"
	CheckMissingInfo = "missing-info"
	CheckConsistency = "consistency"
)

// Rule IDs for findings produced by the group itself.
const (
	RuleCheckFailed  = "validation.check-failed"
	RuleCheckSkipped = "validation.check-skipped"
)

// Check inspects a document and reports findings.
type Check interface {
	Name() string
	Run(ctx context.Context, doc domain.Document, snap *knowledge.Snapshot) ([]domain.Finding, error)
}

// GroupConfig controls how the group runs its checks.
type GroupConfig struct {
	// Skip names checks that are not run.
	Skip []string `koanf:"skip"`
	// MaxAttempts is how many times a failing check is attempted.
	MaxAttempts int `koanf:"max_attempts"`
	// RetryDelay separates attempts of a failing check.
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// Group runs checks concurrently and merges their findings.
type Group struct {
	checks  []Check
	cfg     GroupConfig
	logger  *slog.Logger
	metrics metrics.Metrics
}

// NewGroup creates a group. Findings are merged in the order checks are given.
func NewGroup(cfg GroupConfig, logger *slog.Logger, m metrics.Metrics, checks ...Check) *Group {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{checks: checks, cfg: cfg, logger: logger, metrics: metrics.OrNoOp(m)}
}

// NewDefaultGroup builds the structural, missing-info and consistency checks
// from cfg, in that order.
func NewDefaultGroup(cfg Config, logger *slog.Logger, m metrics.Metrics) (*Group, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	missing, err := NewMissingInfoCheck(cfg.EntityPatterns)
	if err != nil {
		return nil, err
	}
	consistency, err := NewConsistencyCheck(cfg.Metrics, cfg.ServiceClasses, cfg.ConflictSeverity)
	if err != nil {
		return nil, err
	}
	return NewGroup(cfg.Group, logger, m,
		NewStructuralCheck(cfg.RequiredSections),
		missing,
		consistency,
	), nil
}

type checkResult struct {
	findings []domain.Finding
	err      error
	skipped  bool
}

// Validate runs every check against doc and returns the merged report. It
// never fails: a check that errors or panics contributes a warning finding
// and the other checks still run.
func (g *Group) Validate(ctx context.Context, doc domain.Document, snap *knowledge.Snapshot) domain.ValidationReport {
	results := make([]checkResult, len(g.checks))

	var eg errgroup.Group
	for i, c := range g.checks {
		if slices.Contains(g.cfg.Skip, c.Name()) {
			results[i] = checkResult{skipped: true}
			continue
		}
		eg.Go(func() error {
			results[i] = g.runCheck(ctx, c, doc, snap)
			return nil
		})
	}
	_ = eg.Wait()

	var report domain.ValidationReport
	for i, c := range g.checks {
		r := results[i]
		switch {
		case r.skipped:
			report.Findings = append(report.Findings, domain.Finding{
				Severity: domain.SeverityInfo,
				Message:  fmt.Sprintf("check %s skipped by configuration", c.Name()),
				RuleID:   RuleCheckSkipped,
				Check:    c.Name(),
			})
		case r.err != nil:
			g.metrics.IncrementCounter(metrics.ValidationCheckFails, map[string]string{"check": c.Name()}, 1)
			g.logger.Warn("validation check failed", "check", c.Name(), "error", r.err)
			report.Findings = append(report.Findings, domain.Finding{
				Severity: domain.SeverityWarning,
				Message:  fmt.Sprintf("check %s could not complete: %v", c.Name(), r.err),
				RuleID:   RuleCheckFailed,
				Check:    c.Name(),
			})
		default:
			for _, f := range r.findings {
				if f.Check == "" {
					f.Check = c.Name()
				}
				report.Findings = append(report.Findings, f)
			}
		}
	}
	for _, f := range report.Findings {
		g.metrics.IncrementCounter(metrics.ValidationFindings, map[string]string{"severity": string(f.Severity)}, 1)
	}
	report.Recommendations = Recommend(report.Findings)
	return report
}

func (g *Group) runCheck(ctx context.Context, c Check, doc domain.Document, snap *knowledge.Snapshot) checkResult {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if attempt > 1 && g.cfg.RetryDelay > 0 {
			select {
			case <-time.After(g.cfg.RetryDelay):
			case <-ctx.Done():
				return checkResult{err: ctx.Err()}
			}
		}
		findings, err := safeRun(ctx, c, doc, snap)
		if err == nil {
			return checkResult{findings: findings}
		}
		lastErr = err
		g.logger.Debug("validation check attempt failed", "check", c.Name(), "attempt", attempt, "error", err)
	}
	return checkResult{err: lastErr}
}

func safeRun(ctx context.Context, c Check, doc domain.Document, snap *knowledge.Snapshot) (findings []domain.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings, err = nil, fmt.Errorf("check panicked: %v", r)
		}
	}()
	return c.Run(ctx, doc, snap)
}

// Name implements pipeline.Stage.
func (g *Group) Name() string { return StageName }

// Capabilities implements pipeline.Stage.
func (g *Group) Capabilities() pipeline.Capability { return pipeline.CapValidates }

// Requires implements pipeline.Stage.
func (g *Group) Requires() []pipeline.Field { return []pipeline.Field{pipeline.FieldDocument} }

// Produces implements pipeline.Stage.
func (g *Group) Produces() []pipeline.Field { return []pipeline.Field{pipeline.FieldReport} }

// Execute implements pipeline.Stage.
func (g *Group) Execute(ctx context.Context, in pipeline.Bundle, snap *knowledge.Snapshot) (pipeline.Bundle, []domain.Diagnostic) {
	doc, err := pipeline.Value[domain.Document](in, pipeline.FieldDocument)
	if err != nil {
		return pipeline.Bundle{}, []domain.Diagnostic{*domain.AsDiagnostic(err, StageName)}
	}
	report := g.Validate(ctx, doc, snap)
	return pipeline.NewBundle(map[pipeline.Field]any{pipeline.FieldReport: report}), nil
}
