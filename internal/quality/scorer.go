// Package quality scores a finished prompt on six dimensions and decides
// whether a run is accepted, retried or rejected.
//
// Scorers are independent pure functions of the prompt, the source document
// and the run's knowledge snapshot. They may consult rubric entries in the
// snapshot; a rubric keyed by a dimension name replaces that scorer's built-in
// vocabulary.
package quality

import (
	"context"
	"strings"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
)

// Input is what a scorer inspects.
type Input struct {
	Prompt   string
	Document domain.Document
	Artifact domain.WorkingArtifact
}

// Scorer computes one dimension.
type Scorer interface {
	Dimension() domain.Dimension
	Score(ctx context.Context, in Input, snap *knowledge.Snapshot) domain.DimensionScore
}

// ScorerFunc adapts a function into a Scorer for dimension dim.
func ScorerFunc(dim domain.Dimension, fn func(ctx context.Context, in Input, snap *knowledge.Snapshot) float64) Scorer {
	return funcScorer{dim: dim, fn: fn}
}

type funcScorer struct {
	dim domain.Dimension
	fn  func(ctx context.Context, in Input, snap *knowledge.Snapshot) float64
}

func (f funcScorer) Dimension() domain.Dimension { return f.dim }

func (f funcScorer) Score(ctx context.Context, in Input, snap *knowledge.Snapshot) domain.DimensionScore {
	return domain.DimensionScore{Name: f.dim, Value: f.fn(ctx, in, snap)}
}

// rubricTerms returns the lowercased tags of the rubric entry for dim, or
// fallback when the snapshot has none.
func rubricTerms(snap *knowledge.Snapshot, dim domain.Dimension, fallback []string) []string {
	if tags := snap.Tags(knowledge.CategoryRubric, string(dim)); len(tags) > 0 {
		return tags
	}
	out := make([]string, len(fallback))
	for i, t := range fallback {
		out[i] = strings.ToLower(t)
	}
	return out
}

// ratio returns n/of capped at 1.
func ratio(n, of int) float64 {
	if of <= 0 {
		return 0
	}
	return min(float64(n)/float64(of), 1)
}
