package orchestrator

import (
	"fmt"
	"log/slog"

	"github.com/ahrav/go-dldprompt/internal/generation"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/metrics"
	"github.com/ahrav/go-dldprompt/internal/quality"
	"github.com/ahrav/go-dldprompt/internal/transform"
	"github.com/ahrav/go-dldprompt/internal/validation"
)

// Settings holds the configuration of every phase.
type Settings struct {
	Run        Config
	Validation validation.Config
	Generation generation.Config
	Quality    quality.Config
}

// DefaultSettings returns the default configuration of every phase.
func DefaultSettings() Settings {
	return Settings{
		Run:        DefaultConfig(),
		Validation: validation.DefaultConfig(),
		Generation: generation.DefaultConfig(),
		Quality:    quality.DefaultConfig(),
	}
}

// Build wires the default validation group, generation group and quality
// gate into an orchestrator.
func Build(s Settings, store knowledge.Reader, rec Recorder, tr transform.Transformer, logger *slog.Logger, m metrics.Metrics) (*Orchestrator, error) {
	validate, err := validation.NewDefaultGroup(s.Validation, logger, m)
	if err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}
	generate, err := generation.NewGroup(s.Generation, tr, logger, m)
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	gate, err := quality.NewDefaultGate(s.Quality, logger, m)
	if err != nil {
		return nil, fmt.Errorf("quality: %w", err)
	}
	run := s.Run
	run.LearnFromHistory = s.Generation.LearnFromHistory
	return New(run, store, rec, validate, generate, gate, WithLogger(logger), WithMetrics(m))
}
