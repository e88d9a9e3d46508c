package generation

import (
	"errors"
	"fmt"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

// ErrInvalidConfig indicates a malformed generation configuration.
var ErrInvalidConfig = errors.New("invalid generation configuration")

// Defaults.
const (
	DefaultMaxConstraints   = 8
	DefaultMaxLocations     = 3
	DefaultLearnFromHistory = true
	DefaultTransformModel   = ""
)

// Config configures the generation group.
type Config struct {
	// Hints maps a quality dimension to the directives added to a retry
	// attempt whose hint names that dimension.
	Hints map[string][]string `koanf:"hints"`
	// LearnFromHistory seeds the first attempt of a run with the last hint
	// recorded for the same document.
	LearnFromHistory bool `koanf:"learn_from_history"`
	// MaxConstraints caps the constraint fragments added by enhancement.
	MaxConstraints int `koanf:"max_constraints" validate:"gte=0"`
	// MaxLocations caps candidate code locations per requirement.
	MaxLocations int `koanf:"max_locations" validate:"gte=1"`
	// Model is passed to the transformer; empty uses the provider default.
	Model string `koanf:"model"`
}

// DefaultHints returns the built-in directives for each dimension.
func DefaultHints() map[string][]string {
	return map[string][]string{
		string(domain.DimCompleteness): {
			"Cover every requirement listed above; do not drop any requirement id.",
			"Include the acceptance criteria verbatim as checks the code must pass.",
		},
		string(domain.DimTechnicalAccuracy): {
			"Use the exact 3GPP interface and network function names from the domain context.",
			"Expand each acronym on first use.",
		},
		string(domain.DimCursorCompatibility): {
			"Structure the prompt with markdown headings and bullet lists.",
			"Reference concrete file paths for every change.",
		},
		string(domain.DimClarity): {
			"Keep each instruction to a single short sentence.",
			"Avoid vague words such as maybe, perhaps, or somehow.",
		},
		string(domain.DimSpecificity): {
			"State numeric limits with units for every performance requirement.",
			"Name the functions and types to create.",
		},
		string(domain.DimActionability): {
			"Present the work as a numbered list of implementation steps.",
			"Start every step with an action verb such as implement, add, or test.",
		},
	}
}

// DefaultConfig returns the built-in generation configuration.
func DefaultConfig() Config {
	return Config{
		Hints:            DefaultHints(),
		LearnFromHistory: DefaultLearnFromHistory,
		MaxConstraints:   DefaultMaxConstraints,
		MaxLocations:     DefaultMaxLocations,
		Model:            DefaultTransformModel,
	}
}

// Validate checks dimension names and limits.
func (c Config) Validate() error {
	if err := domain.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for name := range c.Hints {
		if _, err := domain.ParseDimension(name); err != nil {
			return fmt.Errorf("%w: hints: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Directives returns the configured directives for the hint's dimension
// followed by the hint's own suggestions, without duplicates.
func (c Config) Directives(h domain.Hint) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, d := range c.Hints[string(h.Dimension)] {
		add(d)
	}
	for _, s := range h.Suggestions {
		add(s)
	}
	return out
}
