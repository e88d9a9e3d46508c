package quality

import (
	"errors"
	"fmt"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

// ErrInvalidConfig indicates malformed gate thresholds or weights.
var ErrInvalidConfig = errors.New("invalid quality configuration")

// Default thresholds.
const (
	DefaultAcceptThreshold = 0.8
	DefaultRetryThreshold  = 0.6
)

// Config configures the quality gate.
type Config struct {
	AcceptThreshold float64 `koanf:"accept_threshold" validate:"gte=0,lte=1"`
	RetryThreshold  float64 `koanf:"retry_threshold"  validate:"gte=0,lte=1"`
	// Weights maps dimension names to their share of the composite. Empty
	// means DefaultWeights.
	Weights map[string]float64 `koanf:"weights"`
}

// DefaultConfig returns the default thresholds with default weights.
func DefaultConfig() Config {
	w := make(map[string]float64, 6)
	for d, v := range domain.DefaultWeights() {
		w[string(d)] = v
	}
	return Config{
		AcceptThreshold: DefaultAcceptThreshold,
		RetryThreshold:  DefaultRetryThreshold,
		Weights:         w,
	}
}

// DimensionWeights converts the configured weights and validates them.
func (c Config) DimensionWeights() (domain.Weights, error) {
	if len(c.Weights) == 0 {
		return domain.DefaultWeights(), nil
	}
	w := make(domain.Weights, len(c.Weights))
	for name, v := range c.Weights {
		d, err := domain.ParseDimension(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidWeights, err)
		}
		w[d] = v
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate checks thresholds and weights.
func (c Config) Validate() error {
	if err := domain.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.RetryThreshold > c.AcceptThreshold {
		return fmt.Errorf("%w: retry threshold %.2f above accept threshold %.2f",
			ErrInvalidConfig, c.RetryThreshold, c.AcceptThreshold)
	}
	if _, err := c.DimensionWeights(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
