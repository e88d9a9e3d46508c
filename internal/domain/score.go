package domain

import (
	"fmt"
	"math"
)

// Dimension names one axis of prompt quality.
type Dimension string

// Quality dimensions in their fixed order. The order is also the tie-break
// order when two dimensions score equally low.
const (
	DimCompleteness        Dimension = "completeness"
	DimTechnicalAccuracy   Dimension = "technical-accuracy"
	DimCursorCompatibility Dimension = "cursor-compatibility"
	DimClarity             Dimension = "clarity"
	DimSpecificity         Dimension = "specificity"
	DimActionability       Dimension = "actionability"
)

// Dimensions returns all quality dimensions in their fixed order.
func Dimensions() []Dimension {
	return []Dimension{
		DimCompleteness,
		DimTechnicalAccuracy,
		DimCursorCompatibility,
		DimClarity,
		DimSpecificity,
		DimActionability,
	}
}

// Order returns the position of d in the fixed order, or -1.
func (d Dimension) Order() int {
	for i, x := range Dimensions() {
		if x == d {
			return i
		}
	}
	return -1
}

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool { return d.Order() >= 0 }

// ParseDimension converts s to a Dimension.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDimension, s)
	}
	return d, nil
}

// Default dimension weights.
const (
	CompletenessWeight        = 0.25
	TechnicalAccuracyWeight   = 0.25
	CursorCompatibilityWeight = 0.20
	ClarityWeight             = 0.10
	SpecificityWeight         = 0.10
	ActionabilityWeight       = 0.10
)

// weightTolerance absorbs float rounding when summing configured weights.
const weightTolerance = 1e-6

// Weights maps each dimension to its share of the composite score.
type Weights map[Dimension]float64

// DefaultWeights returns a fresh copy of the default weights.
func DefaultWeights() Weights {
	return Weights{
		DimCompleteness:        CompletenessWeight,
		DimTechnicalAccuracy:   TechnicalAccuracyWeight,
		DimCursorCompatibility: CursorCompatibilityWeight,
		DimClarity:             ClarityWeight,
		DimSpecificity:         SpecificityWeight,
		DimActionability:       ActionabilityWeight,
	}
}

// Validate checks that every dimension has a weight in [0,1], that no unknown
// dimension is present, and that the weights sum to 1.0.
func (w Weights) Validate() error {
	sum := 0.0
	for d, v := range w {
		if !d.Valid() {
			return fmt.Errorf("%w: %w: %q", ErrInvalidWeights, ErrUnknownDimension, d)
		}
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s weight %v outside [0,1]", ErrInvalidWeights, d, v)
		}
		sum += v
	}
	for _, d := range Dimensions() {
		if _, ok := w[d]; !ok {
			return fmt.Errorf("%w: missing weight for %s", ErrInvalidWeights, d)
		}
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1.0", ErrInvalidWeights, sum)
	}
	return nil
}

// DimensionScore holds the score for a single dimension with the scorer's
// improvement suggestions.
type DimensionScore struct {
	Name        Dimension `json:"name"                  validate:"required"`
	Value       float64   `json:"value"                 validate:"min=0,max=1"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// QualityScore is the per-dimension score of an artifact plus its composite.
type QualityScore struct {
	Dimensions []DimensionScore `json:"dimensions"`
	Composite  float64          `json:"composite"`
}

// NewQualityScore orders scores by the fixed dimension order, clamps every
// value into [0,1], and computes the weighted composite.
func NewQualityScore(scores []DimensionScore, w Weights) QualityScore {
	byName := make(map[Dimension]DimensionScore, len(scores))
	for _, s := range scores {
		byName[s.Name] = s
	}
	ordered := make([]DimensionScore, 0, len(byName))
	for _, d := range Dimensions() {
		s, ok := byName[d]
		if !ok {
			continue
		}
		s.Value = clamp01(s.Value)
		ordered = append(ordered, s)
	}
	return QualityScore{Dimensions: ordered, Composite: ComputeComposite(ordered, w)}
}

// ComputeComposite returns the weighted sum of the scores, clamped to [0,1].
func ComputeComposite(scores []DimensionScore, w Weights) float64 {
	total := 0.0
	for _, s := range scores {
		total += w[s.Name] * clamp01(s.Value)
	}
	return clamp01(total)
}

// Value returns the score recorded for d.
func (q QualityScore) Value(d Dimension) (float64, bool) {
	for _, s := range q.Dimensions {
		if s.Name == d {
			return s.Value, true
		}
	}
	return 0, false
}

// Score returns the full DimensionScore for d.
func (q QualityScore) Score(d Dimension) (DimensionScore, bool) {
	for _, s := range q.Dimensions {
		if s.Name == d {
			return s, true
		}
	}
	return DimensionScore{}, false
}

// Complete reports whether every dimension has a score.
func (q QualityScore) Complete() bool {
	for _, d := range Dimensions() {
		if _, ok := q.Value(d); !ok {
			return false
		}
	}
	return true
}

// Lowest returns the lowest-scoring dimension. Ties go to the dimension that
// comes first in the fixed order.
func (q QualityScore) Lowest() (DimensionScore, bool) {
	var (
		lowest DimensionScore
		found  bool
	)
	for _, d := range Dimensions() {
		s, ok := q.Score(d)
		if !ok {
			continue
		}
		if !found || s.Value < lowest.Value {
			lowest, found = s, true
		}
	}
	return lowest, found
}

// AsMap returns the dimension values keyed by name.
func (q QualityScore) AsMap() map[Dimension]float64 {
	out := make(map[Dimension]float64, len(q.Dimensions))
	for _, s := range q.Dimensions {
		out[s.Name] = s.Value
	}
	return out
}

// clamp01 ensures a value is within the range [0, 1].
func clamp01(x float64) float64 {
	if x < 0 || math.IsNaN(x) {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
