package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformScores(v float64) []DimensionScore {
	out := make([]DimensionScore, 0, 6)
	for _, d := range Dimensions() {
		out = append(out, DimensionScore{Name: d, Value: v})
	}
	return out
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{name: "defaults sum to one", weights: DefaultWeights()},
		{
			name: "custom weights summing to one",
			weights: Weights{
				DimCompleteness: 0.5, DimTechnicalAccuracy: 0.1, DimCursorCompatibility: 0.1,
				DimClarity: 0.1, DimSpecificity: 0.1, DimActionability: 0.1,
			},
		},
		{
			name: "sum below one",
			weights: Weights{
				DimCompleteness: 0.2, DimTechnicalAccuracy: 0.1, DimCursorCompatibility: 0.1,
				DimClarity: 0.1, DimSpecificity: 0.1, DimActionability: 0.1,
			},
			wantErr: true,
		},
		{
			name:    "missing dimension",
			weights: Weights{DimCompleteness: 0.5, DimTechnicalAccuracy: 0.5},
			wantErr: true,
		},
		{
			name: "unknown dimension",
			weights: Weights{
				DimCompleteness: 0.25, DimTechnicalAccuracy: 0.25, DimCursorCompatibility: 0.2,
				DimClarity: 0.1, DimSpecificity: 0.1, DimActionability: 0.1, "style": 0,
			},
			wantErr: true,
		},
		{
			name: "negative weight",
			weights: Weights{
				DimCompleteness: 0.45, DimTechnicalAccuracy: 0.25, DimCursorCompatibility: 0.2,
				DimClarity: 0.1, DimSpecificity: 0.1, DimActionability: -0.1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidWeights)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewQualityScore(t *testing.T) {
	t.Run("composite is the weighted sum", func(t *testing.T) {
		scores := []DimensionScore{
			{Name: DimActionability, Value: 0.5},
			{Name: DimCompleteness, Value: 1.0},
			{Name: DimTechnicalAccuracy, Value: 0.8},
			{Name: DimCursorCompatibility, Value: 0.6},
			{Name: DimClarity, Value: 0.9},
			{Name: DimSpecificity, Value: 0.7},
		}
		q := NewQualityScore(scores, DefaultWeights())

		// 0.25*1.0 + 0.25*0.8 + 0.2*0.6 + 0.1*0.9 + 0.1*0.7 + 0.1*0.5 = 0.78
		assert.InDelta(t, 0.78, q.Composite, 1e-9)
		assert.True(t, q.Complete())
		require.Len(t, q.Dimensions, 6)
		for i, d := range Dimensions() {
			assert.Equal(t, d, q.Dimensions[i].Name, "dimensions must follow the fixed order")
		}
	})

	t.Run("values are clamped", func(t *testing.T) {
		q := NewQualityScore([]DimensionScore{
			{Name: DimCompleteness, Value: 1.7},
			{Name: DimClarity, Value: -0.3},
		}, DefaultWeights())

		v, ok := q.Value(DimCompleteness)
		require.True(t, ok)
		assert.InDelta(t, 1.0, v, 1e-9)
		v, ok = q.Value(DimClarity)
		require.True(t, ok)
		assert.InDelta(t, 0.0, v, 1e-9)
		assert.False(t, q.Complete())
	})

	t.Run("uniform scores produce the same composite", func(t *testing.T) {
		q := NewQualityScore(uniformScores(0.72), DefaultWeights())
		assert.InDelta(t, 0.72, q.Composite, 1e-9)
	})
}

func TestQualityScore_Lowest(t *testing.T) {
	t.Run("picks the minimum", func(t *testing.T) {
		scores := uniformScores(0.9)
		scores[4].Value = 0.3 // specificity
		low, ok := NewQualityScore(scores, DefaultWeights()).Lowest()
		require.True(t, ok)
		assert.Equal(t, DimSpecificity, low.Name)
	})

	t.Run("ties resolve to the earlier dimension", func(t *testing.T) {
		scores := uniformScores(0.9)
		scores[3].Value = 0.4 // clarity
		scores[1].Value = 0.4 // technical-accuracy
		scores[5].Value = 0.4 // actionability
		low, ok := NewQualityScore(scores, DefaultWeights()).Lowest()
		require.True(t, ok)
		assert.Equal(t, DimTechnicalAccuracy, low.Name)
	})

	t.Run("all equal resolves to completeness", func(t *testing.T) {
		low, ok := NewQualityScore(uniformScores(0.5), DefaultWeights()).Lowest()
		require.True(t, ok)
		assert.Equal(t, DimCompleteness, low.Name)
	})

	t.Run("empty score has no lowest", func(t *testing.T) {
		_, ok := QualityScore{}.Lowest()
		assert.False(t, ok)
	})
}

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension("cursor-compatibility")
	require.NoError(t, err)
	assert.Equal(t, DimCursorCompatibility, d)

	_, err = ParseDimension("tone")
	require.ErrorIs(t, err, ErrUnknownDimension)
}
