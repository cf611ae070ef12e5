package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceCalculator(t *testing.T) {
	cc := NewConfidenceCalculator()

	tests := []struct {
		name      string
		report    *Report
		wantScore float64
		wantLevel string
	}{
		{"nil report", nil, 0, "Low"},
		{
			name:      "fully grounded",
			report:    &Report{PrecisionToken: ptr(1), NumericMatch: ptr(1), EntityMatch: EntityMatch{Overall: ptr(1)}},
			wantScore: 1,
			wantLevel: "High",
		},
		{
			name:      "missing entity counts as zero",
			report:    &Report{PrecisionToken: ptr(0.5), NumericMatch: ptr(1)},
			wantScore: 0.55,
			wantLevel: "Medium",
		},
		{
			name:      "unsupported numbers",
			report:    &Report{PrecisionToken: ptr(0.6), NumericMatch: ptr(0), EntityMatch: EntityMatch{Overall: ptr(0.5)}},
			wantScore: 0.4,
			wantLevel: "Low",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.wantScore, cc.Score(tt.report), 1e-9)
			assert.Equal(t, tt.wantLevel, cc.Level(tt.report))
		})
	}
}

func TestConfidenceCalculator_NormalizesWeights(t *testing.T) {
	cc := NewConfidenceCalculatorWithWeights(2, 0, 0)
	r := &Report{PrecisionToken: ptr(0.8), NumericMatch: ptr(0)}
	assert.InDelta(t, 0.8, cc.Score(r), 1e-9)
}

func TestHeuristicConfidence(t *testing.T) {
	assert.Equal(t, "High", HeuristicConfidence(&Report{PrecisionToken: ptr(0.9), NumericMatch: ptr(1), EntityMatch: EntityMatch{Overall: ptr(0.8)}}))
	assert.Equal(t, "Low", HeuristicConfidence(&Report{}))
}
