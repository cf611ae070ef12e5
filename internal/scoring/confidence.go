package scoring

import "math"

// ConfidenceCalculator turns a report into a weighted confidence score.
type ConfidenceCalculator struct {
	weights struct {
		grounding float64
		numeric   float64
		entity    float64
	}
	high   float64
	medium float64
}

// NewConfidenceCalculator creates a calculator with default weights.
func NewConfidenceCalculator() *ConfidenceCalculator {
	return NewConfidenceCalculatorWithWeights(0.5, 0.3, 0.2)
}

// NewConfidenceCalculatorWithWeights creates a calculator with custom weights,
// normalized to sum to 1.
func NewConfidenceCalculatorWithWeights(grounding, numeric, entity float64) *ConfidenceCalculator {
	total := grounding + numeric + entity
	if total > 0 {
		grounding /= total
		numeric /= total
		entity /= total
	}
	cc := &ConfidenceCalculator{high: 0.75, medium: 0.5}
	cc.weights.grounding = grounding
	cc.weights.numeric = numeric
	cc.weights.entity = entity
	return cc
}

// Score combines precision, numeric match and entity coverage into [0, 1].
// Null fields count as zero.
func (cc *ConfidenceCalculator) Score(r *Report) float64 {
	if r == nil {
		return 0
	}
	entity := 0.0
	if r.EntityMatch.Overall != nil {
		entity = *r.EntityMatch.Overall
	}
	s := cc.weights.grounding*deref(r.PrecisionToken) +
		cc.weights.numeric*deref(r.NumericMatch) +
		cc.weights.entity*entity
	return math.Max(0.0, math.Min(1.0, s))
}

// Level maps a report to "High", "Medium" or "Low".
func (cc *ConfidenceCalculator) Level(r *Report) string {
	s := cc.Score(r)
	switch {
	case s >= cc.high:
		return "High"
	case s >= cc.medium:
		return "Medium"
	default:
		return "Low"
	}
}

var defaultConfidence = NewConfidenceCalculator()

// HeuristicConfidence grades a report with the default weights. It backs the
// confidence label when a generator does not supply one.
func HeuristicConfidence(r *Report) string {
	return defaultConfidence.Level(r)
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
