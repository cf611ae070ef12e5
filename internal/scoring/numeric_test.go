package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractNumericFacts(t *testing.T) {
	got := ExtractNumericFacts("Pay $20,000 or 12.5% on 3 cards, then $20,000.00 again")

	assert.Equal(t, []NumericFact{
		{Kind: NumericMoney, Value: "$20000"},
		{Kind: NumericPercent, Value: "12.5%"},
		{Kind: NumericNumber, Value: "3"},
	}, got)
}

func TestNumericMatch(t *testing.T) {
	tests := []struct {
		name     string
		answer   string
		contexts []string
		want     float64
	}{
		{"no numbers", "Gold tier is premium.", []string{"Gold costs $5"}, 1.0},
		{"exact money", "Minimum is $20,000.", []string{"A $20,000 minimum applies."}, 1.0},
		{"money mismatch", "Minimum is $50,000.", []string{"A $20,000 minimum applies."}, 0.0},
		{"cents differ", "The fee is $19.50.", []string{"The fee is $19.99."}, 0.0},
		{"cents match", "The fee is $19.99.", []string{"A $19.99 fee applies."}, 1.0},
		{"zero cents match whole", "Pay $20.", []string{"Pay $20.00 today."}, 1.0},
		{"half", "Fee $5 and rate 2%.", []string{"Fee $5."}, 0.5},
		{"kind matters", "It costs 5.", []string{"It costs $5."}, 0.0},
		{"no contexts", "It costs $5.", nil, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NumericMatch(tt.answer, tt.contexts), 1e-9)
		})
	}
}

func TestUnsupportedNumbers(t *testing.T) {
	got := UnsupportedNumbers("Rate 3% then $50,000 and $5", []string{"Fee $5."})
	assert.Equal(t, []string{"percent:3%", "money:$50000"}, got)

	assert.Equal(t, []string{}, UnsupportedNumbers("no numbers here", nil))

	got = UnsupportedNumbers("The fee is $19.50.", []string{"The fee is $19.99."})
	assert.Equal(t, []string{"money:$19.50"}, got)
}
