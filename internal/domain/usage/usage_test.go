package usage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name         string
		quantity     float64
		log10Scale   int
		log2Scale    int
		wantUnits    int64
		wantQuantity int64
		wantDecimal  string
	}{
		{
			name:        "zero quantity",
			quantity:    0,
			wantDecimal: "0",
		},
		{
			name:         "unscaled whole units",
			quantity:     7,
			wantUnits:    7,
			wantQuantity: 0,
			wantDecimal:  "0",
		},
		{
			name:         "decimal scale splits units and remainder",
			quantity:     2500,
			log10Scale:   -3,
			wantUnits:    2,
			wantQuantity: 500,
			wantDecimal:  "0.5",
		},
		{
			name:         "binary scale",
			quantity:     3000,
			log2Scale:    -10,
			wantUnits:    2,
			wantQuantity: 952,
			wantDecimal:  "0.9296875",
		},
		{
			name:         "mixed scales",
			quantity:     102500,
			log10Scale:   -2,
			log2Scale:    -3,
			wantUnits:    128,
			wantQuantity: 100,
			wantDecimal:  "0.125",
		},
		{
			name:        "negative quantity floors to zero",
			quantity:    -5,
			log10Scale:  -3,
			wantDecimal: "0",
		},
		{
			name:         "fractional quantity floors down",
			quantity:     2.9,
			wantUnits:    2,
			wantQuantity: 0,
			wantDecimal:  "0",
		},
		{
			name:         "out of range scales are clamped",
			quantity:     5,
			log10Scale:   -20,
			log2Scale:    3,
			wantUnits:    0,
			wantQuantity: 5,
			wantDecimal:  "0.0000000005",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := Calculate(tt.quantity, tt.log10Scale, tt.log2Scale)
			assert.Equal(t, tt.wantUnits, record.Units)
			assert.Equal(t, tt.wantQuantity, record.Remainder.Quantity)
			want := decimal.RequireFromString(tt.wantDecimal)
			assert.True(t, want.Equal(record.Remainder.Decimal),
				"decimal mismatch: want %s got %s", want, record.Remainder.Decimal)
		})
	}
}

func TestCalculateExecutionTimeScenario(t *testing.T) {
	// 100 GB·s of execution time measured in MB·ms, plus 100 raw units of
	// overflow: scales (-3, -10) convert ms to s and MB to GB
	quantity := float64(100*1024*1000 + 100)
	record := Calculate(quantity, -3, -10)

	assert.Equal(t, int64(100), record.Units)
	assert.Equal(t, int64(100), record.Remainder.Quantity)
	assert.Equal(t, -3, record.Remainder.Log10Scale)
	assert.Equal(t, -10, record.Remainder.Log2Scale)
	assert.True(t, record.Remainder.Decimal.IsPositive())

	// merging a second measurement carries the remainder forward
	second := Calculate(float64(267*1024*1000+233), -3, -10)
	merged := Add(second, Record{Remainder: record.Remainder})
	assert.Equal(t, int64(267), merged.Units)
	assert.Equal(t, int64(333), merged.Remainder.Quantity)
}

func TestCalculateBinaryRemainderIsExact(t *testing.T) {
	// 1/1024 has an exact decimal expansion; the accumulator must not round it
	record := Calculate(1025, 0, -10)
	require.Equal(t, int64(1), record.Units)
	require.Equal(t, int64(1), record.Remainder.Quantity)
	assert.Equal(t, "0.0009765625", record.Remainder.Decimal.String())
}

func TestAddMergesRemaindersAtCommonScale(t *testing.T) {
	a := Calculate(7, -1, 0)  // 0.7
	b := Calculate(3, 0, -2)  // 0.75
	sum := Add(a, b)

	assert.Equal(t, int64(1), sum.Units)
	assert.Equal(t, int64(18), sum.Remainder.Quantity)
	assert.Equal(t, -1, sum.Remainder.Log10Scale)
	assert.Equal(t, -2, sum.Remainder.Log2Scale)
	// 0.7 + 0.75 = 1.45: one whole unit plus 0.45 carried forward
	assert.True(t, decimal.RequireFromString("0.45").Equal(sum.Remainder.Decimal))
}

func TestAddCarriesUnitsFromBothSides(t *testing.T) {
	a := Calculate(2700, -3, 0) // units 2, remainder 0.7
	b := Calculate(1600, -3, 0) // units 1, remainder 0.6
	sum := Add(a, b)

	assert.Equal(t, int64(4), sum.Units)
	assert.Equal(t, int64(300), sum.Remainder.Quantity)
	assert.True(t, decimal.RequireFromString("0.3").Equal(sum.Remainder.Decimal))
}

func TestAddIsCommutative(t *testing.T) {
	a := Calculate(1023, 0, -10)
	b := Calculate(999, -3, 0)
	left := Add(a, b)
	right := Add(b, a)

	assert.Equal(t, left.Units, right.Units)
	assert.Equal(t, left.Remainder.Quantity, right.Remainder.Quantity)
	assert.Equal(t, left.Remainder.Log10Scale, right.Remainder.Log10Scale)
	assert.Equal(t, left.Remainder.Log2Scale, right.Remainder.Log2Scale)
	assert.True(t, left.Remainder.Decimal.Equal(right.Remainder.Decimal))
}

func TestAddWithZeroIsIdentity(t *testing.T) {
	a := Calculate(123456, -3, -2)
	zero := Calculate(0, 0, 0)
	sum := Add(a, zero)

	assert.Equal(t, a.Units, sum.Units)
	assert.True(t, a.Remainder.Decimal.Equal(sum.Remainder.Decimal))
}

func TestFactor(t *testing.T) {
	assert.Equal(t, int64(1), Factor(0, 0))
	assert.Equal(t, int64(1000), Factor(-3, 0))
	assert.Equal(t, int64(1024), Factor(0, -10))
	assert.Equal(t, int64(800), Factor(-2, -3))
}
