// Package usage implements the exact fixed-point accumulator used to batch
// metered consumption before reporting it to the billing provider. Reported
// units are whole batches; sub-batch leftovers are carried as an integer
// remainder quantity plus its exact decimal value, so no precision is ever
// lost between reports.
package usage

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	// MinScale bounds how fine-grained a quantity scale may be. Scales are
	// exponents in [-10, 0]: a quantity at scale (-3, -10) counts in units
	// of 10^-3 * 2^-10.
	MinScale = -10
	// MaxScale keeps scales non-positive so conversion factors stay integral.
	MaxScale = 0
)

// Remainder is the sub-batch leftover of an accumulation step. Quantity is
// the integer count at the given scales; Decimal is its exact value,
// Quantity * 10^Log10Scale * 2^Log2Scale.
type Remainder struct {
	Decimal    decimal.Decimal `json:"decimal"`
	Quantity   int64           `json:"quantity"`
	Log10Scale int             `json:"log10Scale"`
	Log2Scale  int             `json:"log2Scale"`
}

// Record is the result of accumulating usage: whole reportable units plus
// the exact remainder to carry into the next accumulation.
type Record struct {
	Units     int64     `json:"units"`
	Remainder Remainder `json:"remainder"`
}

// Factor returns the integer number of scaled quantity steps that make up
// one whole unit: 10^-log10Scale * 2^-log2Scale.
func Factor(log10Scale, log2Scale int) int64 {
	return pow10(-clampScale(log10Scale)) * pow2(-clampScale(log2Scale))
}

// Calculate splits a raw scaled quantity into whole units and an exact
// remainder. Negative, NaN and fractional quantities are floored to the
// nearest non-negative integer; scales are clamped into [MinScale, MaxScale].
func Calculate(quantity float64, log10Scale, log2Scale int) Record {
	return calculateInt(clampQuantity(quantity), clampScale(log10Scale), clampScale(log2Scale))
}

// Add merges two records. The remainders are brought to the coarser common
// scale pair, summed, and renormalized; any whole units the combined
// remainder now covers carry into the unit total. Addition is exact and
// commutative.
func Add(a, b Record) Record {
	l10 := minInt(a.Remainder.Log10Scale, b.Remainder.Log10Scale)
	l2 := minInt(a.Remainder.Log2Scale, b.Remainder.Log2Scale)
	combined := rescale(a.Remainder, l10, l2) + rescale(b.Remainder, l10, l2)
	merged := calculateInt(combined, l10, l2)
	merged.Units += a.Units + b.Units
	return merged
}

func calculateInt(quantity int64, l10, l2 int) Record {
	factor := pow10(-l10) * pow2(-l2)
	remainder := quantity % factor
	return Record{
		Units: quantity / factor,
		Remainder: Remainder{
			Decimal:    remainderDecimal(remainder, l10, l2),
			Quantity:   remainder,
			Log10Scale: l10,
			Log2Scale:  l2,
		},
	}
}

// rescale converts a remainder quantity to a finer-or-equal scale pair. The
// target scales are at most the remainder's own, so the multiplier is a
// positive integer and the conversion is exact.
func rescale(r Remainder, l10, l2 int) int64 {
	return r.Quantity * pow10(r.Log10Scale-l10) * pow2(r.Log2Scale-l2)
}

// remainderDecimal computes quantity * 10^l10 * 2^l2 exactly. With k = -l2,
// 2^l2 = 5^k * 10^-k, so the power of two becomes an integer multiplication
// followed by a decimal shift and stays exact.
func remainderDecimal(quantity int64, l10, l2 int) decimal.Decimal {
	k := -l2
	return decimal.NewFromInt(quantity).
		Shift(int32(l10)).
		Mul(decimal.NewFromInt(pow5(k))).
		Shift(int32(l2))
}

func clampQuantity(quantity float64) int64 {
	if math.IsNaN(quantity) || quantity <= 0 {
		return 0
	}
	floored := math.Floor(quantity)
	if floored >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(floored)
}

func clampScale(scale int) int {
	if scale < MinScale {
		return MinScale
	}
	if scale > MaxScale {
		return MaxScale
	}
	return scale
}

func pow10(exp int) int64 { return ipow(10, exp) }

func pow5(exp int) int64 { return ipow(5, exp) }

func pow2(exp int) int64 { return int64(1) << exp }

func ipow(base int64, exp int) int64 {
	result := int64(1)
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
