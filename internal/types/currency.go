package types

import "sort"

// Currency is a 3 digit ISO currency code in lowercase ex usd, eur
type Currency string

const (
	CURRENCY_USD Currency = "usd"
	CURRENCY_EUR Currency = "eur"
)

// DefaultCurrency is the canonical currency for policy decisions such as
// the downgrade comparison between two plans
const DefaultCurrency = CURRENCY_USD

// AllowedCurrencies is the set of currencies the catalog accepts
var AllowedCurrencies = map[Currency]bool{
	CURRENCY_USD: true,
	CURRENCY_EUR: true,
}

// PriceTable maps a currency to an integer amount in minor units (cents).
// A nil table means free.
type PriceTable map[Currency]int64

// Validate checks every entry uses an allowed currency with a non-negative amount.
// A nil table is valid, an empty one is not.
func (p PriceTable) Validate() bool {
	if p == nil {
		return true
	}
	if len(p) == 0 {
		return false
	}
	for currency, amount := range p {
		if !AllowedCurrencies[currency] || amount < 0 {
			return false
		}
	}
	return true
}

// Currencies returns the table's currencies in sorted order for deterministic
// iteration
func (p PriceTable) Currencies() []Currency {
	currencies := make([]Currency, 0, len(p))
	for currency := range p {
		currencies = append(currencies, currency)
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i] < currencies[j] })
	return currencies
}

// Amount returns the amount for a currency, and whether it is present
func (p PriceTable) Amount(currency Currency) (int64, bool) {
	if p == nil {
		return 0, false
	}
	amount, ok := p[currency]
	return amount, ok
}

// Clone copies the price table. A nil table stays nil.
func (p PriceTable) Clone() PriceTable {
	if p == nil {
		return nil
	}
	out := make(PriceTable, len(p))
	for currency, amount := range p {
		out[currency] = amount
	}
	return out
}

// Equal reports whether two price tables carry the same amounts. Nil and
// empty tables are considered equal, both meaning free.
func (p PriceTable) Equal(other PriceTable) bool {
	if len(p) != len(other) {
		return false
	}
	for currency, amount := range p {
		if otherAmount, ok := other[currency]; !ok || otherAmount != amount {
			return false
		}
	}
	return true
}
