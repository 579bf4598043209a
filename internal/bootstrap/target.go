package bootstrap

import (
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/domain/catalog"
	"github.com/instpay/instpay/internal/types"
)

// priceTarget is the economically material shape a provider price must
// have. Existing prices are compared against it field by field; a mismatch
// means deactivate-and-recreate, since provider prices are immutable.
type priceTarget struct {
	currency      types.Currency
	nickname      string
	metadata      types.Metadata
	billingScheme stripe.PriceBillingScheme
	tiersMode     stripe.PriceTiersMode
	interval      stripe.PriceRecurringInterval
	usageType     stripe.PriceRecurringUsageType
	unitAmount    *decimal.Decimal
	tiers         []priceTierTarget
}

type priceTierTarget struct {
	unitAmount decimal.Decimal
	// upTo 0 means unbounded
	upTo int64
}

// formatAmount renders a minor-unit amount the way the provider expects
// unit_amount_decimal values: at most 12 fractional digits, trailing zeros
// stripped.
func formatAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(12)
}

// licensedTarget is the per-unit monthly price used by plans and capacity
// line items.
func licensedTarget(scopeKey string, tags types.Metadata, currency types.Currency, amount int64) priceTarget {
	unitAmount := formatAmount(decimal.NewFromInt(amount))
	return priceTarget{
		currency:      currency,
		nickname:      scopeKey,
		metadata:      tags,
		billingScheme: stripe.PriceBillingSchemePerUnit,
		interval:      stripe.PriceRecurringIntervalMonth,
		usageType:     stripe.PriceRecurringUsageTypeLicensed,
		unitAmount:    &unitAmount,
	}
}

// meteredTarget is the graduated tiered price used by usage line items: an
// optional free tier covering freeUnits, then amount/units per unit with no
// upper bound.
func meteredTarget(scopeKey string, tags types.Metadata, currency types.Currency, amount, units, freeUnits int64) priceTarget {
	perUnit := formatAmount(decimal.NewFromInt(amount).Div(decimal.NewFromInt(units)))
	tiers := []priceTierTarget{}
	if freeUnits > 0 {
		tiers = append(tiers, priceTierTarget{unitAmount: decimal.Zero, upTo: freeUnits})
	}
	tiers = append(tiers, priceTierTarget{unitAmount: perUnit})
	return priceTarget{
		currency:      currency,
		nickname:      scopeKey,
		metadata:      tags,
		billingScheme: stripe.PriceBillingSchemeTiered,
		tiersMode:     stripe.PriceTiersModeGraduated,
		interval:      stripe.PriceRecurringIntervalMonth,
		usageType:     stripe.PriceRecurringUsageTypeMetered,
		tiers:         tiers,
	}
}

// targetFor builds the price target for one of a plan's line items.
func targetFor(item *catalog.PlanLineItem, currency types.Currency, amount int64) priceTarget {
	tags := catalog.PriceTags(types.PRODUCT_TYPE_LINE_ITEM, item.Name, item.PlanScope())
	if item.Type == types.LINE_ITEM_TYPE_USAGE {
		return meteredTarget(item.ScopeKey(), tags, currency, amount, item.Settings.Usage.Units, item.Settings.Usage.FreeUnits)
	}
	return licensedTarget(item.ScopeKey(), tags, currency, amount)
}

// targetForPlan builds the price target for the plan's own identity item.
func targetForPlan(plan *catalog.Plan, currency types.Currency, amount int64) priceTarget {
	tags := catalog.PriceTags(types.PRODUCT_TYPE_PLAN, plan.Name, "")
	return licensedTarget(plan.Name, tags, currency, amount)
}

func (t priceTarget) params(productID string) *stripe.PriceParams {
	params := &stripe.PriceParams{
		Product:       stripe.String(productID),
		Currency:      stripe.String(string(t.currency)),
		Nickname:      stripe.String(t.nickname),
		BillingScheme: stripe.String(string(t.billingScheme)),
		Recurring: &stripe.PriceRecurringParams{
			Interval:  stripe.String(string(t.interval)),
			UsageType: stripe.String(string(t.usageType)),
		},
	}
	params.Metadata = t.metadata.Clone()
	if t.unitAmount != nil {
		amount, _ := t.unitAmount.Float64()
		params.UnitAmountDecimal = stripe.Float64(amount)
	}
	if t.tiersMode != "" {
		params.TiersMode = stripe.String(string(t.tiersMode))
	}
	for _, tier := range t.tiers {
		tierParams := &stripe.PriceTierParams{}
		amount, _ := tier.unitAmount.Float64()
		tierParams.UnitAmountDecimal = stripe.Float64(amount)
		if tier.upTo > 0 {
			tierParams.UpTo = stripe.Int64(tier.upTo)
		} else {
			tierParams.UpToInf = stripe.Bool(true)
		}
		params.Tiers = append(params.Tiers, tierParams)
	}
	return params
}

// matches reports whether an existing price is economically identical to
// the target. Cosmetic attributes like nickname or metadata never trigger a
// replacement.
func (t priceTarget) matches(price *stripe.Price) bool {
	if price.Currency != stripe.Currency(t.currency) {
		return false
	}
	if price.BillingScheme != t.billingScheme {
		return false
	}
	if price.TiersMode != t.tiersMode {
		return false
	}
	if price.Recurring == nil ||
		price.Recurring.Interval != t.interval ||
		price.Recurring.UsageType != t.usageType {
		return false
	}
	if t.unitAmount != nil {
		if !decimal.NewFromFloat(price.UnitAmountDecimal).Equal(*t.unitAmount) {
			return false
		}
	} else if price.UnitAmountDecimal != 0 {
		return false
	}
	if len(price.Tiers) != len(t.tiers) {
		return false
	}
	for i, tier := range t.tiers {
		existing := price.Tiers[i]
		if !decimal.NewFromFloat(existing.UnitAmountDecimal).Equal(tier.unitAmount) {
			return false
		}
		if existing.UpTo != tier.upTo {
			return false
		}
	}
	return true
}
