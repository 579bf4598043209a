package catalog

import (
	"encoding/json"

	"github.com/stripe/stripe-go/v76"

	ierr "github.com/instpay/instpay/internal/errors"
	"github.com/instpay/instpay/internal/types"
)

// LineItem is a catalog line item definition, shared by every plan that
// references it.
type LineItem struct {
	Name        string              `json:"name"`
	DisplayName string              `json:"display_name"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	Type        types.LineItemType  `json:"type"`
	Settings    Settings            `json:"settings"`
}

func (l *LineItem) UnmarshalJSON(data []byte) error {
	type shadow struct {
		Name        string             `json:"name"`
		DisplayName string             `json:"display_name"`
		Description string             `json:"description"`
		Category    string             `json:"category"`
		Type        types.LineItemType `json:"type"`
		Settings    json.RawMessage    `json:"settings"`
	}
	var s shadow
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	settings, err := decodeSettings(s.Type, s.Settings)
	if err != nil {
		return err
	}
	*l = LineItem{
		Name:        s.Name,
		DisplayName: s.DisplayName,
		Description: s.Description,
		Category:    s.Category,
		Type:        s.Type,
		Settings:    settings,
	}
	return nil
}

// Plan is a catalog plan definition. LineItemsSettings keys are line item
// names; values are partial overrides of the item's base settings.
type Plan struct {
	Name              string                      `json:"name"`
	DisplayName       string                      `json:"display_name"`
	AccountType       string                      `json:"account_type"`
	Enabled           bool                        `json:"enabled"`
	Visible           bool                        `json:"visible"`
	Price             types.PriceTable            `json:"price"`
	LineItemsSettings map[string]SettingsOverride `json:"line_items_settings"`

	// Populated by Catalog.Instantiate
	LineItems []*PlanLineItem `json:"line_items,omitempty"`
	// Populated by the synchronizer
	StripeData *StripeData `json:"stripe,omitempty"`
}

// EffectivePrice returns the plan's price table, defaulting to a free
// single-currency table when the catalog omits one.
func (p *Plan) EffectivePrice() types.PriceTable {
	if len(p.Price) == 0 {
		return types.PriceTable{types.DefaultCurrency: 0}
	}
	return p.Price
}

// IsFree reports whether the plan is the priceless fallback plan. A free
// plan still gets a zero-amount remote price, so this checks the catalog
// definition rather than the synchronized amount.
func (p *Plan) IsFree() bool {
	return p.Price == nil
}

// LineItem returns the plan's instantiated line item by name, or nil.
func (p *Plan) LineItem(name string) *PlanLineItem {
	for _, item := range p.LineItems {
		if item.Name == name {
			return item
		}
	}
	return nil
}

// Clone deep-copies the plan, including instantiated line items and any
// attached billing provider state.
func (p *Plan) Clone() *Plan {
	out := *p
	out.Price = p.Price.Clone()
	if p.LineItemsSettings != nil {
		out.LineItemsSettings = make(map[string]SettingsOverride, len(p.LineItemsSettings))
		for name, override := range p.LineItemsSettings {
			cloned := make(SettingsOverride, len(override))
			for key, value := range override {
				cloned[key] = append(json.RawMessage(nil), value...)
			}
			out.LineItemsSettings[name] = cloned
		}
	}
	if p.LineItems != nil {
		out.LineItems = make([]*PlanLineItem, len(p.LineItems))
		for i, item := range p.LineItems {
			out.LineItems[i] = item.Clone()
		}
	}
	out.StripeData = p.StripeData.Clone()
	return &out
}

// PlanLineItem is a line item instantiated for one plan, with the plan's
// overrides applied. A template item carries settings economically equal to
// the base line item and therefore shares prices across plans.
type PlanLineItem struct {
	Name        string             `json:"name"`
	DisplayName string             `json:"display_name"`
	Description string             `json:"description"`
	Category    string             `json:"category"`
	Type        types.LineItemType `json:"type"`
	Settings    Settings           `json:"settings"`
	PlanName    string             `json:"plan_name"`
	IsTemplate  bool               `json:"is_template"`

	// Populated by the synchronizer / subscription lookups
	StripeData *StripeData `json:"stripe,omitempty"`
	// Populated for capacity items on an active subscription
	PurchasedCount int64 `json:"purchased_count,omitempty"`
}

func (l *PlanLineItem) MarshalJSON() ([]byte, error) {
	type alias PlanLineItem
	return json.Marshal((*alias)(l))
}

func (l *PlanLineItem) UnmarshalJSON(data []byte) error {
	type shadow struct {
		Name           string             `json:"name"`
		DisplayName    string             `json:"display_name"`
		Description    string             `json:"description"`
		Category       string             `json:"category"`
		Type           types.LineItemType `json:"type"`
		Settings       json.RawMessage    `json:"settings"`
		PlanName       string             `json:"plan_name"`
		IsTemplate     bool               `json:"is_template"`
		StripeData     *StripeData        `json:"stripe"`
		PurchasedCount int64              `json:"purchased_count"`
	}
	var s shadow
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	settings, err := decodeSettings(s.Type, s.Settings)
	if err != nil {
		return err
	}
	*l = PlanLineItem{
		Name:           s.Name,
		DisplayName:    s.DisplayName,
		Description:    s.Description,
		Category:       s.Category,
		Type:           s.Type,
		Settings:       settings,
		PlanName:       s.PlanName,
		IsTemplate:     s.IsTemplate,
		StripeData:     s.StripeData,
		PurchasedCount: s.PurchasedCount,
	}
	return nil
}

// ScopeKey identifies the price scope of the item: template items share a
// wildcard scope across plans, customized items get a per-plan scope.
func (l *PlanLineItem) ScopeKey() string {
	if l.IsTemplate {
		return "*." + l.Name
	}
	return l.PlanName + "." + l.Name
}

// Clone deep-copies the plan line item.
func (l *PlanLineItem) Clone() *PlanLineItem {
	out := *l
	out.Settings = l.Settings.Clone()
	out.StripeData = l.StripeData.Clone()
	return &out
}

// StripeData holds the billing provider objects resolved for a catalog
// entity. Product and Prices come from the synchronizer; the subscription
// fields are attached when inspecting a customer's current plan.
type StripeData struct {
	Product              *stripe.Product                 `json:"product,omitempty"`
	Prices               map[types.Currency]*stripe.Price `json:"prices,omitempty"`
	Subscription         *stripe.Subscription            `json:"subscription,omitempty"`
	SubscriptionItem     *stripe.SubscriptionItem        `json:"subscription_item,omitempty"`
	UsageRecordSummaries []*stripe.UsageRecordSummary    `json:"usage_record_summaries,omitempty"`
}

// Price returns the resolved price for a currency, or nil.
func (d *StripeData) Price(currency types.Currency) *stripe.Price {
	if d == nil {
		return nil
	}
	return d.Prices[currency]
}

// Clone shallow-copies the provider objects into a fresh container. The
// objects themselves are provider responses and treated as immutable.
func (d *StripeData) Clone() *StripeData {
	if d == nil {
		return nil
	}
	out := *d
	if d.Prices != nil {
		out.Prices = make(map[types.Currency]*stripe.Price, len(d.Prices))
		for currency, price := range d.Prices {
			out.Prices[currency] = price
		}
	}
	if d.UsageRecordSummaries != nil {
		out.UsageRecordSummaries = append([]*stripe.UsageRecordSummary(nil), d.UsageRecordSummaries...)
	}
	return &out
}

// Catalog bundles validated plans and line items loaded from disk.
type Catalog struct {
	Plans     []*Plan
	LineItems []*LineItem
}

// LineItem returns the base line item by name, or nil.
func (c *Catalog) LineItem(name string) *LineItem {
	for _, item := range c.LineItems {
		if item.Name == name {
			return item
		}
	}
	return nil
}

// Plan returns the plan by name, or nil.
func (c *Catalog) Plan(name string) *Plan {
	for _, plan := range c.Plans {
		if plan.Name == name {
			return plan
		}
	}
	return nil
}

// Instantiate resolves every plan's line items by applying the plan's
// overrides to the base definitions and computing template status. Plans are
// mutated in place and returned for convenience.
func (c *Catalog) Instantiate() ([]*Plan, error) {
	for _, plan := range c.Plans {
		plan.LineItems = plan.LineItems[:0]
		for _, base := range c.LineItems {
			override := plan.LineItemsSettings[base.Name]
			settings, err := override.apply(base.Type, base.Settings)
			if err != nil {
				return nil, ierr.WithError(err).
					WithHintf("invalid settings override for line item %q in plan %q", base.Name, plan.Name).
					Mark(ierr.ErrValidation)
			}
			plan.LineItems = append(plan.LineItems, &PlanLineItem{
				Name:        base.Name,
				DisplayName: base.DisplayName,
				Description: base.Description,
				Category:    base.Category,
				Type:        base.Type,
				Settings:    settings,
				PlanName:    plan.Name,
				IsTemplate:  settings.EconomicallyEqual(base.Settings),
			})
		}
	}
	return c.Plans, nil
}
