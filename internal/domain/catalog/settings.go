package catalog

import (
	"encoding/json"

	ierr "github.com/instpay/instpay/internal/errors"
	"github.com/instpay/instpay/internal/types"
)

// CapacitySettings configures a purchasable seat-like line item.
type CapacitySettings struct {
	Price         types.PriceTable `json:"price"`
	IncludedCount int64            `json:"included_count"`
}

// UsageSettings configures a metered line item. Units is the batch size a
// single priced unit covers; FreeUnits is the size of the initial free tier.
type UsageSettings struct {
	Price     types.PriceTable `json:"price"`
	Units     int64            `json:"units"`
	FreeUnits int64            `json:"free_units"`
	UnitName  string           `json:"unit_name"`
}

// FlagSettings configures a boolean-ish feature toggle carried on the plan.
type FlagSettings struct {
	Value        json.RawMessage `json:"value"`
	DisplayValue string          `json:"display_value"`
}

// Settings is the per-type settings payload of a line item. Exactly one of
// the pointers is set, matching the line item's type.
type Settings struct {
	Capacity *CapacitySettings
	Usage    *UsageSettings
	Flag     *FlagSettings
}

func (s Settings) MarshalJSON() ([]byte, error) {
	switch {
	case s.Capacity != nil:
		return json.Marshal(s.Capacity)
	case s.Usage != nil:
		return json.Marshal(s.Usage)
	case s.Flag != nil:
		return json.Marshal(s.Flag)
	}
	return []byte("null"), nil
}

// Price returns the price table of the settings, or nil for flags.
func (s Settings) Price() types.PriceTable {
	switch {
	case s.Capacity != nil:
		return s.Capacity.Price
	case s.Usage != nil:
		return s.Usage.Price
	}
	return nil
}

// Clone deep-copies the settings.
func (s Settings) Clone() Settings {
	out := Settings{}
	if s.Capacity != nil {
		c := *s.Capacity
		c.Price = s.Capacity.Price.Clone()
		out.Capacity = &c
	}
	if s.Usage != nil {
		u := *s.Usage
		u.Price = s.Usage.Price.Clone()
		out.Usage = &u
	}
	if s.Flag != nil {
		f := *s.Flag
		if s.Flag.Value != nil {
			f.Value = append(json.RawMessage(nil), s.Flag.Value...)
		}
		out.Flag = &f
	}
	return out
}

// EconomicallyEqual reports whether two settings would produce the same
// billing provider prices: equal price tables, and for usage items equal
// batch and free tier sizes. Flag values never influence pricing.
func (s Settings) EconomicallyEqual(other Settings) bool {
	if s.Capacity != nil {
		return other.Capacity != nil && s.Capacity.Price.Equal(other.Capacity.Price)
	}
	if s.Usage != nil {
		return other.Usage != nil &&
			s.Usage.Price.Equal(other.Usage.Price) &&
			s.Usage.Units == other.Usage.Units &&
			s.Usage.FreeUnits == other.Usage.FreeUnits
	}
	if s.Flag != nil {
		return other.Flag != nil
	}
	return other.Capacity == nil && other.Usage == nil && other.Flag == nil
}

// decodeSettings parses a raw settings object for the given line item type.
func decodeSettings(t types.LineItemType, raw json.RawMessage) (Settings, error) {
	var (
		s   Settings
		err error
	)
	switch t {
	case types.LINE_ITEM_TYPE_CAPACITY:
		c := &CapacitySettings{}
		err = json.Unmarshal(raw, c)
		s.Capacity = c
	case types.LINE_ITEM_TYPE_USAGE:
		u := &UsageSettings{}
		err = json.Unmarshal(raw, u)
		s.Usage = u
	case types.LINE_ITEM_TYPE_FLAG:
		f := &FlagSettings{}
		err = json.Unmarshal(raw, f)
		s.Flag = f
	default:
		return s, ierr.NewErrorf("unknown line item type %q", t).Mark(ierr.ErrValidation)
	}
	if err != nil {
		return Settings{}, ierr.WithError(err).
			WithHintf("failed to decode settings for line item type %q", t).
			Mark(ierr.ErrValidation)
	}
	return s, nil
}

// SettingsOverride is a partial settings object carried by a plan for one
// of its line items. Only present keys replace the base settings.
type SettingsOverride map[string]json.RawMessage

// apply returns a copy of base with the override's keys merged on top. The
// override must already be validated against the line item type's schema.
func (o SettingsOverride) apply(t types.LineItemType, base Settings) (Settings, error) {
	if len(o) == 0 {
		return base.Clone(), nil
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return Settings{}, ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(merged, &flat); err != nil {
		return Settings{}, ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	for key, value := range o {
		flat[key] = value
	}
	remarshaled, err := json.Marshal(flat)
	if err != nil {
		return Settings{}, ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	return decodeSettings(t, remarshaled)
}
