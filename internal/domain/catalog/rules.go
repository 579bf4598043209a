package catalog

import (
	"encoding/json"
	"math"
	"regexp"

	ierr "github.com/instpay/instpay/internal/errors"
	"github.com/instpay/instpay/internal/types"
)

// nameRegexp constrains plan and line item slugs
var nameRegexp = regexp.MustCompile(`(?i)^[a-z][a-z0-9_-]*$`)

// Unit rules shared between the plan and line item schemas

var ruleName = FieldRule{
	Message: "Must be a string, start with a letter, and only contain A-z, 0-9, - and _",
	Validate: func(value json.RawMessage, _ Record, _ *ValidationContext) error {
		var s string
		if err := json.Unmarshal(value, &s); err != nil || !nameRegexp.MatchString(s) {
			return errRuleFailed
		}
		return nil
	},
}

var ruleString = FieldRule{
	Message: "Must be a string and be > 0 in length",
	Validate: func(value json.RawMessage, _ Record, _ *ValidationContext) error {
		var s string
		if err := json.Unmarshal(value, &s); err != nil || s == "" {
			return errRuleFailed
		}
		return nil
	},
}

var ruleBoolean = FieldRule{
	Message: "Must be a boolean",
	Validate: func(value json.RawMessage, _ Record, _ *ValidationContext) error {
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return errRuleFailed
		}
		return nil
	},
}

var rulePositiveInteger = FieldRule{
	Message: "Must be a positive integer",
	Validate: func(value json.RawMessage, _ Record, _ *ValidationContext) error {
		if !isPositiveInteger(value) {
			return errRuleFailed
		}
		return nil
	},
}

var rulePrice = FieldRule{
	Message: "Must be either `null` or a valid object of key-value pairs representing currencies, currently only \"usd\" and \"eur\" are supported",
	Validate: func(value json.RawMessage, _ Record, _ *ValidationContext) error {
		if !isPriceTable(value) {
			return errRuleFailed
		}
		return nil
	},
}

var ruleAny = FieldRule{
	Message: "Any value is accepted",
	Validate: func(_ json.RawMessage, _ Record, _ *ValidationContext) error {
		return nil
	},
}

func isPositiveInteger(value json.RawMessage) bool {
	var f float64
	if err := json.Unmarshal(value, &f); err != nil {
		return false
	}
	return !math.IsNaN(f) && f == math.Trunc(f) && f >= 0
}

func isPriceTable(value json.RawMessage) bool {
	var table map[string]json.RawMessage
	if err := json.Unmarshal(value, &table); err != nil {
		// price may be null, but any other shape is invalid
		return string(value) == "null"
	}
	if table == nil {
		return true
	}
	if len(table) == 0 {
		return false
	}
	for currency, amount := range table {
		if !types.AllowedCurrencies[types.Currency(currency)] {
			return false
		}
		if !isPositiveInteger(amount) {
			return false
		}
	}
	return true
}

// settingsSchema returns the field rules for one line item type
func settingsSchema(t types.LineItemType) (Schema, error) {
	switch t {
	case types.LINE_ITEM_TYPE_CAPACITY:
		return Schema{
			"price":          rulePrice,
			"included_count": rulePositiveInteger,
		}, nil
	case types.LINE_ITEM_TYPE_USAGE:
		return Schema{
			"price":      rulePrice,
			"units":      rulePositiveInteger,
			"free_units": rulePositiveInteger,
			"unit_name":  ruleString,
		}, nil
	case types.LINE_ITEM_TYPE_FLAG:
		return Schema{
			"value":         ruleAny,
			"display_value": ruleString,
		}, nil
	}
	return nil, ierr.NewErrorf("no settings schema for line item type %q", t).Mark(ierr.ErrValidation)
}

// ValidateSettingsRecord validates a settings object against the schema of
// the given line item type. Strict mode requires every field; permissive
// mode (allFieldsRequired=false) accepts partial overrides.
func ValidateSettingsRecord(t types.LineItemType, record Record, allFieldsRequired bool) (bool, error) {
	schema, err := settingsSchema(t)
	if err != nil {
		return false, err
	}
	itemName := "Line Items Settings (type: \"" + string(t) + "\")"
	return ValidateRecords(itemName, []Record{record}, schema, nil, allFieldsRequired, allFieldsRequired)
}

// LineItemSchema is the strict schema for line item catalog records
func LineItemSchema() Schema {
	return Schema{
		"name":         ruleName,
		"display_name": ruleString,
		"description":  ruleString,
		"category":     ruleString,
		"type": {
			Message: "Must be one of: \"capacity\", \"usage\", \"flag\"",
			Validate: func(value json.RawMessage, _ Record, _ *ValidationContext) error {
				var t types.LineItemType
				if err := json.Unmarshal(value, &t); err != nil || !t.Validate() {
					return errRuleFailed
				}
				return nil
			},
		},
		"settings": {
			Message: "Must be a valid settings object for the line item type",
			Validate: func(value json.RawMessage, record Record, _ *ValidationContext) error {
				var settings Record
				if err := json.Unmarshal(value, &settings); err != nil || settings == nil {
					return errRuleFailed
				}
				var t types.LineItemType
				if err := json.Unmarshal(record["type"], &t); err != nil || !t.Validate() {
					return errRuleFailed
				}
				if _, err := ValidateSettingsRecord(t, settings, true); err != nil {
					return err
				}
				return nil
			},
		},
	}
}

// PlanSchema is the strict schema for plan catalog records. The validation
// context must carry the already loaded line items so overrides can be
// checked against them.
func PlanSchema() Schema {
	return Schema{
		"name":         ruleName,
		"display_name": ruleString,
		"account_type": ruleString,
		"enabled":      ruleBoolean,
		"visible":      ruleBoolean,
		"price":        rulePrice,
		"line_items_settings": {
			Message: "Must be an Object",
			Validate: func(value json.RawMessage, _ Record, extra *ValidationContext) error {
				var overrides map[string]Record
				if err := json.Unmarshal(value, &overrides); err != nil || overrides == nil {
					return errRuleFailed
				}
				for name, override := range overrides {
					lineItem := findLineItem(extra, name)
					if lineItem == nil {
						return ierr.NewErrorf("could not find Line Item %q", name).Mark(ierr.ErrValidation)
					}
					ok, err := ValidateSettingsRecord(lineItem.Type, override, false)
					if err != nil {
						return err
					}
					if !ok {
						return ierr.NewErrorf("error in Line Item Settings %q: invalid override for type %q", name, lineItem.Type).Mark(ierr.ErrValidation)
					}
				}
				return nil
			},
		},
	}
}

func findLineItem(extra *ValidationContext, name string) *LineItem {
	if extra == nil {
		return nil
	}
	for _, lineItem := range extra.LineItems {
		if lineItem.Name == name {
			return lineItem
		}
	}
	return nil
}
