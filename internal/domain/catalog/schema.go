package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	ierr "github.com/instpay/instpay/internal/errors"
)

// Record is one raw catalog entry, field name to raw JSON value
type Record map[string]json.RawMessage

// errRuleFailed signals a rule failure that should surface the rule's
// canned Message. Rules return any other error to surface a custom message.
var errRuleFailed = errors.New("rule failed")

// FieldRule validates a single named field of a record
type FieldRule struct {
	// Message describes the requirements for the field to pass validation
	Message string

	// Validate returns nil when value is acceptable, errRuleFailed to use
	// Message as the diagnostic, or any other error for a custom diagnostic
	Validate func(value json.RawMessage, record Record, extra *ValidationContext) error
}

// Schema maps field names to their rules
type Schema map[string]FieldRule

// ValidationContext carries extra values some rules need, such as the full
// line item list when validating plan overrides
type ValidationContext struct {
	LineItems []*LineItem
}

// ValidateRecords checks every record against the schema: each present field
// must pass its rule, no unrecognized fields may exist, and, when
// allFieldsRequired is set, no schema field may be missing. With throwErrors
// it returns an aggregated ErrValidation on the first failing record;
// otherwise it reports overall validity as a boolean.
func ValidateRecords(itemName string, records []Record, schema Schema, extra *ValidationContext, throwErrors, allFieldsRequired bool) (bool, error) {
	if itemName == "" {
		return false, ierr.NewError("validation requires a valid itemName").Mark(ierr.ErrValidation)
	}
	if len(records) == 0 {
		return false, ierr.NewErrorf("validation requires a non-empty %s records list", itemName).Mark(ierr.ErrValidation)
	}
	if len(schema) == 0 {
		return false, ierr.NewErrorf("validation requires a non-empty schema for %s", itemName).Mark(ierr.ErrValidation)
	}
	for field, rule := range schema {
		if rule.Validate == nil {
			return false, ierr.NewErrorf("schema field %q has no validate function", field).Mark(ierr.ErrSystem)
		}
		if rule.Message == "" {
			return false, ierr.NewErrorf("schema field %q has no message describing its requirements", field).Mark(ierr.ErrSystem)
		}
	}

	valid := true
	for _, record := range records {
		keyErrors := map[string]string{}
		var invalidKeys []string
		remaining := lo.Keys(schema)

		for _, key := range sortedKeys(record) {
			rule, ok := schema[key]
			if !ok {
				invalidKeys = append(invalidKeys, key)
				continue
			}
			remaining = lo.Without(remaining, key)
			if err := rule.Validate(record[key], record, extra); err != nil {
				if errors.Is(err, errRuleFailed) {
					keyErrors[key] = rule.Message
				} else {
					keyErrors[key] = err.Error()
				}
			}
		}

		details := map[string]any{}
		if len(keyErrors) > 0 {
			details["key_errors"] = keyErrors
		}
		if len(invalidKeys) > 0 {
			sort.Strings(invalidKeys)
			details["invalid_keys"] = invalidKeys
		}
		if allFieldsRequired && len(remaining) > 0 {
			sort.Strings(remaining)
			details["missing_keys"] = remaining
		}
		if len(details) == 0 {
			continue
		}

		valid = false
		if throwErrors {
			return false, ierr.NewError(formatRecordError(itemName, record, details)).
				WithHintf("Invalid %s definition", itemName).
				WithReportableDetails(details).
				Mark(ierr.ErrValidation)
		}
	}
	return valid, nil
}

// formatRecordError renders the aggregated diagnostic block for one record
func formatRecordError(itemName string, record Record, details map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error in %s", itemName)
	if name := recordName(record); name != "" {
		fmt.Fprintf(&b, " %q", name)
	}
	for _, section := range []string{"key_errors", "invalid_keys", "missing_keys"} {
		item, ok := details[section]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n  %s:", section)
		switch v := item.(type) {
		case []string:
			fmt.Fprintf(&b, " %q", strings.Join(v, `", "`))
		case map[string]string:
			for _, key := range sortedStringMapKeys(v) {
				fmt.Fprintf(&b, "\n    %s: %s", key, v[key])
			}
		}
	}
	return b.String()
}

func recordName(record Record) string {
	raw, ok := record["name"]
	if !ok {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return ""
	}
	return name
}

func sortedKeys(record Record) []string {
	keys := lo.Keys(record)
	sort.Strings(keys)
	return keys
}

func sortedStringMapKeys(m map[string]string) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
