package catalog

import (
	"encoding/json"
	"os"

	ierr "github.com/instpay/instpay/internal/errors"
)

// LoadCatalog reads and validates the plan and line item definition files,
// returning a catalog with instantiated plans.
func LoadCatalog(plansPath, lineItemsPath string) (*Catalog, error) {
	lineItems, err := loadLineItems(lineItemsPath)
	if err != nil {
		return nil, err
	}
	plans, err := loadPlans(plansPath, lineItems)
	if err != nil {
		return nil, err
	}
	catalog := &Catalog{Plans: plans, LineItems: lineItems}
	if _, err := catalog.Instantiate(); err != nil {
		return nil, err
	}
	if err := checkFreePlans(catalog.Plans); err != nil {
		return nil, err
	}
	return catalog, nil
}

func loadLineItems(path string) ([]*LineItem, error) {
	records, raw, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	if _, err := ValidateRecords("LineItems", records, LineItemSchema(), nil, true, true); err != nil {
		return nil, err
	}
	var lineItems []*LineItem
	if err := json.Unmarshal(raw, &lineItems); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to decode line items from %s", path).
			Mark(ierr.ErrValidation)
	}
	if err := checkUniqueNames("line item", lineItemNames(lineItems)); err != nil {
		return nil, err
	}
	return lineItems, nil
}

func loadPlans(path string, lineItems []*LineItem) ([]*Plan, error) {
	records, raw, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	extra := &ValidationContext{LineItems: lineItems}
	if _, err := ValidateRecords("Plans", records, PlanSchema(), extra, true, true); err != nil {
		return nil, err
	}
	var plans []*Plan
	if err := json.Unmarshal(raw, &plans); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to decode plans from %s", path).
			Mark(ierr.ErrValidation)
	}
	if err := checkUniqueNames("plan", planNames(plans)); err != nil {
		return nil, err
	}
	return plans, nil
}

func readRecords(path string) ([]Record, json.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, ierr.WithError(err).
			WithHintf("failed to read catalog file %s", path).
			Mark(ierr.ErrValidation)
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, nil, ierr.WithError(err).
			WithHintf("catalog file %s must contain a JSON array of objects", path).
			Mark(ierr.ErrValidation)
	}
	return records, raw, nil
}

func lineItemNames(items []*LineItem) []string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	return names
}

func planNames(plans []*Plan) []string {
	names := make([]string, len(plans))
	for i, plan := range plans {
		names[i] = plan.Name
	}
	return names
}

func checkUniqueNames(kind string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return ierr.NewErrorf("duplicate %s name %q", kind, name).
				Mark(ierr.ErrValidation)
		}
		seen[name] = true
	}
	return nil
}

// checkFreePlans enforces that every account type has exactly one priceless
// plan, the landing target for unsubscribed customers.
func checkFreePlans(plans []*Plan) error {
	freeByAccountType := make(map[string]int)
	for _, plan := range plans {
		if _, ok := freeByAccountType[plan.AccountType]; !ok {
			freeByAccountType[plan.AccountType] = 0
		}
		if plan.IsFree() {
			freeByAccountType[plan.AccountType]++
		}
	}
	for accountType, count := range freeByAccountType {
		if count != 1 {
			return ierr.NewErrorf("account type %q must have exactly one free plan, found %d", accountType, count).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}
