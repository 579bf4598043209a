package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instpay/instpay/internal/domain/catalog"
	ierr "github.com/instpay/instpay/internal/errors"
	"github.com/instpay/instpay/internal/testutil"
	"github.com/instpay/instpay/internal/types"
)

const minimalLineItems = `[
  {
    "name": "seat",
    "display_name": "Seat",
    "description": "A seat",
    "category": "workspace",
    "type": "capacity",
    "settings": {"price": {"usd": 100}, "included_count": 1}
  }
]`

const minimalPlans = `[
  {
    "name": "starter",
    "display_name": "Starter",
    "account_type": "user",
    "enabled": true,
    "visible": true,
    "price": null,
    "line_items_settings": {}
  }
]`

func writeCatalog(t *testing.T, plansJSON, lineItemsJSON string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	plansPath := filepath.Join(dir, "plans.json")
	itemsPath := filepath.Join(dir, "line_items.json")
	require.NoError(t, os.WriteFile(plansPath, []byte(plansJSON), 0o644))
	require.NoError(t, os.WriteFile(itemsPath, []byte(lineItemsJSON), 0o644))
	return plansPath, itemsPath
}

func TestLoadCatalog(t *testing.T) {
	plansPath, itemsPath := writeCatalog(t,
		string(testutil.FixturePlansJSON()), string(testutil.FixtureLineItemsJSON()))

	cat, err := catalog.LoadCatalog(plansPath, itemsPath)
	require.NoError(t, err)
	require.Len(t, cat.Plans, 3)
	require.Len(t, cat.LineItems, 12)

	standard := cat.Plan("standard_plan")
	require.NotNil(t, standard)
	assert.False(t, standard.IsFree())
	require.Len(t, standard.LineItems, 12)

	seats := standard.LineItem("collaborator_seats")
	require.NotNil(t, seats)
	require.NotNil(t, seats.Settings.Capacity)
	assert.Equal(t, int64(2), seats.Settings.Capacity.IncludedCount)
	amount, ok := seats.Settings.Capacity.Price.Amount(types.CURRENCY_USD)
	require.True(t, ok)
	assert.Equal(t, int64(5000), amount)

	free := cat.Plan("free_plan")
	require.NotNil(t, free)
	assert.True(t, free.IsFree())
	assert.Nil(t, free.LineItem("projects").Settings.Price())
}

func TestTemplateDetection(t *testing.T) {
	cat := testutil.FixtureCatalog()
	plans, err := cat.Instantiate()
	require.NoError(t, err)

	for _, plan := range plans {
		// Never overridden, so priced from the shared template scope.
		assert.True(t, plan.LineItem("execution_time").IsTemplate, plan.Name)
	}

	// A price override forces a plan-scoped price; an included count
	// override alone does not.
	assert.False(t, plans[1].LineItem("collaborator_seats").IsTemplate)
	assert.True(t, plans[0].LineItem("collaborator_seats").IsTemplate)
}

func TestScopeKeys(t *testing.T) {
	cat := testutil.FixtureCatalog()
	_, err := cat.Instantiate()
	require.NoError(t, err)

	standard := cat.Plan("standard_plan")
	assert.Equal(t, "*.execution_time", standard.LineItem("execution_time").ScopeKey())
	assert.Equal(t, "*", standard.LineItem("execution_time").PlanScope())
	assert.Equal(t, "standard_plan.collaborator_seats", standard.LineItem("collaborator_seats").ScopeKey())
	assert.Equal(t, "standard_plan", standard.LineItem("collaborator_seats").PlanScope())
}

func TestRejectsUnknownField(t *testing.T) {
	items := `[
  {
    "name": "seat",
    "display_name": "Seat",
    "description": "A seat",
    "category": "workspace",
    "type": "capacity",
    "settings": {"price": {"usd": 100}, "included_count": 1},
    "color": "red"
  }
]`
	plansPath, itemsPath := writeCatalog(t, minimalPlans, items)

	_, err := catalog.LoadCatalog(plansPath, itemsPath)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
	assert.Contains(t, err.Error(), `invalid_keys: "color"`)

	details := ierr.ReportableDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, []string{"color"}, details["invalid_keys"])
}

func TestRejectsMissingField(t *testing.T) {
	items := `[
  {
    "name": "seat",
    "display_name": "Seat",
    "category": "workspace",
    "type": "capacity",
    "settings": {"price": {"usd": 100}, "included_count": 1}
  }
]`
	plansPath, itemsPath := writeCatalog(t, minimalPlans, items)

	_, err := catalog.LoadCatalog(plansPath, itemsPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing_keys: "description"`)
}

func TestRejectsBadName(t *testing.T) {
	items := `[
  {
    "name": "9seat",
    "display_name": "Seat",
    "description": "A seat",
    "category": "workspace",
    "type": "capacity",
    "settings": {"price": {"usd": 100}, "included_count": 1}
  }
]`
	plansPath, itemsPath := writeCatalog(t, minimalPlans, items)

	_, err := catalog.LoadCatalog(plansPath, itemsPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_errors")
	assert.Contains(t, err.Error(), "name:")
}

func TestRejectsDuplicateLineItemNames(t *testing.T) {
	items := `[
  {
    "name": "seat",
    "display_name": "Seat",
    "description": "A seat",
    "category": "workspace",
    "type": "capacity",
    "settings": {"price": {"usd": 100}, "included_count": 1}
  },
  {
    "name": "seat",
    "display_name": "Seat Again",
    "description": "A seat",
    "category": "workspace",
    "type": "capacity",
    "settings": {"price": {"usd": 100}, "included_count": 1}
  }
]`
	plansPath, itemsPath := writeCatalog(t, minimalPlans, items)

	_, err := catalog.LoadCatalog(plansPath, itemsPath)
	require.Error(t, err)
	assert.EqualError(t, err, `duplicate line item name "seat"`)
}

func TestRejectsUnknownOverride(t *testing.T) {
	plans := `[
  {
    "name": "starter",
    "display_name": "Starter",
    "account_type": "user",
    "enabled": true,
    "visible": true,
    "price": null,
    "line_items_settings": {"bogus": {"included_count": 2}}
  }
]`
	plansPath, itemsPath := writeCatalog(t, plans, minimalLineItems)

	_, err := catalog.LoadCatalog(plansPath, itemsPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `could not find Line Item "bogus"`)
}

func TestRequiresOneFreePlanPerAccountType(t *testing.T) {
	plans := `[
  {
    "name": "starter",
    "display_name": "Starter",
    "account_type": "user",
    "enabled": true,
    "visible": true,
    "price": {"usd": 900},
    "line_items_settings": {}
  }
]`
	plansPath, itemsPath := writeCatalog(t, plans, minimalLineItems)

	_, err := catalog.LoadCatalog(plansPath, itemsPath)
	require.Error(t, err)
	assert.EqualError(t, err, `account type "user" must have exactly one free plan, found 0`)
}

func TestEffectivePrice(t *testing.T) {
	free := &catalog.Plan{Name: "free"}
	amount, ok := free.EffectivePrice().Amount(types.DefaultCurrency)
	require.True(t, ok)
	assert.Equal(t, int64(0), amount)

	paid := &catalog.Plan{Name: "paid", Price: types.PriceTable{types.CURRENCY_USD: 1900}}
	amount, ok = paid.EffectivePrice().Amount(types.CURRENCY_USD)
	require.True(t, ok)
	assert.Equal(t, int64(1900), amount)
}
