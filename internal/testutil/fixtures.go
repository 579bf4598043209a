package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/instpay/instpay/internal/domain/catalog"
)

// fixtureLineItems is a realistic catalog covering every line item type:
// one metered item, several purchasable capacities and a handful of flags.
const fixtureLineItems = `[
  {
    "name": "execution_time",
    "display_name": "Execution Time",
    "description": "Metered compute time",
    "category": "compute",
    "type": "usage",
    "settings": {
      "price": {"usd": 500},
      "units": 1000,
      "free_units": 100,
      "unit_name": "GB-s"
    }
  },
  {
    "name": "collaborator_seats",
    "display_name": "Collaborator Seats",
    "description": "Additional team members",
    "category": "collaboration",
    "type": "capacity",
    "settings": {"price": {"usd": 2000}, "included_count": 1}
  },
  {
    "name": "projects",
    "display_name": "Projects",
    "description": "Active projects",
    "category": "workspace",
    "type": "capacity",
    "settings": {"price": {"usd": 500}, "included_count": 10}
  },
  {
    "name": "environments",
    "display_name": "Environments",
    "description": "Per-project environments",
    "category": "workspace",
    "type": "capacity",
    "settings": {"price": {"usd": 500}, "included_count": 1}
  },
  {
    "name": "linked_apps",
    "display_name": "Linked Apps",
    "description": "Connected applications",
    "category": "workspace",
    "type": "capacity",
    "settings": {"price": {"usd": 500}, "included_count": 1}
  },
  {
    "name": "hostnames",
    "display_name": "Custom Hostnames",
    "description": "Custom domain names",
    "category": "workspace",
    "type": "capacity",
    "settings": {"price": {"usd": 200}, "included_count": 0}
  },
  {
    "name": "ai_agent",
    "display_name": "AI Agent",
    "description": "Assistant access",
    "category": "features",
    "type": "flag",
    "settings": {"value": false, "display_value": "Not included"}
  },
  {
    "name": "timeout",
    "display_name": "Request Timeout",
    "description": "Maximum request duration",
    "category": "limits",
    "type": "flag",
    "settings": {"value": 30, "display_value": "30 seconds"}
  },
  {
    "name": "memory",
    "display_name": "Memory",
    "description": "Memory per instance",
    "category": "limits",
    "type": "flag",
    "settings": {"value": 512, "display_value": "512 MB"}
  },
  {
    "name": "custom_tokens",
    "display_name": "Custom Tokens",
    "description": "API token provisioning",
    "category": "features",
    "type": "flag",
    "settings": {"value": false, "display_value": "Not included"}
  },
  {
    "name": "log_retention",
    "display_name": "Log Retention",
    "description": "Days of log history",
    "category": "limits",
    "type": "flag",
    "settings": {"value": 3, "display_value": "3 days"}
  },
  {
    "name": "support",
    "display_name": "Support",
    "description": "Support tier",
    "category": "features",
    "type": "flag",
    "settings": {"value": "community", "display_value": "Community"}
  }
]`

const fixturePlans = `[
  {
    "name": "free_plan",
    "display_name": "Free",
    "account_type": "user",
    "enabled": true,
    "visible": true,
    "price": null,
    "line_items_settings": {
      "collaborator_seats": {"included_count": 2},
      "projects": {"price": null, "included_count": 1},
      "environments": {"price": null},
      "linked_apps": {"price": null},
      "hostnames": {"price": null}
    }
  },
  {
    "name": "standard_plan",
    "display_name": "Standard",
    "account_type": "user",
    "enabled": true,
    "visible": true,
    "price": {"usd": 1900},
    "line_items_settings": {
      "collaborator_seats": {"price": {"usd": 5000}, "included_count": 2},
      "projects": {"price": null},
      "environments": {"price": null},
      "linked_apps": {"price": null},
      "hostnames": {"price": null},
      "ai_agent": {"value": true, "display_value": "Included"},
      "timeout": {"value": 120, "display_value": "2 minutes"},
      "log_retention": {"value": 30, "display_value": "30 days"}
    }
  },
  {
    "name": "business_plan",
    "display_name": "Business",
    "account_type": "user",
    "enabled": true,
    "visible": true,
    "price": {"usd": 24900},
    "line_items_settings": {
      "collaborator_seats": {"price": {"usd": 5000}, "included_count": 5},
      "ai_agent": {"value": true, "display_value": "Included"},
      "timeout": {"value": 300, "display_value": "5 minutes"},
      "memory": {"value": 2048, "display_value": "2 GB"},
      "custom_tokens": {"value": true, "display_value": "Included"},
      "log_retention": {"value": 90, "display_value": "90 days"},
      "support": {"value": "priority", "display_value": "Priority"}
    }
  }
]`

// FixtureCatalog returns a fully decoded copy of the fixture catalog.
// Each call returns fresh objects so tests can mutate freely.
func FixtureCatalog() *catalog.Catalog {
	var lineItems []*catalog.LineItem
	if err := json.Unmarshal([]byte(fixtureLineItems), &lineItems); err != nil {
		panic(fmt.Sprintf("decode fixture line items: %v", err))
	}
	var plans []*catalog.Plan
	if err := json.Unmarshal([]byte(fixturePlans), &plans); err != nil {
		panic(fmt.Sprintf("decode fixture plans: %v", err))
	}
	return &catalog.Catalog{Plans: plans, LineItems: lineItems}
}

// FixtureLineItemsJSON and FixturePlansJSON expose the raw fixture records
// for loader tests that exercise file parsing.
func FixtureLineItemsJSON() []byte { return []byte(fixtureLineItems) }

func FixturePlansJSON() []byte { return []byte(fixturePlans) }
