package service

import (
	"github.com/instpay/instpay/internal/config"
	"github.com/instpay/instpay/internal/domain/catalog"
	stripegw "github.com/instpay/instpay/internal/integration/stripe"
	"github.com/instpay/instpay/internal/logger"
)

// ServiceParams bundles the dependencies shared by every service. Plans are
// the bootstrapped catalog plans for the active environment, with provider
// products and prices attached.
type ServiceParams struct {
	Logger  *logger.Logger
	Config  *config.Configuration
	Gateway stripegw.Gateway
	Plans   []*catalog.Plan
}

// Plan returns the bootstrapped plan by name, or nil.
func (p ServiceParams) Plan(name string) *catalog.Plan {
	for _, plan := range p.Plans {
		if plan.Name == name {
			return plan
		}
	}
	return nil
}

// FreePlan returns the priceless fallback plan, or nil when the catalog has
// none.
func (p ServiceParams) FreePlan() *catalog.Plan {
	for _, plan := range p.Plans {
		if plan.IsFree() {
			return plan
		}
	}
	return nil
}
