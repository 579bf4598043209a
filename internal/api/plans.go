package api

import (
	"context"

	"github.com/instpay/instpay/internal/domain/catalog"
	"github.com/instpay/instpay/internal/service"
)

// Plans lists plans and reports the customer's current plan and billing
// health.
type Plans struct {
	params    service.ServiceParams
	customers service.CustomerService
}

// CurrentPlanResult pairs the customer's plan with the full plan listing.
type CurrentPlanResult struct {
	CurrentPlan *service.CurrentPlan `json:"currentPlan"`
	Plans       []*catalog.Plan      `json:"plans"`
}

// BillingState summarizes whether the subscription needs attention.
type BillingState struct {
	IsBillable   bool    `json:"is_billable"`
	IsIncomplete bool    `json:"is_incomplete"`
	IsPastDue    bool    `json:"is_past_due"`
	InvoiceURL   *string `json:"invoice_url"`
}

// BillingStatusResult wraps the billing state under the same key the full
// plan result uses.
type BillingStatusResult struct {
	CurrentPlan BillingState `json:"currentPlan"`
}

// List returns every bootstrapped plan.
func (p *Plans) List(ctx context.Context) []*catalog.Plan {
	return p.params.Plans
}

// Current resolves the plan the customer is subscribed to.
func (p *Plans) Current(ctx context.Context, email string) (*CurrentPlanResult, error) {
	cus, err := findCustomer(ctx, p.customers, email)
	if err != nil {
		return nil, err
	}
	plan, err := p.customers.GetCurrentPlan(ctx, cus)
	if err != nil {
		return nil, err
	}
	return &CurrentPlanResult{CurrentPlan: plan, Plans: p.params.Plans}, nil
}

// BillingStatus reports billing health without resolving the full plan.
func (p *Plans) BillingStatus(ctx context.Context, email string) (*BillingStatusResult, error) {
	cus, err := findCustomer(ctx, p.customers, email)
	if err != nil {
		return nil, err
	}
	subscription, err := p.customers.Subscription(ctx, cus)
	if err != nil {
		return nil, err
	}
	result := &BillingStatusResult{}
	if subscription != nil {
		result.CurrentPlan.IsBillable = true
		result.CurrentPlan.IsIncomplete = subscription.Status == "incomplete"
		result.CurrentPlan.IsPastDue = subscription.Status == "past_due"
	}
	if result.CurrentPlan.IsIncomplete || result.CurrentPlan.IsPastDue {
		invoice, err := p.customers.LatestInvoice(ctx, cus, subscription)
		if err != nil {
			return nil, err
		}
		if invoice != nil && invoice.HostedInvoiceURL != "" {
			url := invoice.HostedInvoiceURL
			result.CurrentPlan.InvoiceURL = &url
		}
	}
	return result, nil
}
