package api

import (
	"context"

	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/domain/customer"
	"github.com/instpay/instpay/internal/service"
)

// Customers finds customers and manages their subscriptions.
type Customers struct {
	params        service.ServiceParams
	customers     service.CustomerService
	subscriptions service.SubscriptionService
}

// CustomerResult is the serialized customer: the email it is keyed by and
// whatever provider objects have been resolved for it.
type CustomerResult struct {
	Email      string              `json:"email"`
	StripeData customer.StripeData `json:"stripeData"`
}

// SubscribeResult carries the publishable key alongside the reconciler
// outcome so frontends can drive checkout directly.
type SubscribeResult struct {
	StripePublishKey        string               `json:"stripe_publish_key"`
	StripeCheckoutSessionID string               `json:"stripe_checkout_session_id,omitempty"`
	Subscription            *stripe.Subscription `json:"subscription,omitempty"`
}

// Find finds or creates a customer with the provided email address.
func (c *Customers) Find(ctx context.Context, email string) (*CustomerResult, error) {
	cus, err := findCustomer(ctx, c.customers, email)
	if err != nil {
		return nil, err
	}
	return &CustomerResult{Email: cus.Email, StripeData: cus.Stripe}, nil
}

// Subscribe moves the customer to the named plan. lineItemCounts maps line
// item names to purchased quantities; when nil, quantities adjust
// automatically to the new plan. existingLineItemCounts, when provided,
// validate actual usage against the target plan's limits. The URL pair,
// when provided, defers payment to a checkout session.
func (c *Customers) Subscribe(ctx context.Context, email string, planName *string, lineItemCounts, existingLineItemCounts map[string]any, successURL, cancelURL string) (*SubscribeResult, error) {
	cus, err := findCustomer(ctx, c.customers, email)
	if err != nil {
		return nil, err
	}
	outcome, err := c.subscriptions.Subscribe(ctx, cus, planName, lineItemCounts, existingLineItemCounts, successURL, cancelURL)
	if err != nil {
		return nil, err
	}
	result := &SubscribeResult{
		StripePublishKey: c.params.Config.Stripe.PublishableKey,
		Subscription:     outcome.Subscription,
	}
	if outcome.CheckoutSession != nil {
		result.StripeCheckoutSessionID = outcome.CheckoutSession.ID
	}
	return result, nil
}

// Unsubscribe cancels the customer's active subscription, dropping them to
// the free plan.
func (c *Customers) Unsubscribe(ctx context.Context, email string, existingLineItemCounts map[string]any) (bool, error) {
	cus, err := findCustomer(ctx, c.customers, email)
	if err != nil {
		return false, err
	}
	if err := c.subscriptions.Unsubscribe(ctx, cus, existingLineItemCounts); err != nil {
		return false, err
	}
	return true, nil
}
