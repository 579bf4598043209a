package api

import (
	"context"

	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/service"
)

// PaymentMethods manages cards through checkout sessions.
type PaymentMethods struct {
	params    service.ServiceParams
	customers service.CustomerService
}

// PaymentMethodSessionResult is what a frontend needs to run the checkout
// flow for adding a card.
type PaymentMethodSessionResult struct {
	StripePublishKey        string `json:"stripe_publish_key"`
	StripeCheckoutSessionID string `json:"stripe_checkout_session_id"`
}

// PaymentMethod is the sanitized view of a card, stripped to the fields
// safe to hand to a frontend.
type PaymentMethod struct {
	ID             string                              `json:"id"`
	BillingDetails *stripe.PaymentMethodBillingDetails `json:"billing_details"`
	Card           *stripe.PaymentMethodCard           `json:"card"`
	Metadata       map[string]string                   `json:"metadata"`
	Created        int64                               `json:"created"`
}

func sanitizePaymentMethod(method *stripe.PaymentMethod) *PaymentMethod {
	return &PaymentMethod{
		ID:             method.ID,
		BillingDetails: method.BillingDetails,
		Card:           method.Card,
		Metadata:       method.Metadata,
		Created:        method.Created,
	}
}

func sanitizePaymentMethods(methods []*stripe.PaymentMethod) []*PaymentMethod {
	out := make([]*PaymentMethod, 0, len(methods))
	for _, method := range methods {
		out = append(out, sanitizePaymentMethod(method))
	}
	return out
}

// Create starts a checkout session for adding a payment method.
func (p *PaymentMethods) Create(ctx context.Context, email, successURL, cancelURL string) (*PaymentMethodSessionResult, error) {
	cus, err := findCustomer(ctx, p.customers, email)
	if err != nil {
		return nil, err
	}
	session, err := p.customers.CreatePaymentMethodSession(ctx, cus, successURL, cancelURL)
	if err != nil {
		return nil, err
	}
	return &PaymentMethodSessionResult{
		StripePublishKey:        p.params.Config.Stripe.PublishableKey,
		StripeCheckoutSessionID: session.ID,
	}, nil
}

// List returns the customer's cards, default first.
func (p *PaymentMethods) List(ctx context.Context, email string) ([]*PaymentMethod, error) {
	cus, err := findCustomer(ctx, p.customers, email)
	if err != nil {
		return nil, err
	}
	methods, err := p.customers.ListPaymentMethods(ctx, cus)
	if err != nil {
		return nil, err
	}
	return sanitizePaymentMethods(methods), nil
}

// Remove detaches a card and returns the remaining cards.
func (p *PaymentMethods) Remove(ctx context.Context, email, paymentMethodID string) ([]*PaymentMethod, error) {
	cus, err := findCustomer(ctx, p.customers, email)
	if err != nil {
		return nil, err
	}
	methods, err := p.customers.RemovePaymentMethod(ctx, cus, paymentMethodID)
	if err != nil {
		return nil, err
	}
	return sanitizePaymentMethods(methods), nil
}

// SetDefault makes the card the default for the customer and all managed
// subscriptions.
func (p *PaymentMethods) SetDefault(ctx context.Context, email, paymentMethodID string) (*PaymentMethod, error) {
	cus, err := findCustomer(ctx, p.customers, email)
	if err != nil {
		return nil, err
	}
	method, err := p.customers.SetDefaultPaymentMethod(ctx, cus, paymentMethodID)
	if err != nil {
		return nil, err
	}
	return sanitizePaymentMethod(method), nil
}
