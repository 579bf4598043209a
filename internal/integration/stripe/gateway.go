// Package stripe wraps the billing provider API behind a narrow gateway
// interface so the synchronizer and services can be exercised against an
// in-memory implementation in tests.
package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v76"
)

// Gateway is the surface of the billing provider this system depends on.
// Every method forwards the raw provider params and returns the raw provider
// objects; list methods drain pagination and return complete result sets.
type Gateway interface {
	// Products
	ListProducts(ctx context.Context, params *stripe.ProductListParams) ([]*stripe.Product, error)
	CreateProduct(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error)
	UpdateProduct(ctx context.Context, id string, params *stripe.ProductParams) (*stripe.Product, error)

	// Prices
	ListPrices(ctx context.Context, params *stripe.PriceListParams) ([]*stripe.Price, error)
	CreatePrice(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error)
	UpdatePrice(ctx context.Context, id string, params *stripe.PriceParams) (*stripe.Price, error)

	// Customers
	ListCustomers(ctx context.Context, params *stripe.CustomerListParams) ([]*stripe.Customer, error)
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error)

	// Subscriptions
	ListSubscriptions(ctx context.Context, params *stripe.SubscriptionListParams) ([]*stripe.Subscription, error)
	CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
	ListSubscriptionItems(ctx context.Context, params *stripe.SubscriptionItemListParams) ([]*stripe.SubscriptionItem, error)

	// Metered usage
	CreateUsageRecord(ctx context.Context, params *stripe.UsageRecordParams) (*stripe.UsageRecord, error)
	ListUsageRecordSummaries(ctx context.Context, params *stripe.UsageRecordSummaryListParams) ([]*stripe.UsageRecordSummary, error)

	// Checkout sessions
	ListCheckoutSessions(ctx context.Context, params *stripe.CheckoutSessionListParams) ([]*stripe.CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)

	// Payment methods
	ListPaymentMethods(ctx context.Context, params *stripe.PaymentMethodListParams) ([]*stripe.PaymentMethod, error)
	UpdatePaymentMethod(ctx context.Context, id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, id string, params *stripe.PaymentMethodDetachParams) (*stripe.PaymentMethod, error)

	// Invoices
	ListInvoices(ctx context.Context, params *stripe.InvoiceListParams) ([]*stripe.Invoice, error)
	GetInvoice(ctx context.Context, id string, params *stripe.InvoiceParams) (*stripe.Invoice, error)
	UpcomingInvoice(ctx context.Context, params *stripe.InvoiceUpcomingParams) (*stripe.Invoice, error)

	// Apps secrets, used as per-customer key-value storage
	FindSecret(ctx context.Context, params *stripe.AppsSecretFindParams) (*stripe.AppsSecret, error)
	CreateSecret(ctx context.Context, params *stripe.AppsSecretParams) (*stripe.AppsSecret, error)
	DeleteSecretWhere(ctx context.Context, params *stripe.AppsSecretDeleteWhereParams) (*stripe.AppsSecret, error)
}
