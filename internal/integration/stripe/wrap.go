package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v76"
)

// retryingGateway decorates a Gateway with the retry policy. It is applied
// once at construction time so every provider call in the system shares the
// same backoff behavior.
type retryingGateway struct {
	inner   Gateway
	retrier *Retrier
}

// NewRetryingGateway wraps a gateway so every call retries on rate limits
// and empty responses.
func NewRetryingGateway(inner Gateway, retrier *Retrier) Gateway {
	return &retryingGateway{inner: inner, retrier: retrier}
}

func (g *retryingGateway) ListProducts(ctx context.Context, params *stripe.ProductListParams) ([]*stripe.Product, error) {
	return Do(ctx, g.retrier, "products.list", func() ([]*stripe.Product, error) {
		return g.inner.ListProducts(ctx, params)
	})
}

func (g *retryingGateway) CreateProduct(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error) {
	return Do(ctx, g.retrier, "products.create", func() (*stripe.Product, error) {
		return g.inner.CreateProduct(ctx, params)
	})
}

func (g *retryingGateway) UpdateProduct(ctx context.Context, id string, params *stripe.ProductParams) (*stripe.Product, error) {
	return Do(ctx, g.retrier, "products.update", func() (*stripe.Product, error) {
		return g.inner.UpdateProduct(ctx, id, params)
	})
}

func (g *retryingGateway) ListPrices(ctx context.Context, params *stripe.PriceListParams) ([]*stripe.Price, error) {
	return Do(ctx, g.retrier, "prices.list", func() ([]*stripe.Price, error) {
		return g.inner.ListPrices(ctx, params)
	})
}

func (g *retryingGateway) CreatePrice(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error) {
	return Do(ctx, g.retrier, "prices.create", func() (*stripe.Price, error) {
		return g.inner.CreatePrice(ctx, params)
	})
}

func (g *retryingGateway) UpdatePrice(ctx context.Context, id string, params *stripe.PriceParams) (*stripe.Price, error) {
	return Do(ctx, g.retrier, "prices.update", func() (*stripe.Price, error) {
		return g.inner.UpdatePrice(ctx, id, params)
	})
}

func (g *retryingGateway) ListCustomers(ctx context.Context, params *stripe.CustomerListParams) ([]*stripe.Customer, error) {
	return Do(ctx, g.retrier, "customers.list", func() ([]*stripe.Customer, error) {
		return g.inner.ListCustomers(ctx, params)
	})
}

func (g *retryingGateway) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	return Do(ctx, g.retrier, "customers.create", func() (*stripe.Customer, error) {
		return g.inner.CreateCustomer(ctx, params)
	})
}

func (g *retryingGateway) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	return Do(ctx, g.retrier, "customers.update", func() (*stripe.Customer, error) {
		return g.inner.UpdateCustomer(ctx, id, params)
	})
}

func (g *retryingGateway) ListSubscriptions(ctx context.Context, params *stripe.SubscriptionListParams) ([]*stripe.Subscription, error) {
	return Do(ctx, g.retrier, "subscriptions.list", func() ([]*stripe.Subscription, error) {
		return g.inner.ListSubscriptions(ctx, params)
	})
}

func (g *retryingGateway) CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return Do(ctx, g.retrier, "subscriptions.create", func() (*stripe.Subscription, error) {
		return g.inner.CreateSubscription(ctx, params)
	})
}

func (g *retryingGateway) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return Do(ctx, g.retrier, "subscriptions.update", func() (*stripe.Subscription, error) {
		return g.inner.UpdateSubscription(ctx, id, params)
	})
}

func (g *retryingGateway) CancelSubscription(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	return Do(ctx, g.retrier, "subscriptions.cancel", func() (*stripe.Subscription, error) {
		return g.inner.CancelSubscription(ctx, id, params)
	})
}

func (g *retryingGateway) ListSubscriptionItems(ctx context.Context, params *stripe.SubscriptionItemListParams) ([]*stripe.SubscriptionItem, error) {
	return Do(ctx, g.retrier, "subscription_items.list", func() ([]*stripe.SubscriptionItem, error) {
		return g.inner.ListSubscriptionItems(ctx, params)
	})
}

func (g *retryingGateway) CreateUsageRecord(ctx context.Context, params *stripe.UsageRecordParams) (*stripe.UsageRecord, error) {
	return Do(ctx, g.retrier, "usage_records.create", func() (*stripe.UsageRecord, error) {
		return g.inner.CreateUsageRecord(ctx, params)
	})
}

func (g *retryingGateway) ListUsageRecordSummaries(ctx context.Context, params *stripe.UsageRecordSummaryListParams) ([]*stripe.UsageRecordSummary, error) {
	return Do(ctx, g.retrier, "usage_record_summaries.list", func() ([]*stripe.UsageRecordSummary, error) {
		return g.inner.ListUsageRecordSummaries(ctx, params)
	})
}

func (g *retryingGateway) ListCheckoutSessions(ctx context.Context, params *stripe.CheckoutSessionListParams) ([]*stripe.CheckoutSession, error) {
	return Do(ctx, g.retrier, "checkout_sessions.list", func() ([]*stripe.CheckoutSession, error) {
		return g.inner.ListCheckoutSessions(ctx, params)
	})
}

func (g *retryingGateway) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return Do(ctx, g.retrier, "checkout_sessions.create", func() (*stripe.CheckoutSession, error) {
		return g.inner.CreateCheckoutSession(ctx, params)
	})
}

func (g *retryingGateway) ExpireCheckoutSession(ctx context.Context, id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error) {
	return Do(ctx, g.retrier, "checkout_sessions.expire", func() (*stripe.CheckoutSession, error) {
		return g.inner.ExpireCheckoutSession(ctx, id, params)
	})
}

func (g *retryingGateway) ListPaymentMethods(ctx context.Context, params *stripe.PaymentMethodListParams) ([]*stripe.PaymentMethod, error) {
	return Do(ctx, g.retrier, "payment_methods.list", func() ([]*stripe.PaymentMethod, error) {
		return g.inner.ListPaymentMethods(ctx, params)
	})
}

func (g *retryingGateway) UpdatePaymentMethod(ctx context.Context, id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	return Do(ctx, g.retrier, "payment_methods.update", func() (*stripe.PaymentMethod, error) {
		return g.inner.UpdatePaymentMethod(ctx, id, params)
	})
}

func (g *retryingGateway) DetachPaymentMethod(ctx context.Context, id string, params *stripe.PaymentMethodDetachParams) (*stripe.PaymentMethod, error) {
	return Do(ctx, g.retrier, "payment_methods.detach", func() (*stripe.PaymentMethod, error) {
		return g.inner.DetachPaymentMethod(ctx, id, params)
	})
}

func (g *retryingGateway) ListInvoices(ctx context.Context, params *stripe.InvoiceListParams) ([]*stripe.Invoice, error) {
	return Do(ctx, g.retrier, "invoices.list", func() ([]*stripe.Invoice, error) {
		return g.inner.ListInvoices(ctx, params)
	})
}

func (g *retryingGateway) GetInvoice(ctx context.Context, id string, params *stripe.InvoiceParams) (*stripe.Invoice, error) {
	return Do(ctx, g.retrier, "invoices.get", func() (*stripe.Invoice, error) {
		return g.inner.GetInvoice(ctx, id, params)
	})
}

func (g *retryingGateway) UpcomingInvoice(ctx context.Context, params *stripe.InvoiceUpcomingParams) (*stripe.Invoice, error) {
	return Do(ctx, g.retrier, "invoices.upcoming", func() (*stripe.Invoice, error) {
		return g.inner.UpcomingInvoice(ctx, params)
	})
}

func (g *retryingGateway) FindSecret(ctx context.Context, params *stripe.AppsSecretFindParams) (*stripe.AppsSecret, error) {
	return Do(ctx, g.retrier, "secrets.find", func() (*stripe.AppsSecret, error) {
		return g.inner.FindSecret(ctx, params)
	})
}

func (g *retryingGateway) CreateSecret(ctx context.Context, params *stripe.AppsSecretParams) (*stripe.AppsSecret, error) {
	return Do(ctx, g.retrier, "secrets.create", func() (*stripe.AppsSecret, error) {
		return g.inner.CreateSecret(ctx, params)
	})
}

func (g *retryingGateway) DeleteSecretWhere(ctx context.Context, params *stripe.AppsSecretDeleteWhereParams) (*stripe.AppsSecret, error) {
	return Do(ctx, g.retrier, "secrets.delete", func() (*stripe.AppsSecret, error) {
		return g.inner.DeleteSecretWhere(ctx, params)
	})
}
