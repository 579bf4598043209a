package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/instpay/instpay/internal/config"
	"github.com/instpay/instpay/internal/logger"
)

// Client is the Gateway implementation backed by the real provider API.
type Client struct {
	api    *client.API
	logger *logger.Logger
}

// NewClient creates a gateway from the configured secret key.
func NewClient(cfg *config.Configuration, logger *logger.Logger) *Client {
	api := &client.API{}
	api.Init(cfg.Stripe.SecretKey, nil)
	return &Client{api: api, logger: logger}
}

var _ Gateway = (*Client)(nil)

// iterator is the shape shared by every typed list iterator.
type iterator interface {
	Next() bool
	Current() interface{}
	Err() error
}

// collect drains an iterator. The result is non-nil even when empty, so an
// empty list reads as a valid response rather than missing data.
func collect[T any](it iterator) ([]T, error) {
	out := []T{}
	for it.Next() {
		out = append(out, it.Current().(T))
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListProducts(ctx context.Context, params *stripe.ProductListParams) ([]*stripe.Product, error) {
	if params == nil {
		params = &stripe.ProductListParams{}
	}
	params.Context = ctx
	return collect[*stripe.Product](c.api.Products.List(params))
}

func (c *Client) CreateProduct(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error) {
	params.Context = ctx
	return c.api.Products.New(params)
}

func (c *Client) UpdateProduct(ctx context.Context, id string, params *stripe.ProductParams) (*stripe.Product, error) {
	params.Context = ctx
	return c.api.Products.Update(id, params)
}

func (c *Client) ListPrices(ctx context.Context, params *stripe.PriceListParams) ([]*stripe.Price, error) {
	if params == nil {
		params = &stripe.PriceListParams{}
	}
	params.Context = ctx
	return collect[*stripe.Price](c.api.Prices.List(params))
}

func (c *Client) CreatePrice(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error) {
	params.Context = ctx
	return c.api.Prices.New(params)
}

func (c *Client) UpdatePrice(ctx context.Context, id string, params *stripe.PriceParams) (*stripe.Price, error) {
	params.Context = ctx
	return c.api.Prices.Update(id, params)
}

func (c *Client) ListCustomers(ctx context.Context, params *stripe.CustomerListParams) ([]*stripe.Customer, error) {
	if params == nil {
		params = &stripe.CustomerListParams{}
	}
	params.Context = ctx
	return collect[*stripe.Customer](c.api.Customers.List(params))
}

func (c *Client) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	params.Context = ctx
	return c.api.Customers.New(params)
}

func (c *Client) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	params.Context = ctx
	return c.api.Customers.Update(id, params)
}

func (c *Client) ListSubscriptions(ctx context.Context, params *stripe.SubscriptionListParams) ([]*stripe.Subscription, error) {
	if params == nil {
		params = &stripe.SubscriptionListParams{}
	}
	params.Context = ctx
	return collect[*stripe.Subscription](c.api.Subscriptions.List(params))
}

func (c *Client) CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	params.Context = ctx
	return c.api.Subscriptions.New(params)
}

func (c *Client) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	params.Context = ctx
	return c.api.Subscriptions.Update(id, params)
}

func (c *Client) CancelSubscription(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	if params == nil {
		params = &stripe.SubscriptionCancelParams{}
	}
	params.Context = ctx
	return c.api.Subscriptions.Cancel(id, params)
}

func (c *Client) ListSubscriptionItems(ctx context.Context, params *stripe.SubscriptionItemListParams) ([]*stripe.SubscriptionItem, error) {
	if params == nil {
		params = &stripe.SubscriptionItemListParams{}
	}
	params.Context = ctx
	return collect[*stripe.SubscriptionItem](c.api.SubscriptionItems.List(params))
}

func (c *Client) CreateUsageRecord(ctx context.Context, params *stripe.UsageRecordParams) (*stripe.UsageRecord, error) {
	params.Context = ctx
	return c.api.UsageRecords.New(params)
}

func (c *Client) ListUsageRecordSummaries(ctx context.Context, params *stripe.UsageRecordSummaryListParams) ([]*stripe.UsageRecordSummary, error) {
	params.Context = ctx
	return collect[*stripe.UsageRecordSummary](c.api.UsageRecordSummaries.List(params))
}

func (c *Client) ListCheckoutSessions(ctx context.Context, params *stripe.CheckoutSessionListParams) ([]*stripe.CheckoutSession, error) {
	if params == nil {
		params = &stripe.CheckoutSessionListParams{}
	}
	params.Context = ctx
	return collect[*stripe.CheckoutSession](c.api.CheckoutSessions.List(params))
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return c.api.CheckoutSessions.New(params)
}

func (c *Client) ExpireCheckoutSession(ctx context.Context, id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error) {
	if params == nil {
		params = &stripe.CheckoutSessionExpireParams{}
	}
	params.Context = ctx
	return c.api.CheckoutSessions.Expire(id, params)
}

func (c *Client) ListPaymentMethods(ctx context.Context, params *stripe.PaymentMethodListParams) ([]*stripe.PaymentMethod, error) {
	if params == nil {
		params = &stripe.PaymentMethodListParams{}
	}
	params.Context = ctx
	return collect[*stripe.PaymentMethod](c.api.PaymentMethods.List(params))
}

func (c *Client) UpdatePaymentMethod(ctx context.Context, id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	params.Context = ctx
	return c.api.PaymentMethods.Update(id, params)
}

func (c *Client) DetachPaymentMethod(ctx context.Context, id string, params *stripe.PaymentMethodDetachParams) (*stripe.PaymentMethod, error) {
	if params == nil {
		params = &stripe.PaymentMethodDetachParams{}
	}
	params.Context = ctx
	return c.api.PaymentMethods.Detach(id, params)
}

func (c *Client) ListInvoices(ctx context.Context, params *stripe.InvoiceListParams) ([]*stripe.Invoice, error) {
	if params == nil {
		params = &stripe.InvoiceListParams{}
	}
	params.Context = ctx
	return collect[*stripe.Invoice](c.api.Invoices.List(params))
}

func (c *Client) GetInvoice(ctx context.Context, id string, params *stripe.InvoiceParams) (*stripe.Invoice, error) {
	if params == nil {
		params = &stripe.InvoiceParams{}
	}
	params.Context = ctx
	return c.api.Invoices.Get(id, params)
}

func (c *Client) UpcomingInvoice(ctx context.Context, params *stripe.InvoiceUpcomingParams) (*stripe.Invoice, error) {
	params.Context = ctx
	return c.api.Invoices.Upcoming(params)
}

func (c *Client) FindSecret(ctx context.Context, params *stripe.AppsSecretFindParams) (*stripe.AppsSecret, error) {
	params.Context = ctx
	return c.api.AppsSecrets.Find(params)
}

func (c *Client) CreateSecret(ctx context.Context, params *stripe.AppsSecretParams) (*stripe.AppsSecret, error) {
	params.Context = ctx
	return c.api.AppsSecrets.New(params)
}

func (c *Client) DeleteSecretWhere(ctx context.Context, params *stripe.AppsSecretDeleteWhereParams) (*stripe.AppsSecret, error) {
	params.Context = ctx
	return c.api.AppsSecrets.DeleteWhere(params)
}
