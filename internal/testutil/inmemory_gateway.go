package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v76"

	stripegw "github.com/instpay/instpay/internal/integration/stripe"
)

// InMemoryGateway is an in-memory implementation of the provider gateway.
// It simulates enough provider behavior for the synchronizer and services:
// products, prices, customers, subscriptions and their items, metered usage,
// checkout sessions, payment methods, invoices and secrets.
//
// CreateCalls counts creations per object kind so tests can assert that a
// second synchronizer run performs no writes.
type InMemoryGateway struct {
	mu sync.Mutex

	products      map[string]*stripe.Product
	prices        map[string]*stripe.Price
	productOrder  []string
	priceOrder    []string
	customers     map[string]*stripe.Customer
	subscriptions map[string]*stripe.Subscription
	items         map[string]*stripe.SubscriptionItem
	sessions      map[string]*stripe.CheckoutSession
	methods       map[string]*stripe.PaymentMethod
	invoices      map[string]*stripe.Invoice
	secrets       map[string]*stripe.AppsSecret
	usageTotals   map[string]int64

	upcoming map[string]*stripe.Invoice

	counters    map[string]int
	CreateCalls map[string]int

	// LastSubscriptionUpdate and LastSubscriptionCancel capture the params of
	// the most recent write for assertions on proration and anchor behavior.
	LastSubscriptionUpdate *stripe.SubscriptionParams
	LastSubscriptionCancel *stripe.SubscriptionCancelParams

	// failNext maps an operation name to an error returned once on its next
	// invocation.
	failNext map[string]error
}

var _ stripegw.Gateway = (*InMemoryGateway)(nil)

// NewInMemoryGateway creates an empty in-memory gateway.
func NewInMemoryGateway() *InMemoryGateway {
	return &InMemoryGateway{
		products:      make(map[string]*stripe.Product),
		prices:        make(map[string]*stripe.Price),
		customers:     make(map[string]*stripe.Customer),
		subscriptions: make(map[string]*stripe.Subscription),
		items:         make(map[string]*stripe.SubscriptionItem),
		sessions:      make(map[string]*stripe.CheckoutSession),
		methods:       make(map[string]*stripe.PaymentMethod),
		invoices:      make(map[string]*stripe.Invoice),
		secrets:       make(map[string]*stripe.AppsSecret),
		usageTotals:   make(map[string]int64),
		upcoming:      make(map[string]*stripe.Invoice),
		counters:      make(map[string]int),
		CreateCalls:   make(map[string]int),
		failNext:      make(map[string]error),
	}
}

// FailNext makes the named operation return err once.
func (g *InMemoryGateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext[op] = err
}

func (g *InMemoryGateway) takeFailure(op string) error {
	if err, ok := g.failNext[op]; ok {
		delete(g.failNext, op)
		return err
	}
	return nil
}

func (g *InMemoryGateway) nextID(prefix string) string {
	g.counters[prefix]++
	return fmt.Sprintf("%s_%d", prefix, g.counters[prefix])
}

// Products

func (g *InMemoryGateway) ListProducts(_ context.Context, params *stripe.ProductListParams) ([]*stripe.Product, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("products.list"); err != nil {
		return nil, err
	}
	out := []*stripe.Product{}
	for _, id := range g.productOrder {
		product := g.products[id]
		if params != nil && params.Active != nil && product.Active != *params.Active {
			continue
		}
		out = append(out, product)
	}
	return out, nil
}

func (g *InMemoryGateway) CreateProduct(_ context.Context, params *stripe.ProductParams) (*stripe.Product, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("products.create"); err != nil {
		return nil, err
	}
	g.CreateCalls["product"]++
	product := &stripe.Product{
		ID:       g.nextID("prod"),
		Active:   true,
		Metadata: copyMetadata(params.Metadata),
	}
	if params.Name != nil {
		product.Name = *params.Name
	}
	if params.Description != nil {
		product.Description = *params.Description
	}
	g.products[product.ID] = product
	g.productOrder = append(g.productOrder, product.ID)
	return product, nil
}

func (g *InMemoryGateway) UpdateProduct(_ context.Context, id string, params *stripe.ProductParams) (*stripe.Product, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("products.update"); err != nil {
		return nil, err
	}
	product, ok := g.products[id]
	if !ok {
		return nil, notFoundErr("product", id)
	}
	if params.Name != nil {
		product.Name = *params.Name
	}
	if params.Description != nil {
		product.Description = *params.Description
	}
	if params.Active != nil {
		product.Active = *params.Active
	}
	if params.Metadata != nil {
		product.Metadata = copyMetadata(params.Metadata)
	}
	return product, nil
}

// Prices

func (g *InMemoryGateway) ListPrices(_ context.Context, params *stripe.PriceListParams) ([]*stripe.Price, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("prices.list"); err != nil {
		return nil, err
	}
	out := []*stripe.Price{}
	for _, id := range g.priceOrder {
		price := g.prices[id]
		if params != nil && params.Active != nil && price.Active != *params.Active {
			continue
		}
		if params != nil && params.Product != nil && (price.Product == nil || price.Product.ID != *params.Product) {
			continue
		}
		if params != nil && params.Currency != nil && price.Currency != stripe.Currency(*params.Currency) {
			continue
		}
		out = append(out, price)
	}
	return out, nil
}

func (g *InMemoryGateway) CreatePrice(_ context.Context, params *stripe.PriceParams) (*stripe.Price, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("prices.create"); err != nil {
		return nil, err
	}
	g.CreateCalls["price"]++
	price := &stripe.Price{
		ID:       g.nextID("price"),
		Active:   true,
		Metadata: copyMetadata(params.Metadata),
	}
	if params.Currency != nil {
		price.Currency = stripe.Currency(*params.Currency)
	}
	if params.Nickname != nil {
		price.Nickname = *params.Nickname
	}
	if params.Product != nil {
		product, ok := g.products[*params.Product]
		if !ok {
			return nil, notFoundErr("product", *params.Product)
		}
		price.Product = product
	}
	if params.UnitAmountDecimal != nil {
		price.UnitAmountDecimal = *params.UnitAmountDecimal
		price.UnitAmount = int64(*params.UnitAmountDecimal)
	}
	if params.BillingScheme != nil {
		price.BillingScheme = stripe.PriceBillingScheme(*params.BillingScheme)
	}
	if params.TiersMode != nil {
		price.TiersMode = stripe.PriceTiersMode(*params.TiersMode)
	}
	if params.Recurring != nil {
		price.Recurring = &stripe.PriceRecurring{}
		if params.Recurring.Interval != nil {
			price.Recurring.Interval = stripe.PriceRecurringInterval(*params.Recurring.Interval)
		}
		if params.Recurring.UsageType != nil {
			price.Recurring.UsageType = stripe.PriceRecurringUsageType(*params.Recurring.UsageType)
		}
		if params.Recurring.AggregateUsage != nil {
			price.Recurring.AggregateUsage = stripe.PriceRecurringAggregateUsage(*params.Recurring.AggregateUsage)
		}
	}
	for _, tier := range params.Tiers {
		converted := &stripe.PriceTier{}
		if tier.UnitAmountDecimal != nil {
			converted.UnitAmountDecimal = *tier.UnitAmountDecimal
		}
		if tier.UnitAmount != nil {
			converted.UnitAmount = *tier.UnitAmount
		}
		if tier.UpTo != nil {
			converted.UpTo = *tier.UpTo
		}
		price.Tiers = append(price.Tiers, converted)
	}
	g.prices[price.ID] = price
	g.priceOrder = append(g.priceOrder, price.ID)
	return price, nil
}

func (g *InMemoryGateway) UpdatePrice(_ context.Context, id string, params *stripe.PriceParams) (*stripe.Price, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("prices.update"); err != nil {
		return nil, err
	}
	price, ok := g.prices[id]
	if !ok {
		return nil, notFoundErr("price", id)
	}
	if params.Active != nil {
		price.Active = *params.Active
	}
	if params.Nickname != nil {
		price.Nickname = *params.Nickname
	}
	if params.Metadata != nil {
		price.Metadata = copyMetadata(params.Metadata)
	}
	return price, nil
}

// Customers

func (g *InMemoryGateway) ListCustomers(_ context.Context, params *stripe.CustomerListParams) ([]*stripe.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("customers.list"); err != nil {
		return nil, err
	}
	out := []*stripe.Customer{}
	for _, customer := range g.customers {
		if params != nil && params.Email != nil && customer.Email != *params.Email {
			continue
		}
		out = append(out, customer)
	}
	return out, nil
}

func (g *InMemoryGateway) CreateCustomer(_ context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("customers.create"); err != nil {
		return nil, err
	}
	g.CreateCalls["customer"]++
	customer := &stripe.Customer{
		ID:       g.nextID("cus"),
		Metadata: copyMetadata(params.Metadata),
	}
	if params.Email != nil {
		customer.Email = *params.Email
	}
	if params.Name != nil {
		customer.Name = *params.Name
	}
	g.customers[customer.ID] = customer
	return customer, nil
}

func (g *InMemoryGateway) UpdateCustomer(_ context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("customers.update"); err != nil {
		return nil, err
	}
	customer, ok := g.customers[id]
	if !ok {
		return nil, notFoundErr("customer", id)
	}
	if params.Email != nil {
		customer.Email = *params.Email
	}
	if params.Name != nil {
		customer.Name = *params.Name
	}
	if params.Metadata != nil {
		customer.Metadata = copyMetadata(params.Metadata)
	}
	if params.InvoiceSettings != nil && params.InvoiceSettings.DefaultPaymentMethod != nil {
		method := g.methods[*params.InvoiceSettings.DefaultPaymentMethod]
		if method == nil {
			return nil, notFoundErr("payment_method", *params.InvoiceSettings.DefaultPaymentMethod)
		}
		customer.InvoiceSettings = &stripe.CustomerInvoiceSettings{DefaultPaymentMethod: method}
	}
	return customer, nil
}

// SeedCustomer inserts a provider customer directly, for test setup of
// states the params API cannot express, like an assigned currency.
func (g *InMemoryGateway) SeedCustomer(customer *stripe.Customer) *stripe.Customer {
	g.mu.Lock()
	defer g.mu.Unlock()
	if customer.ID == "" {
		customer.ID = g.nextID("cus")
	}
	g.customers[customer.ID] = customer
	return customer
}

// Subscriptions

func (g *InMemoryGateway) ListSubscriptions(_ context.Context, params *stripe.SubscriptionListParams) ([]*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("subscriptions.list"); err != nil {
		return nil, err
	}
	out := []*stripe.Subscription{}
	for _, subscription := range g.subscriptions {
		if params != nil && params.Customer != nil && (subscription.Customer == nil || subscription.Customer.ID != *params.Customer) {
			continue
		}
		if params != nil && params.Status != nil && string(subscription.Status) != *params.Status {
			continue
		}
		out = append(out, subscription)
	}
	return out, nil
}

func (g *InMemoryGateway) CreateSubscription(_ context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("subscriptions.create"); err != nil {
		return nil, err
	}
	g.CreateCalls["subscription"]++
	customer := g.customers[stringValue(params.Customer)]
	if customer == nil {
		return nil, notFoundErr("customer", stringValue(params.Customer))
	}
	subscription := &stripe.Subscription{
		ID:               g.nextID("sub"),
		Customer:         customer,
		Status:           stripe.SubscriptionStatusActive,
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour).Unix(),
		Items:            &stripe.SubscriptionItemList{},
		Metadata:         copyMetadata(params.Metadata),
	}
	if params.DefaultPaymentMethod != nil {
		subscription.DefaultPaymentMethod = g.methods[*params.DefaultPaymentMethod]
	}
	if params.Description != nil {
		subscription.Description = *params.Description
	}
	for _, itemParams := range params.Items {
		item, err := g.addItemLocked(subscription, itemParams)
		if err != nil {
			return nil, err
		}
		subscription.Items.Data = append(subscription.Items.Data, item)
	}
	g.subscriptions[subscription.ID] = subscription
	return subscription, nil
}

func (g *InMemoryGateway) UpdateSubscription(_ context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("subscriptions.update"); err != nil {
		return nil, err
	}
	subscription, ok := g.subscriptions[id]
	if !ok {
		return nil, notFoundErr("subscription", id)
	}
	g.LastSubscriptionUpdate = params
	if params.Metadata != nil {
		subscription.Metadata = copyMetadata(params.Metadata)
	}
	if params.DefaultPaymentMethod != nil {
		subscription.DefaultPaymentMethod = g.methods[*params.DefaultPaymentMethod]
	}
	if params.Description != nil {
		subscription.Description = *params.Description
	}
	for _, itemParams := range params.Items {
		switch {
		case itemParams.Deleted != nil && *itemParams.Deleted:
			g.deleteItemLocked(subscription, stringValue(itemParams.ID))
		case itemParams.ID != nil:
			item := g.items[*itemParams.ID]
			if item == nil {
				return nil, notFoundErr("subscription_item", *itemParams.ID)
			}
			if itemParams.Price != nil {
				price := g.prices[*itemParams.Price]
				if price == nil {
					return nil, notFoundErr("price", *itemParams.Price)
				}
				item.Price = price
			}
			if itemParams.Quantity != nil {
				item.Quantity = *itemParams.Quantity
			}
		default:
			item, err := g.addItemLocked(subscription, itemParams)
			if err != nil {
				return nil, err
			}
			subscription.Items.Data = append(subscription.Items.Data, item)
		}
	}
	return subscription, nil
}

func (g *InMemoryGateway) CancelSubscription(_ context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("subscriptions.cancel"); err != nil {
		return nil, err
	}
	subscription, ok := g.subscriptions[id]
	if !ok {
		return nil, notFoundErr("subscription", id)
	}
	g.LastSubscriptionCancel = params
	subscription.Status = stripe.SubscriptionStatusCanceled
	return subscription, nil
}

func (g *InMemoryGateway) ListSubscriptionItems(_ context.Context, params *stripe.SubscriptionItemListParams) ([]*stripe.SubscriptionItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("subscription_items.list"); err != nil {
		return nil, err
	}
	out := []*stripe.SubscriptionItem{}
	subscription := g.subscriptions[stringValue(params.Subscription)]
	if subscription == nil {
		return out, nil
	}
	out = append(out, subscription.Items.Data...)
	return out, nil
}

func (g *InMemoryGateway) addItemLocked(subscription *stripe.Subscription, params *stripe.SubscriptionItemsParams) (*stripe.SubscriptionItem, error) {
	price := g.prices[stringValue(params.Price)]
	if price == nil {
		return nil, notFoundErr("price", stringValue(params.Price))
	}
	item := &stripe.SubscriptionItem{
		ID:           g.nextID("si"),
		Price:        price,
		Subscription: subscription.ID,
	}
	if params.Quantity != nil {
		item.Quantity = *params.Quantity
	}
	g.items[item.ID] = item
	return item, nil
}

func (g *InMemoryGateway) deleteItemLocked(subscription *stripe.Subscription, itemID string) {
	delete(g.items, itemID)
	kept := subscription.Items.Data[:0]
	for _, item := range subscription.Items.Data {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	subscription.Items.Data = kept
}

// Metered usage

func (g *InMemoryGateway) CreateUsageRecord(_ context.Context, params *stripe.UsageRecordParams) (*stripe.UsageRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("usage_records.create"); err != nil {
		return nil, err
	}
	g.CreateCalls["usage_record"]++
	itemID := stringValue(params.SubscriptionItem)
	if g.items[itemID] == nil {
		return nil, notFoundErr("subscription_item", itemID)
	}
	quantity := int64(0)
	if params.Quantity != nil {
		quantity = *params.Quantity
	}
	g.usageTotals[itemID] += quantity
	return &stripe.UsageRecord{
		ID:               g.nextID("mbur"),
		Quantity:         quantity,
		SubscriptionItem: itemID,
		Timestamp:        time.Now().Unix(),
	}, nil
}

func (g *InMemoryGateway) ListUsageRecordSummaries(_ context.Context, params *stripe.UsageRecordSummaryListParams) ([]*stripe.UsageRecordSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("usage_record_summaries.list"); err != nil {
		return nil, err
	}
	itemID := stringValue(params.SubscriptionItem)
	return []*stripe.UsageRecordSummary{
		{
			ID:               g.nextID("sis"),
			SubscriptionItem: itemID,
			TotalUsage:       g.usageTotals[itemID],
		},
	}, nil
}

// UsageTotal reports the accumulated quantity for one subscription item.
func (g *InMemoryGateway) UsageTotal(itemID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usageTotals[itemID]
}

// Checkout sessions

func (g *InMemoryGateway) ListCheckoutSessions(_ context.Context, params *stripe.CheckoutSessionListParams) ([]*stripe.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("checkout_sessions.list"); err != nil {
		return nil, err
	}
	out := []*stripe.CheckoutSession{}
	for _, session := range g.sessions {
		if params != nil && params.Customer != nil && (session.Customer == nil || session.Customer.ID != *params.Customer) {
			continue
		}
		if params != nil && params.Status != nil && string(session.Status) != *params.Status {
			continue
		}
		out = append(out, session)
	}
	return out, nil
}

func (g *InMemoryGateway) CreateCheckoutSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("checkout_sessions.create"); err != nil {
		return nil, err
	}
	g.CreateCalls["checkout_session"]++
	session := &stripe.CheckoutSession{
		ID:     g.nextID("cs"),
		Status: stripe.CheckoutSessionStatusOpen,
	}
	session.URL = "https://checkout.example.test/" + session.ID
	if params.Customer != nil {
		session.Customer = g.customers[*params.Customer]
	}
	if params.Mode != nil {
		session.Mode = stripe.CheckoutSessionMode(*params.Mode)
	}
	if params.SuccessURL != nil {
		session.SuccessURL = *params.SuccessURL
	}
	g.sessions[session.ID] = session
	return session, nil
}

func (g *InMemoryGateway) ExpireCheckoutSession(_ context.Context, id string, _ *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("checkout_sessions.expire"); err != nil {
		return nil, err
	}
	session, ok := g.sessions[id]
	if !ok {
		return nil, notFoundErr("checkout_session", id)
	}
	session.Status = stripe.CheckoutSessionStatusExpired
	return session, nil
}

// Payment methods

func (g *InMemoryGateway) ListPaymentMethods(_ context.Context, params *stripe.PaymentMethodListParams) ([]*stripe.PaymentMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("payment_methods.list"); err != nil {
		return nil, err
	}
	out := []*stripe.PaymentMethod{}
	for _, method := range g.methods {
		if params != nil && params.Customer != nil && (method.Customer == nil || method.Customer.ID != *params.Customer) {
			continue
		}
		if params != nil && params.Type != nil && string(method.Type) != *params.Type {
			continue
		}
		out = append(out, method)
	}
	return out, nil
}

func (g *InMemoryGateway) UpdatePaymentMethod(_ context.Context, id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("payment_methods.update"); err != nil {
		return nil, err
	}
	method, ok := g.methods[id]
	if !ok {
		return nil, notFoundErr("payment_method", id)
	}
	if params.Metadata != nil {
		method.Metadata = copyMetadata(params.Metadata)
	}
	return method, nil
}

func (g *InMemoryGateway) DetachPaymentMethod(_ context.Context, id string, _ *stripe.PaymentMethodDetachParams) (*stripe.PaymentMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("payment_methods.detach"); err != nil {
		return nil, err
	}
	method, ok := g.methods[id]
	if !ok {
		return nil, notFoundErr("payment_method", id)
	}
	delete(g.methods, id)
	method.Customer = nil
	return method, nil
}

// SeedPaymentMethod attaches a payment method to a customer for test setup.
func (g *InMemoryGateway) SeedPaymentMethod(method *stripe.PaymentMethod) *stripe.PaymentMethod {
	g.mu.Lock()
	defer g.mu.Unlock()
	if method.ID == "" {
		method.ID = g.nextID("pm")
	}
	if method.Type == "" {
		method.Type = stripe.PaymentMethodTypeCard
	}
	g.methods[method.ID] = method
	return method
}

// Invoices

func (g *InMemoryGateway) ListInvoices(_ context.Context, params *stripe.InvoiceListParams) ([]*stripe.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("invoices.list"); err != nil {
		return nil, err
	}
	out := []*stripe.Invoice{}
	for _, invoice := range g.invoices {
		if params != nil && params.Customer != nil && (invoice.Customer == nil || invoice.Customer.ID != *params.Customer) {
			continue
		}
		if params != nil && params.Status != nil && string(invoice.Status) != *params.Status {
			continue
		}
		out = append(out, invoice)
	}
	return out, nil
}

func (g *InMemoryGateway) GetInvoice(_ context.Context, id string, _ *stripe.InvoiceParams) (*stripe.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("invoices.get"); err != nil {
		return nil, err
	}
	invoice, ok := g.invoices[id]
	if !ok {
		return nil, notFoundErr("invoice", id)
	}
	return invoice, nil
}

func (g *InMemoryGateway) UpcomingInvoice(_ context.Context, params *stripe.InvoiceUpcomingParams) (*stripe.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("invoices.upcoming"); err != nil {
		return nil, err
	}
	invoice, ok := g.upcoming[stringValue(params.Customer)]
	if !ok {
		return nil, notFoundErr("invoice", "upcoming")
	}
	return invoice, nil
}

// SeedInvoice inserts an invoice; SeedUpcomingInvoice sets the preview
// invoice returned for one customer.
func (g *InMemoryGateway) SeedInvoice(invoice *stripe.Invoice) *stripe.Invoice {
	g.mu.Lock()
	defer g.mu.Unlock()
	if invoice.ID == "" {
		invoice.ID = g.nextID("in")
	}
	g.invoices[invoice.ID] = invoice
	return invoice
}

func (g *InMemoryGateway) SeedUpcomingInvoice(customerID string, invoice *stripe.Invoice) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upcoming[customerID] = invoice
}

// Secrets

func secretKey(params *stripe.AppsSecretScopeParams, name string) string {
	scopeType := ""
	user := ""
	if params != nil {
		scopeType = stringValue(params.Type)
		user = stringValue(params.User)
	}
	return scopeType + "/" + user + "/" + name
}

func (g *InMemoryGateway) FindSecret(_ context.Context, params *stripe.AppsSecretFindParams) (*stripe.AppsSecret, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("secrets.find"); err != nil {
		return nil, err
	}
	secret, ok := g.secrets[secretKey((*stripe.AppsSecretScopeParams)(params.Scope), stringValue(params.Name))]
	if !ok {
		return nil, &stripe.Error{
			HTTPStatusCode: 404,
			Code:           stripe.ErrorCodeResourceMissing,
		}
	}
	return secret, nil
}

func (g *InMemoryGateway) CreateSecret(_ context.Context, params *stripe.AppsSecretParams) (*stripe.AppsSecret, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("secrets.create"); err != nil {
		return nil, err
	}
	g.CreateCalls["secret"]++
	secret := &stripe.AppsSecret{
		ID:      g.nextID("appsecret"),
		Name:    stringValue(params.Name),
		Payload: stringValue(params.Payload),
	}
	if params.Scope != nil {
		secret.Scope = &stripe.AppsSecretScope{
			Type: stripe.AppsSecretScopeType(stringValue(params.Scope.Type)),
			User: stringValue(params.Scope.User),
		}
	}
	g.secrets[secretKey(params.Scope, secret.Name)] = secret
	return secret, nil
}

func (g *InMemoryGateway) DeleteSecretWhere(_ context.Context, params *stripe.AppsSecretDeleteWhereParams) (*stripe.AppsSecret, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("secrets.delete"); err != nil {
		return nil, err
	}
	key := secretKey((*stripe.AppsSecretScopeParams)(params.Scope), stringValue(params.Name))
	secret, ok := g.secrets[key]
	if !ok {
		return nil, &stripe.Error{
			HTTPStatusCode: 404,
			Code:           stripe.ErrorCodeResourceMissing,
		}
	}
	delete(g.secrets, key)
	secret.Deleted = true
	return secret, nil
}

func copyMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func notFoundErr(kind, id string) error {
	return &stripe.Error{
		HTTPStatusCode: 404,
		Code:           stripe.ErrorCodeResourceMissing,
		Msg:            fmt.Sprintf("No such %s: %s", kind, id),
	}
}
