package service

import (
	"context"

	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/domain/catalog"
	"github.com/instpay/instpay/internal/domain/customer"
	ierr "github.com/instpay/instpay/internal/errors"
	"github.com/instpay/instpay/internal/types"
)

// CurrentPlan is a customer-scoped view of a catalog plan: the plan clone
// carries the subscription objects on its StripeData and purchased counts on
// its line items, plus billing health flags for the caller.
type CurrentPlan struct {
	*catalog.Plan
	IsBillable   bool    `json:"is_billable"`
	IsIncomplete bool    `json:"is_incomplete"`
	IsPastDue    bool    `json:"is_past_due"`
	InvoiceURL   *string `json:"invoice_url"`
}

// CustomerService resolves and mutates billing customers. Customers are
// keyed by email; the provider record is the source of truth and every
// operation that needs one syncs lazily.
type CustomerService interface {
	Find(ctx context.Context, email string) (*customer.Customer, error)
	Sync(ctx context.Context, cus *customer.Customer) error
	EnsureSynced(ctx context.Context, cus *customer.Customer) error
	UpdateDetails(ctx context.Context, cus *customer.Customer, details customer.Details) error

	Subscription(ctx context.Context, cus *customer.Customer) (*stripe.Subscription, error)
	GetCurrentPlan(ctx context.Context, cus *customer.Customer) (*CurrentPlan, error)

	CreatePaymentMethodSession(ctx context.Context, cus *customer.Customer, successURL, cancelURL string) (*stripe.CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, cus *customer.Customer, lineItems []*stripe.CheckoutSessionLineItemParams, subscriptionData *stripe.CheckoutSessionSubscriptionDataParams, successURL, cancelURL string) (*stripe.CheckoutSession, error)

	ListPaymentMethods(ctx context.Context, cus *customer.Customer) ([]*stripe.PaymentMethod, error)
	SetDefaultPaymentMethod(ctx context.Context, cus *customer.Customer, id string) (*stripe.PaymentMethod, error)
	RemovePaymentMethod(ctx context.Context, cus *customer.Customer, id string) ([]*stripe.PaymentMethod, error)

	ListInvoices(ctx context.Context, cus *customer.Customer, count int) ([]*stripe.Invoice, error)
	UpcomingInvoice(ctx context.Context, cus *customer.Customer) (*stripe.Invoice, error)
	LatestInvoice(ctx context.Context, cus *customer.Customer, subscription *stripe.Subscription) (*stripe.Invoice, error)
}

type customerService struct {
	ServiceParams
}

func NewCustomerService(params ServiceParams) CustomerService {
	return &customerService{ServiceParams: params}
}

// Find validates the email and binds the customer to its provider record if
// one exists. A missing record is not an error; the customer stays unsynced.
func (s *customerService) Find(ctx context.Context, email string) (*customer.Customer, error) {
	cus, err := customer.New(email)
	if err != nil {
		return nil, err
	}
	if err := s.syncFromStripe(ctx, cus); err != nil {
		return nil, err
	}
	return cus, nil
}

// syncFromStripe picks the provider record for the customer's email. Tagged
// records win; otherwise the usd record, otherwise a record with no currency
// yet. Anything else is ignored as unmanaged.
func (s *customerService) syncFromStripe(ctx context.Context, cus *customer.Customer) error {
	listed, err := s.Gateway.ListCustomers(ctx, &stripe.CustomerListParams{
		Email: stripe.String(cus.Email),
	})
	if err != nil {
		return err
	}
	cus.ApplyRemote(pickCustomer(listed))
	return nil
}

func pickCustomer(candidates []*stripe.Customer) *stripe.Customer {
	for _, c := range candidates {
		if c.Metadata[types.MetadataKeyManaged] == "true" {
			return c
		}
	}
	for _, c := range candidates {
		if c.Currency == stripe.Currency(types.DefaultCurrency) {
			return c
		}
	}
	for _, c := range candidates {
		if c.Currency == "" {
			return c
		}
	}
	return nil
}

// Sync pushes the customer's email, details and metadata to the provider,
// creating the record if none exists yet.
func (s *customerService) Sync(ctx context.Context, cus *customer.Customer) error {
	if !cus.Synced() {
		if err := s.syncFromStripe(ctx, cus); err != nil {
			return err
		}
	}
	params := &stripe.CustomerParams{
		Email:       stripe.String(cus.Email),
		Name:        stripe.String(cus.Details.Name),
		Description: stripe.String(cus.Details.Description),
		Phone:       stripe.String(cus.Details.Phone),
		Shipping:    cus.Details.Shipping,
	}
	params.Metadata = cus.SerializeMetadata()

	var (
		remote *stripe.Customer
		err    error
	)
	if cus.Synced() {
		remote, err = s.Gateway.UpdateCustomer(ctx, cus.StripeID, params)
	} else {
		remote, err = s.Gateway.CreateCustomer(ctx, params)
	}
	if err != nil {
		return err
	}
	subscription := cus.Stripe.Subscription
	cus.ApplyRemote(remote)
	cus.Stripe.Subscription = subscription
	return nil
}

// EnsureSynced is a no-op for customers already bound to a provider record.
func (s *customerService) EnsureSynced(ctx context.Context, cus *customer.Customer) error {
	if cus.Synced() {
		return nil
	}
	return s.Sync(ctx, cus)
}

func (s *customerService) UpdateDetails(ctx context.Context, cus *customer.Customer, details customer.Details) error {
	cus.Details = details
	return s.Sync(ctx, cus)
}

// Subscription returns the customer's managed subscription, or nil. The
// payment method listing side effect promotes a default method for customers
// who added one through checkout without ever choosing a default.
func (s *customerService) Subscription(ctx context.Context, cus *customer.Customer) (*stripe.Subscription, error) {
	if cus.Stripe.Subscription != nil {
		return cus.Stripe.Subscription, nil
	}
	var subscription *stripe.Subscription
	if cus.Synced() {
		listed, err := s.Gateway.ListSubscriptions(ctx, &stripe.SubscriptionListParams{
			Customer: stripe.String(cus.StripeID),
		})
		if err != nil {
			return nil, err
		}
		subscription = findManagedSubscription(listed)
	}
	if cus.Synced() && (subscription == nil || subscription.DefaultPaymentMethod == nil) {
		if _, err := s.ListPaymentMethods(ctx, cus); err != nil {
			return nil, err
		}
	}
	if subscription != nil {
		cus.Stripe.Subscription = subscription
	}
	return subscription, nil
}

func findManagedSubscription(subscriptions []*stripe.Subscription) *stripe.Subscription {
	for _, sub := range subscriptions {
		if sub.Items == nil || len(sub.Items.Data) == 0 {
			continue
		}
		price := sub.Items.Data[0].Price
		if price != nil && price.Metadata[types.MetadataKeyManaged] != "" {
			return sub
		}
	}
	return nil
}

// GetCurrentPlan resolves the plan the customer is on by reading their
// subscription items back against the bootstrapped catalog. Customers
// without a subscription are on the free plan.
func (s *customerService) GetCurrentPlan(ctx context.Context, cus *customer.Customer) (*CurrentPlan, error) {
	if err := s.EnsureSynced(ctx, cus); err != nil {
		return nil, err
	}
	subscription, err := s.Subscription(ctx, cus)
	if err != nil {
		return nil, err
	}

	var (
		plan         *catalog.Plan
		planSubItem  *stripe.SubscriptionItem
		lineSubItems []*stripe.SubscriptionItem
	)
	if subscription == nil {
		plan = s.FreePlan()
		if plan == nil {
			return nil, ierr.NewErrorf("Customer %q has no plan, and no free plan found", cus.Email).
				Mark(ierr.ErrSystem)
		}
	} else {
		items, err := s.Gateway.ListSubscriptionItems(ctx, &stripe.SubscriptionItemListParams{
			Subscription: stripe.String(subscription.ID),
		})
		if err != nil {
			return nil, err
		}
		var planSubItems []*stripe.SubscriptionItem
		for _, item := range items {
			if item.Price == nil {
				continue
			}
			switch item.Price.Metadata[types.MetadataKeyProductType] {
			case string(types.PRODUCT_TYPE_PLAN):
				planSubItems = append(planSubItems, item)
			case string(types.PRODUCT_TYPE_LINE_ITEM):
				lineSubItems = append(lineSubItems, item)
			}
		}
		switch {
		case len(planSubItems) > 1:
			return nil, ierr.NewErrorf("Customer %q has duplicate plans", cus.Email).
				Mark(ierr.ErrAmbiguousRemoteState)
		case len(planSubItems) == 0:
			plan = s.FreePlan()
			if plan == nil {
				return nil, ierr.NewErrorf("Customer %q has no plan, and no free plan found", cus.Email).
					Mark(ierr.ErrSystem)
			}
		default:
			planSubItem = planSubItems[0]
			planName := planSubItem.Price.Metadata[types.MetadataKeyName]
			plan = s.Plan(planName)
			if plan == nil {
				return nil, ierr.NewErrorf("Customer %q has outdated plan: %q", cus.Email, planName).
					Mark(ierr.ErrAmbiguousRemoteState)
			}
		}
	}

	current := &CurrentPlan{Plan: plan.Clone()}
	if subscription != nil {
		current.IsBillable = true
		current.IsIncomplete = subscription.Status == stripe.SubscriptionStatusIncomplete
		current.IsPastDue = subscription.Status == stripe.SubscriptionStatusPastDue
		if current.IsIncomplete || current.IsPastDue {
			invoice, err := s.LatestInvoice(ctx, cus, subscription)
			if err != nil {
				return nil, err
			}
			if invoice != nil && invoice.HostedInvoiceURL != "" {
				current.InvoiceURL = stripe.String(invoice.HostedInvoiceURL)
			}
		}
		if current.StripeData == nil {
			current.StripeData = &catalog.StripeData{}
		}
		current.StripeData.Subscription = subscription
		if planSubItem != nil {
			current.StripeData.SubscriptionItem = planSubItem
		}
	}

	if err := s.attachLineSubItems(ctx, cus, current, lineSubItems); err != nil {
		return nil, err
	}
	return current, nil
}

// attachLineSubItems binds each line item subscription item to its catalog
// line item on the cloned plan, checking that the item's price scope matches
// the plan the customer is on.
func (s *customerService) attachLineSubItems(ctx context.Context, cus *customer.Customer, current *CurrentPlan, lineSubItems []*stripe.SubscriptionItem) error {
	for _, subItem := range lineSubItems {
		name := subItem.Price.Metadata[types.MetadataKeyName]
		scope := subItem.Price.Metadata[types.MetadataKeyLineItemPlan]
		lineItem := current.LineItem(name)
		switch {
		case lineItem == nil:
			return ierr.NewErrorf(
				"Customer %q (%s) has line item %q belonging to %q that does not match an existing line item in config",
				cus.Email, cus.StripeID, name, scope,
			).Mark(ierr.ErrAmbiguousRemoteState)
		case lineItem.IsTemplate && scope != "*":
			return ierr.NewErrorf(
				"Customer %q (%s) has line item %q belonging to plan %q but they should be using the template line item for their current plan %q",
				cus.Email, cus.StripeID, name, scope, current.Name,
			).Mark(ierr.ErrAmbiguousRemoteState)
		case !lineItem.IsTemplate && scope != current.Name:
			return ierr.NewErrorf(
				"Customer %q (%s) has line item %q belonging to plan %q but they should be using the line item for their current plan %q",
				cus.Email, cus.StripeID, name, scope, current.Name,
			).Mark(ierr.ErrAmbiguousRemoteState)
		}
		if lineItem.StripeData == nil {
			lineItem.StripeData = &catalog.StripeData{}
		}
		lineItem.StripeData.SubscriptionItem = subItem

		if subItem.Price.Recurring != nil && subItem.Price.Recurring.UsageType == stripe.PriceRecurringUsageTypeMetered {
			summaries, err := s.Gateway.ListUsageRecordSummaries(ctx, &stripe.UsageRecordSummaryListParams{
				SubscriptionItem: stripe.String(subItem.ID),
			})
			if err != nil {
				return err
			}
			lineItem.StripeData.UsageRecordSummaries = summaries
		}
	}

	for _, lineItem := range current.LineItems {
		if lineItem.Type != types.LINE_ITEM_TYPE_CAPACITY {
			continue
		}
		if lineItem.StripeData != nil && lineItem.StripeData.SubscriptionItem != nil {
			lineItem.PurchasedCount = lineItem.StripeData.SubscriptionItem.Quantity
		} else {
			lineItem.PurchasedCount = 0
		}
	}
	return nil
}

// CreatePaymentMethodSession starts a setup-mode checkout session for adding
// a card.
func (s *customerService) CreatePaymentMethodSession(ctx context.Context, cus *customer.Customer, successURL, cancelURL string) (*stripe.CheckoutSession, error) {
	if successURL == "" || cancelURL == "" {
		return nil, ierr.NewError("You must provide both successURL and cancelURL").
			Mark(ierr.ErrURLPairIncomplete)
	}
	if err := s.EnsureSynced(ctx, cus); err != nil {
		return nil, err
	}
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(cus.StripeID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSetup)),
		Currency:           stripe.String(string(types.DefaultCurrency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(cancelURL),
	}
	params.Metadata = map[string]string{types.MetadataKeyManaged: "true"}
	return s.Gateway.CreateCheckoutSession(ctx, params)
}

// CreateCheckoutSession starts a subscription-mode checkout session for the
// given line items. Price metadata never travels on checkout line items.
func (s *customerService) CreateCheckoutSession(ctx context.Context, cus *customer.Customer, lineItems []*stripe.CheckoutSessionLineItemParams, subscriptionData *stripe.CheckoutSessionSubscriptionDataParams, successURL, cancelURL string) (*stripe.CheckoutSession, error) {
	if successURL == "" || cancelURL == "" {
		return nil, ierr.NewError("You must provide both successURL and cancelURL").
			Mark(ierr.ErrURLPairIncomplete)
	}
	if err := s.EnsureSynced(ctx, cus); err != nil {
		return nil, err
	}
	params := &stripe.CheckoutSessionParams{
		LineItems:          lineItems,
		SubscriptionData:   subscriptionData,
		Customer:           stripe.String(cus.StripeID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Currency:           stripe.String(string(types.DefaultCurrency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(cancelURL),
	}
	params.Metadata = map[string]string{types.MetadataKeyManaged: "true"}
	return s.Gateway.CreateCheckoutSession(ctx, params)
}

// ListPaymentMethods returns the customer's cards with the default first.
// A customer with cards but no default gets their first card promoted, so
// the invariant "any card implies a default card" holds after every read.
func (s *customerService) ListPaymentMethods(ctx context.Context, cus *customer.Customer) ([]*stripe.PaymentMethod, error) {
	if err := s.EnsureSynced(ctx, cus); err != nil {
		return nil, err
	}
	methods, err := s.listRawPaymentMethods(ctx, cus)
	if err != nil {
		return nil, err
	}
	defaultIndex := findDefaultMethod(methods)
	if defaultIndex < 0 && len(methods) > 0 {
		if _, err := s.SetDefaultPaymentMethod(ctx, cus, methods[0].ID); err != nil {
			return nil, err
		}
		methods, err = s.listRawPaymentMethods(ctx, cus)
		if err != nil {
			return nil, err
		}
		defaultIndex = findDefaultMethod(methods)
	}
	if defaultIndex > 0 {
		promoted := methods[defaultIndex]
		methods = append(methods[:defaultIndex], methods[defaultIndex+1:]...)
		methods = append([]*stripe.PaymentMethod{promoted}, methods...)
	}
	return methods, nil
}

func (s *customerService) listRawPaymentMethods(ctx context.Context, cus *customer.Customer) ([]*stripe.PaymentMethod, error) {
	return s.Gateway.ListPaymentMethods(ctx, &stripe.PaymentMethodListParams{
		Customer: stripe.String(cus.StripeID),
	})
}

func findDefaultMethod(methods []*stripe.PaymentMethod) int {
	for i, method := range methods {
		if method.Metadata["is_default_method"] == "true" {
			return i
		}
	}
	return -1
}

// SetDefaultPaymentMethod points every managed subscription at the method
// and rewrites the default flag on all of the customer's methods.
func (s *customerService) SetDefaultPaymentMethod(ctx context.Context, cus *customer.Customer, id string) (*stripe.PaymentMethod, error) {
	if err := s.EnsureSynced(ctx, cus); err != nil {
		return nil, err
	}
	subscriptions, err := s.Gateway.ListSubscriptions(ctx, &stripe.SubscriptionListParams{
		Customer: stripe.String(cus.StripeID),
	})
	if err != nil {
		return nil, err
	}
	methods, err := s.listRawPaymentMethods(ctx, cus)
	if err != nil {
		return nil, err
	}
	var found bool
	for _, method := range methods {
		if method.ID == id {
			found = true
		}
	}
	if !found {
		return nil, ierr.NewErrorf("No corresponding payment method found for Customer %q", cus.Email).
			Mark(ierr.ErrNotFound)
	}

	for _, subscription := range subscriptions {
		if subscription.Metadata[types.MetadataKeyManaged] != "true" {
			continue
		}
		_, err := s.Gateway.UpdateSubscription(ctx, subscription.ID, &stripe.SubscriptionParams{
			DefaultPaymentMethod: stripe.String(id),
		})
		if err != nil {
			return nil, err
		}
	}

	var defaultMethod *stripe.PaymentMethod
	for _, method := range methods {
		params := &stripe.PaymentMethodParams{}
		params.Metadata = map[string]string{
			"is_default_method": boolString(method.ID == id),
		}
		updated, err := s.Gateway.UpdatePaymentMethod(ctx, method.ID, params)
		if err != nil {
			return nil, err
		}
		if method.ID == id {
			defaultMethod = updated
		}
	}
	return defaultMethod, nil
}

// RemovePaymentMethod detaches a card. The last card cannot be removed while
// a subscription is active, since the subscription would become uncollectible.
func (s *customerService) RemovePaymentMethod(ctx context.Context, cus *customer.Customer, id string) ([]*stripe.PaymentMethod, error) {
	subscription, err := s.Subscription(ctx, cus)
	if err != nil {
		return nil, err
	}
	methods, err := s.ListPaymentMethods(ctx, cus)
	if err != nil {
		return nil, err
	}
	var found bool
	for _, method := range methods {
		if method.ID == id {
			found = true
		}
	}
	if !found {
		return nil, ierr.NewErrorf("No corresponding payment method found for Customer %q, could not remove.", cus.Email).
			Mark(ierr.ErrNotFound)
	}
	if subscription != nil && len(methods) == 1 {
		return nil, ierr.NewErrorf("Customer %q can not remove the last payment method on account with an active subscription.", cus.Email).
			WithHint("Please cancel your active subscription before removing this payment method.").
			Mark(ierr.ErrInvalidOperation)
	}
	if _, err := s.Gateway.DetachPaymentMethod(ctx, id, nil); err != nil {
		return nil, err
	}
	return s.ListPaymentMethods(ctx, cus)
}

// ListInvoices returns up to count finalized invoices, newest first. Count
// is clamped to 1..100 and drafts are never shown.
func (s *customerService) ListInvoices(ctx context.Context, cus *customer.Customer, count int) ([]*stripe.Invoice, error) {
	if count < 1 {
		count = 1
	}
	if count > 100 {
		count = 100
	}
	if err := s.EnsureSynced(ctx, cus); err != nil {
		return nil, err
	}
	invoices, err := s.Gateway.ListInvoices(ctx, &stripe.InvoiceListParams{
		Customer: stripe.String(cus.StripeID),
	})
	if err != nil {
		return nil, err
	}
	out := make([]*stripe.Invoice, 0, count)
	for _, invoice := range invoices {
		if invoice.Status == stripe.InvoiceStatusDraft {
			continue
		}
		out = append(out, invoice)
		if len(out) == count {
			break
		}
	}
	return out, nil
}

// UpcomingInvoice previews the next invoice, or nil without a subscription.
func (s *customerService) UpcomingInvoice(ctx context.Context, cus *customer.Customer) (*stripe.Invoice, error) {
	subscription, err := s.Subscription(ctx, cus)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, nil
	}
	params := &stripe.InvoiceUpcomingParams{
		Customer:     stripe.String(cus.StripeID),
		Subscription: stripe.String(subscription.ID),
	}
	params.AddExpand("subscription")
	return s.Gateway.UpcomingInvoice(ctx, params)
}

// LatestInvoice fetches the subscription's latest invoice, or nil without a
// subscription.
func (s *customerService) LatestInvoice(ctx context.Context, cus *customer.Customer, subscription *stripe.Subscription) (*stripe.Invoice, error) {
	if subscription == nil {
		var err error
		subscription, err = s.Subscription(ctx, cus)
		if err != nil {
			return nil, err
		}
	}
	if subscription == nil || subscription.LatestInvoice == nil {
		return nil, nil
	}
	return s.Gateway.GetInvoice(ctx, subscription.LatestInvoice.ID, nil)
}

func boolString(value bool) string {
	if value {
		return "true"
	}
	return "false"
}
