package service

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/domain/catalog"
	"github.com/instpay/instpay/internal/domain/customer"
	ierr "github.com/instpay/instpay/internal/errors"
	"github.com/instpay/instpay/internal/types"
)

// SubscribeResult is the outcome of a subscription change: either the
// updated subscription, or a checkout session the customer must complete.
type SubscribeResult struct {
	Subscription    *stripe.Subscription
	CheckoutSession *stripe.CheckoutSession
}

// SubscriptionService reconciles a customer's subscription with a target
// plan. Subscribe is the single entry point; unsubscribing is subscribing to
// a nil plan name.
type SubscriptionService interface {
	Subscribe(ctx context.Context, cus *customer.Customer, planName *string, lineItemCounts map[string]any, existingLineItemCounts map[string]any, successURL, cancelURL string) (*SubscribeResult, error)
	Unsubscribe(ctx context.Context, cus *customer.Customer, existingLineItemCounts map[string]any) error
}

type subscriptionService struct {
	ServiceParams
	customers CustomerService
}

func NewSubscriptionService(params ServiceParams, customers CustomerService) SubscriptionService {
	return &subscriptionService{ServiceParams: params, customers: customers}
}

// limitViolation records one capacity or flag the customer exceeds on the
// target plan.
type limitViolation struct {
	Expected any `json:"expected"`
	Actual   any `json:"actual"`
}

func (s *subscriptionService) Unsubscribe(ctx context.Context, cus *customer.Customer, existingLineItemCounts map[string]any) error {
	_, err := s.Subscribe(ctx, cus, nil, nil, existingLineItemCounts, "", "")
	return err
}

func (s *subscriptionService) Subscribe(ctx context.Context, cus *customer.Customer, planName *string, lineItemCounts map[string]any, existingLineItemCounts map[string]any, successURL, cancelURL string) (*SubscribeResult, error) {
	if (successURL != "") != (cancelURL != "") {
		return nil, ierr.NewError("You must provide both successURL and cancelURL if one is provided").
			Mark(ierr.ErrURLPairIncomplete)
	}

	plan, counts, err := s.resolveTargetPlan(planName, lineItemCounts)
	if err != nil {
		return nil, err
	}

	// Open checkout sessions hold stale plan selections; expire them before
	// reading the current subscription.
	if err := s.expireOpenSessions(ctx, cus); err != nil {
		return nil, err
	}

	currentPlan, err := s.customers.GetCurrentPlan(ctx, cus)
	if err != nil {
		return nil, err
	}

	if counts != nil {
		if err := s.validateLineItemCounts(cus, plan, currentPlan, planName, counts); err != nil {
			return nil, err
		}
	} else if currentPlan.StripeData != nil && currentPlan.StripeData.Subscription != nil &&
		planName != nil && *planName == currentPlan.Name {
		return nil, ierr.NewErrorf("Customer %q is already subscribed to %q", cus.Email, *planName).
			Mark(ierr.ErrRedundantRequest)
	}

	violations, err := checkFlagLimits(plan, existingLineItemCounts)
	if err != nil {
		return nil, err
	}

	if planName == nil {
		return nil, s.cancelSubscription(ctx, cus, plan, currentPlan, existingLineItemCounts, violations)
	}
	return s.applyPlan(ctx, cus, plan, currentPlan, counts, existingLineItemCounts, violations, successURL, cancelURL)
}

// resolveTargetPlan maps the requested plan name to a catalog plan. A nil
// name targets the free plan with every capacity zeroed out; an explicit
// name requires the plan to be enabled.
func (s *subscriptionService) resolveTargetPlan(planName *string, lineItemCounts map[string]any) (*catalog.Plan, map[string]any, error) {
	if planName == nil {
		if lineItemCounts != nil {
			return nil, nil, ierr.NewError("Cannot unsubscribe and provide lineItemCounts.").
				WithHint("If you wish to subscribe to a free plan with line items, please use the plan name").
				Mark(ierr.ErrValidation)
		}
		plan := s.FreePlan()
		if plan == nil {
			return nil, nil, ierr.NewError("no free plan found").Mark(ierr.ErrSystem)
		}
		counts := map[string]any{}
		for _, item := range plan.LineItems {
			if item.Type == types.LINE_ITEM_TYPE_CAPACITY {
				counts[item.Name] = float64(0)
			}
		}
		return plan, counts, nil
	}

	plan := s.Plan(*planName)
	if plan != nil && !plan.Enabled {
		verb := fmt.Sprintf("Can not subscribe to: %q (%s)", plan.DisplayName, plan.Name)
		if lineItemCounts != nil {
			verb = fmt.Sprintf("Can not alter subscription to: %q (%s)", plan.DisplayName, plan.Name)
		}
		return nil, nil, ierr.NewError(verb).
			WithHint("It is not enabled by the platform administrators.").
			Mark(ierr.ErrValidation)
	}
	if plan == nil {
		names := make([]string, 0, len(s.Plans))
		for _, p := range s.Plans {
			names = append(names, p.Name)
		}
		return nil, nil, ierr.NewErrorf("Invalid plan: %q", *planName).
			WithHintf("Valid plans are: \"%s\"", strings.Join(names, `", "`)).
			Mark(ierr.ErrValidation)
	}
	return plan, lineItemCounts, nil
}

func (s *subscriptionService) expireOpenSessions(ctx context.Context, cus *customer.Customer) error {
	if !cus.Synced() {
		return nil
	}
	sessions, err := s.Gateway.ListCheckoutSessions(ctx, &stripe.CheckoutSessionListParams{
		Customer: stripe.String(cus.StripeID),
		Status:   stripe.String(string(stripe.CheckoutSessionStatusOpen)),
	})
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if _, err := s.Gateway.ExpireCheckoutSession(ctx, session.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

// validateLineItemCounts checks the requested capacity counts against the
// target plan and rejects no-op requests against the current subscription.
func (s *subscriptionService) validateLineItemCounts(cus *customer.Customer, plan *catalog.Plan, currentPlan *CurrentPlan, planName *string, counts map[string]any) error {
	tracker := make(map[string]*catalog.PlanLineItem, len(plan.LineItems))
	for _, item := range plan.LineItems {
		tracker[item.Name] = item
	}
	for _, name := range sortedKeys(counts) {
		item := tracker[name]
		delete(tracker, name)
		count := counts[name]
		switch {
		case item == nil:
			return ierr.NewErrorf("lineItemCounts: Invalid line item %q", name).
				Mark(ierr.ErrValidation)
		case item.Type != types.LINE_ITEM_TYPE_CAPACITY:
			return ierr.NewErrorf("lineItemCounts: Line item %q invalid type %q to supply count for", name, item.Type).
				Mark(ierr.ErrValidation)
		}
		number, isNumber := count.(float64)
		switch {
		case item.Settings.Price() == nil && isNumber && number > 0:
			return ierr.NewErrorf("lineItemCounts: Line item %q is free, should not supply count", name).
				Mark(ierr.ErrValidation)
		case !isNumber:
			return ierr.NewErrorf("lineItemCounts: Line item %q count must be a number", name).
				Mark(ierr.ErrValidation)
		case number != float64(int64(number)):
			return ierr.NewErrorf("lineItemCounts: Line item %q count must be an integer", name).
				Mark(ierr.ErrValidation)
		case number < 0 || number > 1000:
			return ierr.NewErrorf("lineItemCounts: Line item %q count must be between 0 and 1000", name).
				Mark(ierr.ErrValidation)
		}
	}

	var missing []string
	for _, item := range plan.LineItems {
		if tracker[item.Name] == nil || item.Type != types.LINE_ITEM_TYPE_CAPACITY || item.Settings.Price() == nil {
			continue
		}
		missing = append(missing, item.Name)
	}
	if len(missing) > 0 {
		return ierr.NewErrorf("lineItemCounts: Customer %q must provide line items \"%s\"", cus.Email, strings.Join(missing, `", "`)).
			Mark(ierr.ErrMissingLineItems)
	}

	var changed bool
	for name, count := range counts {
		current := currentPlan.LineItem(name)
		if current == nil {
			continue
		}
		if number, ok := count.(float64); ok && int64(number) != current.PurchasedCount {
			changed = true
		}
	}
	if !changed && currentPlan.StripeData != nil && currentPlan.StripeData.Subscription != nil &&
		planName != nil && *planName == currentPlan.Name {
		return ierr.NewErrorf("lineItemCounts: Customer %q is already subscribed to %q with those line items", cus.Email, *planName).
			Mark(ierr.ErrRedundantRequest)
	}
	return nil
}

// checkFlagLimits validates flag values in existingLineItemCounts against
// the target plan. Capacity entries are type checked here and compared to
// their limits later, once target quantities are known.
func checkFlagLimits(plan *catalog.Plan, existing map[string]any) (map[string]limitViolation, error) {
	violations := map[string]limitViolation{}
	for _, key := range sortedKeys(existing) {
		existingCount := existing[key]
		item := plan.LineItem(key)
		if item == nil {
			return nil, ierr.NewErrorf("existingLineItemCounts: Invalid line item %q", key).
				Mark(ierr.ErrValidation)
		}
		switch item.Type {
		case types.LINE_ITEM_TYPE_FLAG:
			var flagValue any
			if item.Settings.Flag != nil && len(item.Settings.Flag.Value) > 0 {
				if err := json.Unmarshal(item.Settings.Flag.Value, &flagValue); err != nil {
					return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
				}
			}
			if limit, ok := flagValue.(float64); ok {
				actual, ok := existingCount.(float64)
				if !ok {
					return nil, ierr.NewErrorf("existingLineItemCounts: Line item %q (flag) expects a number", key).
						Mark(ierr.ErrValidation)
				}
				if actual > limit {
					violations[key] = limitViolation{Expected: flagValue, Actual: existingCount}
				}
			} else if !reflect.DeepEqual(existingCount, flagValue) {
				violations[key] = limitViolation{Expected: flagValue, Actual: existingCount}
			}
		case types.LINE_ITEM_TYPE_CAPACITY:
			if _, ok := existingCount.(float64); !ok {
				return nil, ierr.NewErrorf("existingLineItemCounts: Line item %q (capacity) expects a number", key).
					Mark(ierr.ErrValidation)
			}
		default:
			return nil, ierr.NewErrorf("existingLineItemCounts: Can not provide value for line item %q, must be type \"capacity\" or \"flag\"", key).
				Mark(ierr.ErrValidation)
		}
	}
	return violations, nil
}

// overLimitError renders accumulated violations as one actionable error.
func overLimitError(plan *catalog.Plan, violations map[string]limitViolation) error {
	keys := sortedViolationKeys(violations)
	var lines []string
	for _, key := range keys {
		diff := violations[key]
		if _, ok := diff.Expected.(float64); ok {
			lines = append(lines, fmt.Sprintf(" - %q must be reduced from %v to %v", key, diff.Actual, diff.Expected))
		} else {
			lines = append(lines, fmt.Sprintf(" - %q must be modified from %v to %v", key, diff.Actual, diff.Expected))
		}
	}
	details := make(map[string]any, len(violations))
	for key, diff := range violations {
		details[key] = diff
	}
	return ierr.NewErrorf("existingLineItemCounts: You are over plan %q limits.", plan.Name).
		WithHintf("To change your subscription you must adjust your capacities:\n%s", strings.Join(lines, "\n")).
		WithReportableDetails(details).
		Mark(ierr.ErrOverLimit)
}

// downgradeGuard reports whether violations block the change. Upgrades to a
// strictly more expensive plan are always allowed through.
func downgradeGuard(currentPlan *CurrentPlan, plan *catalog.Plan, violations map[string]limitViolation) bool {
	if len(violations) == 0 {
		return false
	}
	if currentPlan.Price == nil || plan.Price == nil {
		return true
	}
	currentAmount, _ := currentPlan.Price.Amount(types.DefaultCurrency)
	targetAmount, _ := plan.Price.Amount(types.DefaultCurrency)
	return currentAmount >= targetAmount
}

// cancelSubscription handles the nil plan name path: check capacity limits
// against the free plan's included counts, then cancel with a prorated
// final invoice.
func (s *subscriptionService) cancelSubscription(ctx context.Context, cus *customer.Customer, plan *catalog.Plan, currentPlan *CurrentPlan, existing map[string]any, violations map[string]limitViolation) error {
	if currentPlan.StripeData == nil || currentPlan.StripeData.Subscription == nil {
		return nil
	}
	for _, item := range plan.LineItems {
		if item.Type != types.LINE_ITEM_TYPE_CAPACITY {
			continue
		}
		existingCount, ok := existing[item.Name]
		if !ok {
			continue
		}
		included := int64(0)
		if item.Settings.Capacity != nil {
			included = item.Settings.Capacity.IncludedCount
		}
		if actual, ok := existingCount.(float64); ok && actual > float64(included) {
			violations[item.Name] = limitViolation{Expected: float64(included), Actual: existingCount}
		}
	}
	if downgradeGuard(currentPlan, plan, violations) {
		return overLimitError(plan, violations)
	}
	_, err := s.Gateway.CancelSubscription(ctx, currentPlan.StripeData.Subscription.ID, &stripe.SubscriptionCancelParams{
		InvoiceNow: stripe.Bool(true),
		Prorate:    stripe.Bool(true),
	})
	return err
}

// subscriptionEntry is one pending subscription item mutation. A nil
// Quantity means a metered item, which carries no quantity at all.
type subscriptionEntry struct {
	id       string
	priceID  string
	quantity *int64
	metadata types.Metadata
	deleted  bool
}

// applyPlan builds the target item set and either updates the existing
// subscription, creates one, or defers to a checkout session.
func (s *subscriptionService) applyPlan(ctx context.Context, cus *customer.Customer, plan *catalog.Plan, currentPlan *CurrentPlan, counts map[string]any, existing map[string]any, violations map[string]limitViolation, successURL, cancelURL string) (*SubscribeResult, error) {
	entries, err := s.buildEntries(plan, currentPlan, counts, existing, violations)
	if err != nil {
		return nil, err
	}
	if downgradeGuard(currentPlan, plan, violations) {
		return nil, overLimitError(plan, violations)
	}

	var addItems, removeItems []subscriptionEntry
	for _, entry := range entries {
		if entry.quantity != nil && *entry.quantity == 0 {
			if entry.priceID != "" && entry.id != "" {
				entry.deleted = true
				removeItems = append(removeItems, entry)
			}
			continue
		}
		addItems = append(addItems, entry)
	}

	hasSubscription := currentPlan.StripeData != nil && currentPlan.StripeData.Subscription != nil
	if len(addItems) == 0 {
		// All items zeroed out with a live subscription left over; the
		// unsubscribe path should have been taken, cancel anyway.
		if hasSubscription {
			_, err := s.Gateway.CancelSubscription(ctx, currentPlan.StripeData.Subscription.ID, &stripe.SubscriptionCancelParams{
				InvoiceNow: stripe.Bool(true),
				Prorate:    stripe.Bool(true),
			})
			return nil, err
		}
		return &SubscribeResult{}, nil
	}

	paymentMethods, err := s.customers.ListPaymentMethods(ctx, cus)
	if err != nil {
		return nil, err
	}

	if hasSubscription {
		if len(paymentMethods) == 0 {
			return nil, ierr.NewErrorf("You must add a default payment method for %q before changing your subscription", cus.Email).
				Mark(ierr.ErrNoPaymentMethod)
		}
		params := &stripe.SubscriptionParams{
			DefaultPaymentMethod: stripe.String(paymentMethods[0].ID),
			Description:          stripe.String(plan.Name),
			Items:                toItemParams(append(addItems, removeItems...)),
			ProrationBehavior:    stripe.String("always_invoice"),
		}
		params.Metadata = cus.SerializeMetadata()
		if currentPlan.Name != plan.Name {
			params.BillingCycleAnchorNow = stripe.Bool(true)
		}
		subscription, err := s.Gateway.UpdateSubscription(ctx, currentPlan.StripeData.Subscription.ID, params)
		if err != nil {
			return nil, err
		}
		return &SubscribeResult{Subscription: subscription}, nil
	}

	if successURL != "" && cancelURL != "" {
		subscriptionData := &stripe.CheckoutSessionSubscriptionDataParams{
			Description: stripe.String(plan.Name),
			Metadata:    cus.SerializeMetadata(),
		}
		session, err := s.customers.CreateCheckoutSession(ctx, cus, toCheckoutLineItems(append(addItems, removeItems...)), subscriptionData, successURL, cancelURL)
		if err != nil {
			return nil, err
		}
		return &SubscribeResult{CheckoutSession: session}, nil
	}

	if len(paymentMethods) == 0 {
		return nil, ierr.NewErrorf("You must add a default payment method for %q before changing your subscription.", cus.Email).
			Mark(ierr.ErrNoPaymentMethod)
	}
	params := &stripe.SubscriptionParams{
		Customer:             stripe.String(cus.StripeID),
		DefaultPaymentMethod: stripe.String(paymentMethods[0].ID),
		Description:          stripe.String(plan.Name),
		Items:                toItemParams(addItems),
	}
	params.Metadata = cus.SerializeMetadata()
	subscription, err := s.Gateway.CreateSubscription(ctx, params)
	if err != nil {
		return nil, err
	}
	return &SubscribeResult{Subscription: subscription}, nil
}

// buildEntries computes the target subscription items: the plan's own item
// plus one entry per non-flag line item. Capacity quantities come from the
// request or are carried over from the current plan, adjusted for included
// count changes.
func (s *subscriptionService) buildEntries(plan *catalog.Plan, currentPlan *CurrentPlan, counts map[string]any, existing map[string]any, violations map[string]limitViolation) ([]subscriptionEntry, error) {
	var entries []subscriptionEntry

	planPrice := plan.StripeData.Price(types.DefaultCurrency)
	if plan.StripeData != nil && planPrice == nil {
		return nil, ierr.NewErrorf("No price data found for plan %q + %q combination", plan.Name, types.DefaultCurrency).
			Mark(ierr.ErrSystem)
	}
	if planPrice != nil {
		entry := subscriptionEntry{
			priceID:  planPrice.ID,
			quantity: stripe.Int64(1),
			metadata: types.Metadata(planPrice.Metadata).Clone(),
		}
		if currentPlan.StripeData != nil && currentPlan.StripeData.SubscriptionItem != nil {
			entry.id = currentPlan.StripeData.SubscriptionItem.ID
		}
		entries = append(entries, entry)
	}

	for _, item := range plan.LineItems {
		if item.Type == types.LINE_ITEM_TYPE_FLAG {
			continue
		}
		currentItem := currentPlan.LineItem(item.Name)
		if item.StripeData == nil && item.Settings.Price() != nil {
			return nil, ierr.NewErrorf("Missing core price data for %q + %q", plan.Name, item.Name).
				Mark(ierr.ErrSystem)
		}
		itemPrice := item.StripeData.Price(types.DefaultCurrency)

		var entry subscriptionEntry
		switch {
		case itemPrice == nil && item.Settings.Price() != nil:
			return nil, ierr.NewErrorf("No price data found for new plan %q + %q + %q combination", plan.Name, item.Name, types.DefaultCurrency).
				Mark(ierr.ErrSystem)

		case item.Settings.Price() == nil:
			// The target plan includes this item for free; zero out any
			// currently purchased quantity using the current plan's price.
			currentPrice := currentItem.StripeData.Price(types.DefaultCurrency)
			if currentPrice == nil && currentItem.Settings.Price() != nil {
				return nil, ierr.NewErrorf("No price data found for current plan %q + %q + %q combination", plan.Name, currentItem.Name, types.DefaultCurrency).
					Mark(ierr.ErrSystem)
			}
			if currentPrice == nil {
				entry = subscriptionEntry{quantity: stripe.Int64(0), metadata: types.Metadata{}}
			} else {
				entry = subscriptionEntry{
					priceID:  currentPrice.ID,
					quantity: stripe.Int64(0),
					metadata: types.Metadata(currentPrice.Metadata).Clone(),
				}
			}

		case item.Type == types.LINE_ITEM_TYPE_CAPACITY:
			quantity := capacityQuantity(item, currentItem, counts)
			if existingCount, ok := existing[item.Name].(float64); ok && existingCount != 0 {
				limit := quantity + item.Settings.Capacity.IncludedCount
				if existingCount > float64(limit) {
					violations[item.Name] = limitViolation{Expected: float64(limit), Actual: existing[item.Name]}
				}
			}
			entry = subscriptionEntry{
				priceID:  itemPrice.ID,
				quantity: stripe.Int64(quantity),
				metadata: types.Metadata(itemPrice.Metadata).Clone(),
			}

		case item.Type == types.LINE_ITEM_TYPE_USAGE:
			entry = subscriptionEntry{
				priceID:  itemPrice.ID,
				metadata: types.Metadata(itemPrice.Metadata).Clone(),
			}

		default:
			return nil, ierr.NewErrorf("Unknown Line Item type: %q", item.Type).Mark(ierr.ErrSystem)
		}

		if currentItem != nil && currentItem.StripeData != nil && currentItem.StripeData.SubscriptionItem != nil {
			entry.id = currentItem.StripeData.SubscriptionItem.ID
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// capacityQuantity picks the purchased quantity for a capacity item: an
// explicit requested count wins; otherwise the current quantity carries
// over, reduced when the target plan includes more for free.
func capacityQuantity(item, currentItem *catalog.PlanLineItem, counts map[string]any) int64 {
	if counts != nil {
		if number, ok := counts[item.Name].(float64); ok {
			return int64(number)
		}
		return 0
	}
	quantity := currentItem.PurchasedCount
	currentIncluded := int64(0)
	if currentItem.Settings.Capacity != nil {
		currentIncluded = currentItem.Settings.Capacity.IncludedCount
	}
	delta := item.Settings.Capacity.IncludedCount - currentIncluded
	if delta >= 0 {
		quantity -= delta
		if quantity < 0 {
			quantity = 0
		}
	}
	return quantity
}

func toItemParams(entries []subscriptionEntry) []*stripe.SubscriptionItemsParams {
	out := make([]*stripe.SubscriptionItemsParams, 0, len(entries))
	for _, entry := range entries {
		params := &stripe.SubscriptionItemsParams{}
		if entry.id != "" {
			params.ID = stripe.String(entry.id)
		}
		if entry.priceID != "" {
			params.Price = stripe.String(entry.priceID)
		}
		if entry.quantity != nil {
			params.Quantity = entry.quantity
		}
		if entry.deleted {
			params.Deleted = stripe.Bool(true)
		}
		if len(entry.metadata) > 0 {
			params.Metadata = entry.metadata
		}
		out = append(out, params)
	}
	return out
}

// toCheckoutLineItems drops metadata; checkout rejects it on line items.
func toCheckoutLineItems(entries []subscriptionEntry) []*stripe.CheckoutSessionLineItemParams {
	out := make([]*stripe.CheckoutSessionLineItemParams, 0, len(entries))
	for _, entry := range entries {
		params := &stripe.CheckoutSessionLineItemParams{}
		if entry.priceID != "" {
			params.Price = stripe.String(entry.priceID)
		}
		if entry.quantity != nil {
			params.Quantity = entry.quantity
		}
		out = append(out, params)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedViolationKeys(m map[string]limitViolation) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
