package service

import (
	"strings"
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/domain/customer"
	ierr "github.com/instpay/instpay/internal/errors"
)

type SubscriptionServiceSuite struct {
	suite.Suite
	env *testEnv
}

func TestSubscriptionServiceSuite(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	env, err := newTestEnv()
	s.Require().NoError(err)
	s.env = env
}

func (s *SubscriptionServiceSuite) customerWithCard(email string) *customer.Customer {
	cus, err := s.env.findSynced(email)
	s.Require().NoError(err)
	s.env.seedCard(cus, "pm_"+strings.SplitN(email, "@", 2)[0])
	return cus
}

func (s *SubscriptionServiceSuite) subscribe(cus *customer.Customer, plan string, counts map[string]any) *SubscribeResult {
	result, err := s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String(plan), counts, nil, "", "")
	s.Require().NoError(err)
	return result
}

// businessCounts covers every priced capacity item on the business plan.
func businessCounts(seats float64) map[string]any {
	return map[string]any{
		"collaborator_seats": seats,
		"projects":           float64(0),
		"environments":       float64(0),
		"linked_apps":        float64(0),
		"hostnames":          float64(0),
	}
}

func (s *SubscriptionServiceSuite) TestRequiresBothRedirectURLs() {
	cus, err := s.env.findSynced("pair@example.com")
	s.Require().NoError(err)

	_, err = s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("standard_plan"), nil, nil, "https://app.example.com/done", "")
	s.Require().Error(err)
	s.EqualError(err, "You must provide both successURL and cancelURL if one is provided")
	s.True(ierr.Is(err, ierr.ErrURLPairIncomplete))
}

func (s *SubscriptionServiceSuite) TestInvalidPlan() {
	cus, err := s.env.findSynced("typo@example.com")
	s.Require().NoError(err)

	_, err = s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("mega_plan"), nil, nil, "", "")
	s.Require().Error(err)
	s.EqualError(err, `Invalid plan: "mega_plan"`)
	s.Contains(strings.Join(cerrors.GetAllHints(err), "\n"), `Valid plans are: "free_plan", "standard_plan", "business_plan"`)
}

func (s *SubscriptionServiceSuite) TestDisabledPlan() {
	s.env.params.Plan("standard_plan").Enabled = false
	cus, err := s.env.findSynced("disabled@example.com")
	s.Require().NoError(err)

	_, err = s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("standard_plan"), nil, nil, "", "")
	s.Require().Error(err)
	s.EqualError(err, `Can not subscribe to: "Standard" (standard_plan)`)

	_, err = s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("standard_plan"), map[string]any{"collaborator_seats": float64(1)}, nil, "", "")
	s.Require().Error(err)
	s.EqualError(err, `Can not alter subscription to: "Standard" (standard_plan)`)
}

func (s *SubscriptionServiceSuite) TestUnsubscribeRejectsLineItemCounts() {
	cus, err := s.env.findSynced("mixed@example.com")
	s.Require().NoError(err)

	_, err = s.env.subscriptions.Subscribe(s.env.ctx, cus, nil, map[string]any{"collaborator_seats": float64(1)}, nil, "", "")
	s.Require().Error(err)
	s.EqualError(err, "Cannot unsubscribe and provide lineItemCounts.")
}

func (s *SubscriptionServiceSuite) TestCreatesSubscriptionWithDefaultCard() {
	cus := s.customerWithCard("new@example.com")

	result := s.subscribe(cus, "standard_plan", map[string]any{"collaborator_seats": float64(3)})
	s.Require().NotNil(result.Subscription)
	s.Nil(result.CheckoutSession)
	s.Equal(1, s.env.gateway.CreateCalls["subscription"])

	cus, err := s.env.findSynced("new@example.com")
	s.Require().NoError(err)
	current, err := s.env.customers.GetCurrentPlan(s.env.ctx, cus)
	s.Require().NoError(err)
	s.Equal("standard_plan", current.Name)
	s.True(current.IsBillable)
	s.Equal(int64(3), current.LineItem("collaborator_seats").PurchasedCount)
	s.NotNil(current.LineItem("execution_time").StripeData.SubscriptionItem)
}

func (s *SubscriptionServiceSuite) TestChecksOutWithoutCard() {
	cus, err := s.env.findSynced("cardless@example.com")
	s.Require().NoError(err)

	result, err := s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("standard_plan"), nil, nil,
		"https://app.example.com/done", "https://app.example.com/cancel")
	s.Require().NoError(err)
	s.Require().NotNil(result.CheckoutSession)
	s.Nil(result.Subscription)
	s.Equal(stripe.CheckoutSessionModeSubscription, result.CheckoutSession.Mode)
	s.Equal(0, s.env.gateway.CreateCalls["subscription"])
}

func (s *SubscriptionServiceSuite) TestNoPaymentMethodWithoutURLs() {
	cus, err := s.env.findSynced("broke@example.com")
	s.Require().NoError(err)

	_, err = s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("standard_plan"), nil, nil, "", "")
	s.Require().Error(err)
	s.True(ierr.Is(err, ierr.ErrNoPaymentMethod))
}

func (s *SubscriptionServiceSuite) TestExpiresStaleCheckoutSessions() {
	cus, err := s.env.findSynced("shopper@example.com")
	s.Require().NoError(err)

	_, err = s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("standard_plan"), nil, nil,
		"https://app.example.com/done", "https://app.example.com/cancel")
	s.Require().NoError(err)
	_, err = s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("business_plan"), nil, nil,
		"https://app.example.com/done", "https://app.example.com/cancel")
	s.Require().NoError(err)

	open, err := s.env.gateway.ListCheckoutSessions(s.env.ctx, &stripe.CheckoutSessionListParams{
		Customer: stripe.String(cus.StripeID),
		Status:   stripe.String(string(stripe.CheckoutSessionStatusOpen)),
	})
	s.Require().NoError(err)
	s.Len(open, 1)
}

func (s *SubscriptionServiceSuite) TestRedundantSubscribe() {
	cus := s.customerWithCard("again@example.com")
	s.subscribe(cus, "standard_plan", nil)

	cus, err := s.env.findSynced("again@example.com")
	s.Require().NoError(err)
	_, err = s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("standard_plan"), nil, nil, "", "")
	s.Require().Error(err)
	s.EqualError(err, `Customer "again@example.com" is already subscribed to "standard_plan"`)
	s.True(ierr.Is(err, ierr.ErrRedundantRequest))
}

func (s *SubscriptionServiceSuite) TestRedundantSubscribeWithSameCounts() {
	cus := s.customerWithCard("same@example.com")
	s.subscribe(cus, "standard_plan", map[string]any{"collaborator_seats": float64(3)})

	cus, err := s.env.findSynced("same@example.com")
	s.Require().NoError(err)
	_, err = s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("standard_plan"),
		map[string]any{"collaborator_seats": float64(3)}, nil, "", "")
	s.Require().Error(err)
	s.EqualError(err, `lineItemCounts: Customer "same@example.com" is already subscribed to "standard_plan" with those line items`)
	s.True(ierr.Is(err, ierr.ErrRedundantRequest))
}

func (s *SubscriptionServiceSuite) TestLineItemCountValidation() {
	cus := s.customerWithCard("counts@example.com")

	cases := []struct {
		name    string
		counts  map[string]any
		message string
	}{
		{
			name:    "unknown item",
			counts:  map[string]any{"widgets": float64(1)},
			message: `lineItemCounts: Invalid line item "widgets"`,
		},
		{
			name:    "flag item",
			counts:  map[string]any{"timeout": float64(1)},
			message: `lineItemCounts: Line item "timeout" invalid type "flag" to supply count for`,
		},
		{
			name:    "free item with count",
			counts:  map[string]any{"collaborator_seats": float64(1), "projects": float64(1)},
			message: `lineItemCounts: Line item "projects" is free, should not supply count`,
		},
		{
			name:    "non numeric count",
			counts:  map[string]any{"collaborator_seats": "three"},
			message: `lineItemCounts: Line item "collaborator_seats" count must be a number`,
		},
		{
			name:    "fractional count",
			counts:  map[string]any{"collaborator_seats": 2.5},
			message: `lineItemCounts: Line item "collaborator_seats" count must be an integer`,
		},
		{
			name:    "negative count",
			counts:  map[string]any{"collaborator_seats": float64(-1)},
			message: `lineItemCounts: Line item "collaborator_seats" count must be between 0 and 1000`,
		},
		{
			name:    "count over cap",
			counts:  map[string]any{"collaborator_seats": float64(1001)},
			message: `lineItemCounts: Line item "collaborator_seats" count must be between 0 and 1000`,
		},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("standard_plan"), tc.counts, nil, "", "")
			s.Require().Error(err)
			s.EqualError(err, tc.message)
			s.True(ierr.IsValidation(err))
		})
	}
}

func (s *SubscriptionServiceSuite) TestMissingRequiredLineItems() {
	cus := s.customerWithCard("partial@example.com")

	_, err := s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("business_plan"),
		map[string]any{"collaborator_seats": float64(1)}, nil, "", "")
	s.Require().Error(err)
	s.EqualError(err, `lineItemCounts: Customer "partial@example.com" must provide line items "projects", "environments", "linked_apps", "hostnames"`)
	s.True(ierr.Is(err, ierr.ErrMissingLineItems))
}

func (s *SubscriptionServiceSuite) TestCapacityCarryOverOnUpgrade() {
	cus := s.customerWithCard("upgrade@example.com")
	s.subscribe(cus, "standard_plan", map[string]any{"collaborator_seats": float64(6)})

	cus, err := s.env.findSynced("upgrade@example.com")
	s.Require().NoError(err)
	result, err := s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("business_plan"), nil, nil, "", "")
	s.Require().NoError(err)
	s.Require().NotNil(result.Subscription)

	// 6 purchased seats under 2 included carry over as 3 under 5 included.
	update := s.env.gateway.LastSubscriptionUpdate
	s.Require().NotNil(update)
	s.Equal("always_invoice", *update.ProrationBehavior)
	s.Require().NotNil(update.BillingCycleAnchorNow)
	s.True(*update.BillingCycleAnchorNow)

	cus, err = s.env.findSynced("upgrade@example.com")
	s.Require().NoError(err)
	current, err := s.env.customers.GetCurrentPlan(s.env.ctx, cus)
	s.Require().NoError(err)
	s.Equal("business_plan", current.Name)
	s.Equal(int64(3), current.LineItem("collaborator_seats").PurchasedCount)
}

func (s *SubscriptionServiceSuite) TestAnchorKeptOnQuantityChange() {
	cus := s.customerWithCard("quantity@example.com")
	s.subscribe(cus, "standard_plan", map[string]any{"collaborator_seats": float64(6)})

	cus, err := s.env.findSynced("quantity@example.com")
	s.Require().NoError(err)
	s.subscribe(cus, "standard_plan", map[string]any{"collaborator_seats": float64(4)})

	update := s.env.gateway.LastSubscriptionUpdate
	s.Require().NotNil(update)
	s.Nil(update.BillingCycleAnchorNow)

	var quantities []int64
	for _, item := range update.Items {
		if item.Quantity != nil {
			quantities = append(quantities, *item.Quantity)
		}
	}
	s.Contains(quantities, int64(4))
}

func (s *SubscriptionServiceSuite) TestZeroedCapacityIsDeleted() {
	cus := s.customerWithCard("shrink@example.com")
	s.subscribe(cus, "standard_plan", map[string]any{"collaborator_seats": float64(3)})

	cus, err := s.env.findSynced("shrink@example.com")
	s.Require().NoError(err)
	current, err := s.env.customers.GetCurrentPlan(s.env.ctx, cus)
	s.Require().NoError(err)
	seatsItemID := current.LineItem("collaborator_seats").StripeData.SubscriptionItem.ID

	s.subscribe(cus, "standard_plan", map[string]any{"collaborator_seats": float64(0)})

	update := s.env.gateway.LastSubscriptionUpdate
	s.Require().NotNil(update)
	var deleted []string
	for _, item := range update.Items {
		if item.Deleted != nil && *item.Deleted {
			deleted = append(deleted, *item.ID)
		}
	}
	s.Equal([]string{seatsItemID}, deleted)
}

func (s *SubscriptionServiceSuite) TestOverLimitOnDowngradeToFree() {
	cus := s.customerWithCard("over@example.com")
	s.subscribe(cus, "business_plan", businessCounts(2))

	cus, err := s.env.findSynced("over@example.com")
	s.Require().NoError(err)
	err = s.env.subscriptions.Unsubscribe(s.env.ctx, cus, map[string]any{"collaborator_seats": float64(7)})
	s.Require().Error(err)
	s.EqualError(err, `existingLineItemCounts: You are over plan "free_plan" limits.`)
	s.True(ierr.IsOverLimit(err))
	s.Contains(strings.Join(cerrors.GetAllHints(err), "\n"), ` - "collaborator_seats" must be reduced from 7 to 2`)
	s.Equal(
		map[string]any{"collaborator_seats": limitViolation{Expected: float64(2), Actual: float64(7)}},
		ierr.ReportableDetails(err),
	)
	s.Nil(s.env.gateway.LastSubscriptionCancel)
}

func (s *SubscriptionServiceSuite) TestUnsubscribeCancelsWithProration() {
	cus := s.customerWithCard("leaver@example.com")
	s.subscribe(cus, "standard_plan", nil)

	cus, err := s.env.findSynced("leaver@example.com")
	s.Require().NoError(err)
	s.Require().NoError(s.env.subscriptions.Unsubscribe(s.env.ctx, cus, nil))

	cancel := s.env.gateway.LastSubscriptionCancel
	s.Require().NotNil(cancel)
	s.True(*cancel.InvoiceNow)
	s.True(*cancel.Prorate)
}

func (s *SubscriptionServiceSuite) TestUnsubscribeWithoutSubscription() {
	cus, err := s.env.findSynced("ghost@example.com")
	s.Require().NoError(err)

	s.Require().NoError(s.env.subscriptions.Unsubscribe(s.env.ctx, cus, nil))
	s.Nil(s.env.gateway.LastSubscriptionCancel)
}

func (s *SubscriptionServiceSuite) TestFlagViolationsBlockDowngrade() {
	cus := s.customerWithCard("flags@example.com")
	s.subscribe(cus, "business_plan", businessCounts(2))

	cus, err := s.env.findSynced("flags@example.com")
	s.Require().NoError(err)
	_, err = s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("standard_plan"),
		map[string]any{"collaborator_seats": float64(2)},
		map[string]any{"memory": float64(3000), "support": "priority"}, "", "")
	s.Require().Error(err)
	s.EqualError(err, `existingLineItemCounts: You are over plan "standard_plan" limits.`)
	s.True(ierr.IsOverLimit(err))

	hint := strings.Join(cerrors.GetAllHints(err), "\n")
	s.Contains(hint, ` - "memory" must be reduced from 3000 to 512`)
	s.Contains(hint, ` - "support" must be modified from priority to community`)
}

func (s *SubscriptionServiceSuite) TestViolationsIgnoredOnUpgrade() {
	cus := s.customerWithCard("upward@example.com")
	s.subscribe(cus, "standard_plan", map[string]any{"collaborator_seats": float64(2)})

	cus, err := s.env.findSynced("upward@example.com")
	s.Require().NoError(err)
	result, err := s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("business_plan"),
		businessCounts(2), map[string]any{"support": "enterprise"}, "", "")
	s.Require().NoError(err)
	s.NotNil(result.Subscription)
}

func (s *SubscriptionServiceSuite) TestExistingCountValidation() {
	cus := s.customerWithCard("existing@example.com")

	cases := []struct {
		name     string
		existing map[string]any
		message  string
	}{
		{
			name:     "unknown item",
			existing: map[string]any{"widgets": float64(1)},
			message:  `existingLineItemCounts: Invalid line item "widgets"`,
		},
		{
			name:     "flag expects a number",
			existing: map[string]any{"memory": "lots"},
			message:  `existingLineItemCounts: Line item "memory" (flag) expects a number`,
		},
		{
			name:     "capacity expects a number",
			existing: map[string]any{"projects": true},
			message:  `existingLineItemCounts: Line item "projects" (capacity) expects a number`,
		},
		{
			name:     "usage item rejected",
			existing: map[string]any{"execution_time": float64(5)},
			message:  `existingLineItemCounts: Can not provide value for line item "execution_time", must be type "capacity" or "flag"`,
		},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("business_plan"),
				businessCounts(1), tc.existing, "", "")
			s.Require().Error(err)
			s.EqualError(err, tc.message)
			s.True(ierr.IsValidation(err))
		})
	}
}

func (s *SubscriptionServiceSuite) TestCapacityOverTargetPurchase() {
	cus := s.customerWithCard("tight@example.com")

	counts := businessCounts(1)
	counts["hostnames"] = float64(2)
	_, err := s.env.subscriptions.Subscribe(s.env.ctx, cus, stripe.String("business_plan"),
		counts, map[string]any{"hostnames": float64(5)}, "", "")
	s.Require().Error(err)
	s.True(ierr.IsOverLimit(err))
	s.Contains(strings.Join(cerrors.GetAllHints(err), "\n"), ` - "hostnames" must be reduced from 5 to 2`)
}
