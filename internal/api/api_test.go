package api_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/api"
	"github.com/instpay/instpay/internal/bootstrap"
	"github.com/instpay/instpay/internal/config"
	ierr "github.com/instpay/instpay/internal/errors"
	"github.com/instpay/instpay/internal/logger"
	"github.com/instpay/instpay/internal/service"
	"github.com/instpay/instpay/internal/testutil"
)

type APISuite struct {
	suite.Suite
	ctx     context.Context
	gateway *testutil.InMemoryGateway
	api     *api.API
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	s.ctx = context.Background()
	s.gateway = testutil.NewInMemoryGateway()
	log := logger.NewNopLogger()
	plans, err := bootstrap.NewBootstrapper(s.gateway, log).Run(s.ctx, testutil.FixtureCatalog())
	s.Require().NoError(err)
	s.api = api.New(service.ServiceParams{
		Logger: log,
		Config: &config.Configuration{
			Stripe: config.StripeConfig{
				SecretKey:      "sk_test_123",
				PublishableKey: "pk_test_123",
			},
		},
		Gateway: s.gateway,
		Plans:   plans,
	})
}

// seedCard attaches a default card to the customer's provider record.
func (s *APISuite) seedCard(email, id string) {
	result, err := s.api.Customers.Find(s.ctx, email)
	s.Require().NoError(err)
	s.gateway.SeedPaymentMethod(&stripe.PaymentMethod{
		ID:       id,
		Customer: result.StripeData.Customer,
		Metadata: map[string]string{"is_default_method": "true"},
	})
}

func (s *APISuite) TestFindCreatesCustomer() {
	result, err := s.api.Customers.Find(s.ctx, "ada@example.com")
	s.Require().NoError(err)
	s.Equal("ada@example.com", result.Email)
	s.Require().NotNil(result.StripeData.Customer)
	s.Equal("ada@example.com", result.StripeData.Customer.Email)
}

func (s *APISuite) TestSubscribeCarriesPublishKey() {
	s.seedCard("sub@example.com", "pm_sub")

	result, err := s.api.Customers.Subscribe(s.ctx, "sub@example.com", stripe.String("standard_plan"),
		map[string]any{"collaborator_seats": float64(3)}, nil, "", "")
	s.Require().NoError(err)
	s.Equal("pk_test_123", result.StripePublishKey)
	s.Empty(result.StripeCheckoutSessionID)
	s.Require().NotNil(result.Subscription)
}

func (s *APISuite) TestSubscribeDefersToCheckoutWithoutCard() {
	result, err := s.api.Customers.Subscribe(s.ctx, "card-less@example.com", stripe.String("standard_plan"),
		map[string]any{"collaborator_seats": float64(2)},
		nil, "https://app.example.com/done", "https://app.example.com/cancel")
	s.Require().NoError(err)
	s.NotEmpty(result.StripeCheckoutSessionID)
	s.Nil(result.Subscription)
}

func (s *APISuite) TestUnsubscribe() {
	s.seedCard("drop@example.com", "pm_drop")
	_, err := s.api.Customers.Subscribe(s.ctx, "drop@example.com", stripe.String("standard_plan"),
		map[string]any{"collaborator_seats": float64(2)}, nil, "", "")
	s.Require().NoError(err)

	ok, err := s.api.Customers.Unsubscribe(s.ctx, "drop@example.com", nil)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *APISuite) TestPlansList() {
	plans := s.api.Plans.List(s.ctx)
	s.Require().Len(plans, 3)
	s.Equal("free_plan", plans[0].Name)
}

func (s *APISuite) TestCurrentPlanDefaultsToFree() {
	result, err := s.api.Plans.Current(s.ctx, "fresh@example.com")
	s.Require().NoError(err)
	s.Require().NotNil(result.CurrentPlan)
	s.Equal("free_plan", result.CurrentPlan.Name)
	s.False(result.CurrentPlan.IsBillable)
	s.Len(result.Plans, 3)
}

func (s *APISuite) TestBillingStatusWithoutSubscription() {
	result, err := s.api.Plans.BillingStatus(s.ctx, "idle@example.com")
	s.Require().NoError(err)
	s.False(result.CurrentPlan.IsBillable)
	s.False(result.CurrentPlan.IsIncomplete)
	s.False(result.CurrentPlan.IsPastDue)
	s.Nil(result.CurrentPlan.InvoiceURL)
}

func (s *APISuite) TestBillingStatusWithSubscription() {
	s.seedCard("billable@example.com", "pm_billable")
	_, err := s.api.Customers.Subscribe(s.ctx, "billable@example.com", stripe.String("standard_plan"),
		map[string]any{"collaborator_seats": float64(2)}, nil, "", "")
	s.Require().NoError(err)

	result, err := s.api.Plans.BillingStatus(s.ctx, "billable@example.com")
	s.Require().NoError(err)
	s.True(result.CurrentPlan.IsBillable)
	s.False(result.CurrentPlan.IsPastDue)
}

func (s *APISuite) TestPaymentMethodSessionCarriesPublishKey() {
	result, err := s.api.PaymentMethods.Create(s.ctx, "cardless@example.com",
		"https://app.example.com/done", "https://app.example.com/cancel")
	s.Require().NoError(err)
	s.Equal("pk_test_123", result.StripePublishKey)
	s.NotEmpty(result.StripeCheckoutSessionID)
}

func (s *APISuite) TestPaymentMethodsSanitized() {
	s.seedCard("cards@example.com", "pm_cards")

	methods, err := s.api.PaymentMethods.List(s.ctx, "cards@example.com")
	s.Require().NoError(err)
	s.Require().Len(methods, 1)
	s.Equal("pm_cards", methods[0].ID)
	s.Equal("true", methods[0].Metadata["is_default_method"])
}

func (s *APISuite) TestUpcomingInvoiceWithoutSubscription() {
	invoice, err := s.api.Invoices.Upcoming(s.ctx, "noinvoice@example.com")
	s.Require().NoError(err)
	s.Nil(invoice)
}

func (s *APISuite) TestUsageRecordCreate() {
	s.seedCard("metered@example.com", "pm_metered")
	_, err := s.api.Customers.Subscribe(s.ctx, "metered@example.com", stripe.String("standard_plan"),
		map[string]any{"collaborator_seats": float64(2)}, nil, "", "")
	s.Require().NoError(err)

	result, err := s.api.UsageRecords.Create(s.ctx, "metered@example.com", "execution_time", 1536, 0, -10)
	s.Require().NoError(err)
	s.Equal(int64(1), result.MergedRecord.Units)
	s.Require().NotNil(result.UsageRecord)
}

func (s *APISuite) TestErrorPayloadInvalidPlan() {
	_, err := s.api.Customers.Subscribe(s.ctx, "typo@example.com", stripe.String("mega_plan"), nil, nil, "", "")
	s.Require().Error(err)

	status, payload := api.ErrorPayload(err)
	s.Equal(http.StatusBadRequest, status)
	s.False(payload.Success)
	s.Contains(payload.Error.Display, `Valid plans are: "free_plan", "standard_plan", "business_plan"`)
	s.Contains(payload.Error.InternalError, `Invalid plan: "mega_plan"`)
}

func (s *APISuite) TestErrorPayloadOverLimit() {
	s.seedCard("crowded@example.com", "pm_crowded")
	_, err := s.api.Customers.Subscribe(s.ctx, "crowded@example.com", stripe.String("standard_plan"),
		map[string]any{"collaborator_seats": float64(7)}, nil, "", "")
	s.Require().NoError(err)

	_, err = s.api.Customers.Unsubscribe(s.ctx, "crowded@example.com",
		map[string]any{"collaborator_seats": float64(7)})
	s.Require().Error(err)
	s.Require().True(ierr.Is(err, ierr.ErrOverLimit))

	status, payload := api.ErrorPayload(err)
	s.Equal(http.StatusConflict, status)
	s.Contains(payload.Error.Display, `"collaborator_seats" must be reduced from 7 to 2`)
	s.Contains(payload.Error.Details, "collaborator_seats")
}

func (s *APISuite) TestErrorPayloadUnknownPaymentMethod() {
	_, err := s.api.PaymentMethods.SetDefault(s.ctx, "ghost@example.com", "pm_missing")
	s.Require().Error(err)

	status, _ := api.ErrorPayload(err)
	s.Equal(http.StatusNotFound, status)
}
