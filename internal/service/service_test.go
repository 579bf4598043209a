package service

import (
	"context"

	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/bootstrap"
	"github.com/instpay/instpay/internal/domain/customer"
	"github.com/instpay/instpay/internal/logger"
	"github.com/instpay/instpay/internal/testutil"
)

// testEnv wires the services against an in-memory gateway seeded with the
// fixture catalog, bootstrapped so every plan carries provider products and
// prices.
type testEnv struct {
	ctx           context.Context
	gateway       *testutil.InMemoryGateway
	params        ServiceParams
	customers     CustomerService
	secrets       SecretService
	subscriptions SubscriptionService
}

func newTestEnv() (*testEnv, error) {
	ctx := context.Background()
	gateway := testutil.NewInMemoryGateway()
	log := logger.NewNopLogger()
	plans, err := bootstrap.NewBootstrapper(gateway, log).Run(ctx, testutil.FixtureCatalog())
	if err != nil {
		return nil, err
	}
	params := ServiceParams{
		Logger:  log,
		Gateway: gateway,
		Plans:   plans,
	}
	customers := NewCustomerService(params)
	return &testEnv{
		ctx:           ctx,
		gateway:       gateway,
		params:        params,
		customers:     customers,
		secrets:       NewSecretService(params),
		subscriptions: NewSubscriptionService(params, customers),
	}, nil
}

// findSynced resolves a customer and ensures its provider record exists.
func (e *testEnv) findSynced(email string) (*customer.Customer, error) {
	cus, err := e.customers.Find(e.ctx, email)
	if err != nil {
		return nil, err
	}
	if err := e.customers.EnsureSynced(e.ctx, cus); err != nil {
		return nil, err
	}
	return cus, nil
}

// seedCard attaches a card to the customer's provider record.
func (e *testEnv) seedCard(cus *customer.Customer, id string) *stripe.PaymentMethod {
	return e.gateway.SeedPaymentMethod(&stripe.PaymentMethod{
		ID:       id,
		Customer: &stripe.Customer{ID: cus.StripeID},
		Metadata: map[string]string{"is_default_method": "true"},
	})
}
