// Package api is the public surface of the payments system: five façades
// mirroring the hosted API namespaces. Each call resolves the customer by
// email and delegates to the service layer.
package api

import (
	"context"

	"github.com/instpay/instpay/internal/domain/customer"
	"github.com/instpay/instpay/internal/service"
)

// API bundles the façade surfaces over one shared service graph.
type API struct {
	Customers      *Customers
	Plans          *Plans
	PaymentMethods *PaymentMethods
	Invoices       *Invoices
	UsageRecords   *UsageRecords
}

func New(params service.ServiceParams) *API {
	customers := service.NewCustomerService(params)
	secrets := service.NewSecretService(params)
	subscriptions := service.NewSubscriptionService(params, customers)
	usageRecords := service.NewUsageService(params, customers, secrets)

	return &API{
		Customers: &Customers{
			params:        params,
			customers:     customers,
			subscriptions: subscriptions,
		},
		Plans:          &Plans{params: params, customers: customers},
		PaymentMethods: &PaymentMethods{params: params, customers: customers},
		Invoices:       &Invoices{customers: customers},
		UsageRecords:   &UsageRecords{customers: customers, usage: usageRecords},
	}
}

// findCustomer resolves the customer by email and pushes local state to the
// provider, creating the remote record on first contact.
func findCustomer(ctx context.Context, customers service.CustomerService, email string) (*customer.Customer, error) {
	cus, err := customers.Find(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := customers.Sync(ctx, cus); err != nil {
		return nil, err
	}
	return cus, nil
}
