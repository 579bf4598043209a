package api

import (
	"context"

	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/service"
)

// defaultInvoiceCount caps the invoice listing when the caller does not
// specify one.
const defaultInvoiceCount = 10

// Invoices lists finalized and upcoming invoices.
type Invoices struct {
	customers service.CustomerService
}

// List returns the customer's finalized invoices, newest first.
func (i *Invoices) List(ctx context.Context, email string) ([]*stripe.Invoice, error) {
	cus, err := findCustomer(ctx, i.customers, email)
	if err != nil {
		return nil, err
	}
	return i.customers.ListInvoices(ctx, cus, defaultInvoiceCount)
}

// Upcoming previews the customer's next invoice, or nil without a
// subscription.
func (i *Invoices) Upcoming(ctx context.Context, email string) (*stripe.Invoice, error) {
	cus, err := findCustomer(ctx, i.customers, email)
	if err != nil {
		return nil, err
	}
	return i.customers.UpcomingInvoice(ctx, cus)
}
