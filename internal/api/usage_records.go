package api

import (
	"context"

	"github.com/instpay/instpay/internal/service"
)

// UsageRecords reports metered usage.
type UsageRecords struct {
	customers service.CustomerService
	usage     service.UsageService
}

// Create records usage for a metered line item. quantity is scaled by
// 10^log10Scale * 2^log2Scale; fractional units roll over to the next call.
func (u *UsageRecords) Create(ctx context.Context, email, lineItemName string, quantity float64, log10Scale, log2Scale int) (*service.UsageRecordResult, error) {
	cus, err := findCustomer(ctx, u.customers, email)
	if err != nil {
		return nil, err
	}
	return u.usage.CreateUsageRecord(ctx, cus, lineItemName, quantity, log10Scale, log2Scale)
}
