package service

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/domain/customer"
	"github.com/instpay/instpay/internal/domain/usage"
	ierr "github.com/instpay/instpay/internal/errors"
	"github.com/instpay/instpay/internal/types"
)

// UsageRecordWaitTime is the minimum interval between usage reports for one
// line item. The remainder secret is not transactional, so rapid writes
// could double count; callers are expected to batch.
const UsageRecordWaitTime = 10 * time.Second

// UsageRecordResult reports what a usage submission did: the record parsed
// from the request, the remainder rolled over from the previous submission,
// their merge, and the provider usage record when whole units were reported.
type UsageRecordResult struct {
	NewRecord      usage.Record        `json:"newRecord"`
	RolloverRecord usage.Record        `json:"rolloverRecord"`
	MergedRecord   usage.Record        `json:"mergedRecord"`
	UsageRecord    *stripe.UsageRecord `json:"usageRecord,omitempty"`
}

// UsageService reports metered usage against a customer's subscription.
// Fractional quantities accumulate in a per-customer secret until they add
// up to whole units.
type UsageService interface {
	CreateUsageRecord(ctx context.Context, cus *customer.Customer, lineItemName string, quantity float64, log10Scale, log2Scale int) (*UsageRecordResult, error)
}

type usageService struct {
	ServiceParams
	customers CustomerService
	secrets   SecretService
	now       func() time.Time
}

func NewUsageService(params ServiceParams, customers CustomerService, secrets SecretService) UsageService {
	return &usageService{
		ServiceParams: params,
		customers:     customers,
		secrets:       secrets,
		now:           time.Now,
	}
}

// usageState is the persisted accumulator: the time of the last submission
// in epoch milliseconds and the fractional remainder it left behind.
type usageState struct {
	Time      int64           `json:"time"`
	Remainder usage.Remainder `json:"remainder"`
}

func (s *usageService) CreateUsageRecord(ctx context.Context, cus *customer.Customer, lineItemName string, quantity float64, log10Scale, log2Scale int) (*UsageRecordResult, error) {
	plan, err := s.customers.GetCurrentPlan(ctx, cus)
	if err != nil {
		return nil, err
	}

	state := usageState{Remainder: usage.Calculate(0, 0, 0).Remainder}
	if _, err := s.secrets.Get(ctx, cus, types.UsageRemainderSecretName(lineItemName), &state); err != nil {
		return nil, err
	}

	lineItem := plan.LineItem(lineItemName)
	switch {
	case lineItem == nil:
		return nil, ierr.NewErrorf("createUsageRecord: Line item %q could not be found", lineItemName).
			Mark(ierr.ErrNotFound)
	case lineItem.Type != types.LINE_ITEM_TYPE_USAGE:
		return nil, ierr.NewErrorf("createUsageRecord: Line item %q is of type %q, but must be of type %q", lineItemName, lineItem.Type, types.LINE_ITEM_TYPE_USAGE).
			Mark(ierr.ErrValidation)
	case lineItem.StripeData == nil:
		return nil, ierr.NewErrorf("createUsageRecord: Line item %q has no matching billing data", lineItemName).
			Mark(ierr.ErrSystem)
	case lineItem.StripeData.SubscriptionItem == nil:
		return nil, ierr.NewErrorf("createUsageRecord: Line item %q has no matching subscription data", lineItemName).
			Mark(ierr.ErrInvalidOperation)
	}

	delta := s.now().UnixMilli() - state.Time
	if delta < UsageRecordWaitTime.Milliseconds() {
		return nil, ierr.NewErrorf(
			"createUsageRecord: Line item %q can only be updated every %d ms. Please try again in %d ms.",
			lineItemName, UsageRecordWaitTime.Milliseconds(), UsageRecordWaitTime.Milliseconds()-delta,
		).Mark(ierr.ErrTooFrequent)
	}

	newRecord := usage.Calculate(quantity, log10Scale, log2Scale)
	rollover := usage.Record{Remainder: state.Remainder}
	merged := usage.Add(newRecord, rollover)

	var usageRecord *stripe.UsageRecord
	if merged.Units != 0 {
		usageRecord, err = s.Gateway.CreateUsageRecord(ctx, &stripe.UsageRecordParams{
			SubscriptionItem: stripe.String(lineItem.StripeData.SubscriptionItem.ID),
			Quantity:         stripe.Int64(merged.Units),
		})
		if err != nil {
			return nil, err
		}
	}

	err = s.secrets.Set(ctx, cus, types.UsageRemainderSecretName(lineItemName), usageState{
		Time:      s.now().UnixMilli(),
		Remainder: merged.Remainder,
	})
	if err != nil {
		return nil, err
	}

	return &UsageRecordResult{
		NewRecord:      newRecord,
		RolloverRecord: rollover,
		MergedRecord:   merged,
		UsageRecord:    usageRecord,
	}, nil
}
