package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/domain/customer"
	ierr "github.com/instpay/instpay/internal/errors"
	"github.com/instpay/instpay/internal/types"
)

// SecretService stores JSON values on the billing provider's secret store,
// scoped per customer. It is the system's only persistence besides the
// billing objects themselves.
type SecretService interface {
	Get(ctx context.Context, cus *customer.Customer, name string, out any) (bool, error)
	Set(ctx context.Context, cus *customer.Customer, name string, value any) error
	Clear(ctx context.Context, cus *customer.Customer, name string) error
}

type secretService struct {
	ServiceParams
}

func NewSecretService(params ServiceParams) SecretService {
	return &secretService{ServiceParams: params}
}

func secretScope(cus *customer.Customer) *stripe.AppsSecretScopeParams {
	return &stripe.AppsSecretScopeParams{
		Type: stripe.String(string(stripe.AppsSecretScopeTypeUser)),
		User: stripe.String(fmt.Sprintf("stripe:%s", cus.StripeID)),
	}
}

// Get reads a secret into out, reporting whether it exists.
func (s *secretService) Get(ctx context.Context, cus *customer.Customer, name string, out any) (bool, error) {
	params := &stripe.AppsSecretFindParams{
		Name:  stripe.String(types.SecretName(name)),
		Scope: (*stripe.AppsSecretFindScopeParams)(secretScope(cus)),
	}
	params.AddExpand("payload")
	secret, err := s.Gateway.FindSecret(ctx, params)
	if err != nil {
		if isSecretMissing(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(secret.Payload), out); err != nil {
		return false, ierr.WithError(err).
			WithHintf("stored secret %q is not valid JSON", name).
			Mark(ierr.ErrSystem)
	}
	return true, nil
}

func (s *secretService) Set(ctx context.Context, cus *customer.Customer, name string, value any) error {
	if value == nil {
		return ierr.NewError("Cannot setStripeSecret to null, try clearStripeSecret instead").
			Mark(ierr.ErrValidation)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("secret %q is not serializable", name).
			Mark(ierr.ErrValidation)
	}
	_, err = s.Gateway.CreateSecret(ctx, &stripe.AppsSecretParams{
		Name:    stripe.String(types.SecretName(name)),
		Scope:   secretScope(cus),
		Payload: stripe.String(string(payload)),
	})
	return err
}

func (s *secretService) Clear(ctx context.Context, cus *customer.Customer, name string) error {
	_, err := s.Gateway.DeleteSecretWhere(ctx, &stripe.AppsSecretDeleteWhereParams{
		Name:  stripe.String(types.SecretName(name)),
		Scope: (*stripe.AppsSecretDeleteWhereScopeParams)(secretScope(cus)),
	})
	return err
}

func isSecretMissing(err error) bool {
	var stripeErr *stripe.Error
	if ierr.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 404 || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
