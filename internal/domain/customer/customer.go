package customer

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/stripe/stripe-go/v76"

	ierr "github.com/instpay/instpay/internal/errors"
	"github.com/instpay/instpay/internal/types"
)

// extKeyPrefix namespaces caller-owned metadata values stored on the remote
// customer record, keeping them apart from the keys this system manages.
const extKeyPrefix = "ext:"

// Details are the writable profile fields synced to the billing provider.
// Any other customer attribute is owned by the provider.
type Details struct {
	Name        string                         `json:"name"`
	Description string                         `json:"description"`
	Phone       string                         `json:"phone"`
	Shipping    *stripe.CustomerShippingParams `json:"shipping,omitempty"`
}

// AllowedDetailKeys names the fields DecodeDetails accepts, in the order
// they are reported when rejecting unknown keys.
var AllowedDetailKeys = []string{"name", "description", "phone", "shipping"}

// DecodeDetails parses a loosely typed details payload, rejecting keys
// outside the allowed set so callers cannot overwrite provider-owned fields.
func DecodeDetails(data map[string]json.RawMessage) (Details, error) {
	allowed := make(map[string]bool, len(AllowedDetailKeys))
	for _, key := range AllowedDetailKeys {
		allowed[key] = true
	}
	var disallowed []string
	for key := range data {
		if !allowed[key] {
			disallowed = append(disallowed, key)
		}
	}
	if len(disallowed) > 0 {
		sort.Strings(disallowed)
		return Details{}, ierr.NewErrorf("updateStripeDetails disallowed properties: %q", disallowed).
			WithHintf("Only supports: %q", AllowedDetailKeys).
			Mark(ierr.ErrValidation)
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return Details{}, ierr.WithError(err).Mark(ierr.ErrValidation)
	}
	var details Details
	if err := json.Unmarshal(encoded, &details); err != nil {
		return Details{}, ierr.WithError(err).
			WithHint("Invalid customer details payload").
			Mark(ierr.ErrValidation)
	}
	return details, nil
}

// StripeData holds the remote objects resolved for the customer.
type StripeData struct {
	Customer     *stripe.Customer     `json:"customer,omitempty"`
	Subscription *stripe.Subscription `json:"subscription,omitempty"`
}

// Customer is the local view of a billing customer, keyed by email. The
// remote record is the source of truth; StripeID and Metadata hold the
// last synced state.
type Customer struct {
	Email    string
	StripeID string
	Details  Details
	Metadata types.Metadata
	Stripe   StripeData
}

// New validates the email and returns an unsynced customer.
func New(email string) (*Customer, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	return &Customer{
		Email:    email,
		Metadata: types.Metadata{},
	}, nil
}

// ValidateEmail enforces the minimal shape required to key a customer.
func ValidateEmail(email string) error {
	if email == "" {
		return ierr.NewError(`Customer "email" must be non-empty`).
			Mark(ierr.ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return ierr.NewError(`Customer "email" must be valid`).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SerializeMetadata returns the metadata written to the remote customer:
// the synced metadata plus the tag marking the record as managed.
func (c *Customer) SerializeMetadata() types.Metadata {
	out := c.Metadata.Clone()
	if out == nil {
		out = types.Metadata{}
	}
	out[types.MetadataKeyManaged] = "true"
	return out
}

// SetExt stores a caller-owned JSON value under a namespaced metadata key.
// The write becomes durable on the next sync to the provider.
func (c *Customer) SetExt(name string, value any) error {
	if value == nil {
		return ierr.NewError("Cannot set metadata to empty value").
			Mark(ierr.ErrValidation)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("metadata value for %q is not serializable", name).
			Mark(ierr.ErrValidation)
	}
	if c.Metadata == nil {
		c.Metadata = types.Metadata{}
	}
	c.Metadata[extKeyPrefix+name] = string(encoded)
	return nil
}

// ClearExt removes a caller-owned metadata value.
func (c *Customer) ClearExt(name string) {
	delete(c.Metadata, extKeyPrefix+name)
}

// Ext reads a caller-owned metadata value into out, reporting whether the
// key was present.
func (c *Customer) Ext(name string, out any) (bool, error) {
	raw, ok := c.Metadata[extKeyPrefix+name]
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, ierr.WithError(err).
			WithHintf("stored metadata for %q is not valid JSON", name).
			Mark(ierr.ErrSystem)
	}
	return true, nil
}

// ApplyRemote records the state of a synced remote customer.
func (c *Customer) ApplyRemote(remote *stripe.Customer) {
	if remote == nil {
		c.StripeID = ""
		c.Stripe.Customer = nil
		c.Stripe.Subscription = nil
		c.Metadata = types.Metadata{}
		return
	}
	c.StripeID = remote.ID
	c.Stripe.Customer = remote
	c.Metadata = types.Metadata{}
	for key, value := range remote.Metadata {
		c.Metadata[key] = value
	}
}

// Synced reports whether the customer is bound to a remote record.
func (c *Customer) Synced() bool {
	return c.StripeID != ""
}
