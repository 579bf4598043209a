package customer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/types"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("ada@example.com"))

	err := ValidateEmail("")
	require.Error(t, err)
	assert.EqualError(t, err, `Customer "email" must be non-empty`)

	err = ValidateEmail("not-an-address")
	require.Error(t, err)
	assert.EqualError(t, err, `Customer "email" must be valid`)
}

func TestDecodeDetails(t *testing.T) {
	details, err := DecodeDetails(map[string]json.RawMessage{
		"name":  json.RawMessage(`"Ada"`),
		"phone": json.RawMessage(`"+31 6 12345678"`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", details.Name)
	assert.Equal(t, "+31 6 12345678", details.Phone)
	assert.Nil(t, details.Shipping)
}

func TestDecodeDetailsRejectsUnknownKeys(t *testing.T) {
	_, err := DecodeDetails(map[string]json.RawMessage{
		"name":     json.RawMessage(`"Ada"`),
		"nickname": json.RawMessage(`"ada"`),
		"balance":  json.RawMessage(`100`),
	})
	require.Error(t, err)
	assert.EqualError(t, err, `updateStripeDetails disallowed properties: ["balance" "nickname"]`)
}

func TestSerializeMetadataTagsRecord(t *testing.T) {
	cus, err := New("ada@example.com")
	require.NoError(t, err)

	metadata := cus.SerializeMetadata()
	assert.Equal(t, "true", metadata[types.MetadataKeyManaged])

	// The serialized copy never leaks back into the customer.
	metadata["extra"] = "x"
	assert.Empty(t, cus.Metadata["extra"])
}

func TestExtRoundTrip(t *testing.T) {
	cus, err := New("ada@example.com")
	require.NoError(t, err)

	require.Error(t, cus.SetExt("team", nil))

	require.NoError(t, cus.SetExt("team", map[string]string{"id": "t_42"}))
	var stored map[string]string
	found, err := cus.Ext("team", &stored)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "t_42", stored["id"])

	cus.ClearExt("team")
	found, err = cus.Ext("team", &stored)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestApplyRemote(t *testing.T) {
	cus, err := New("ada@example.com")
	require.NoError(t, err)
	assert.False(t, cus.Synced())

	cus.ApplyRemote(&stripe.Customer{
		ID:       "cus_1",
		Metadata: map[string]string{types.MetadataKeyManaged: "true", "ext:team": `{"id":"t_42"}`},
	})
	assert.True(t, cus.Synced())
	assert.Equal(t, "cus_1", cus.StripeID)
	var team map[string]string
	found, err := cus.Ext("team", &team)
	require.NoError(t, err)
	assert.True(t, found)

	cus.ApplyRemote(nil)
	assert.False(t, cus.Synced())
	assert.Empty(t, cus.Metadata)
}
