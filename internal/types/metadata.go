package types

import "fmt"

// Metadata represents string key-value pairs attached to remote billing records
type Metadata map[string]string

// MetadataPrefix namespaces every metadata key and secret this system owns
// on the billing provider. Records without these tags are never touched.
const MetadataPrefix = "instpay"

// Metadata keys used to tag remote products, prices and customers
const (
	MetadataKeyManaged      = MetadataPrefix
	MetadataKeyProductType  = MetadataPrefix + "_product_type"
	MetadataKeyName         = MetadataPrefix + "_name"
	MetadataKeyLineItemPlan = MetadataPrefix + "_line_item_plan"
)

// SecretName builds the namespaced name for a per-customer secret
func SecretName(name string) string {
	return fmt.Sprintf("%s_secret:%s", MetadataPrefix, name)
}

// UsageRemainderSecretName builds the secret name persisting the usage
// accumulator state for one line item
func UsageRemainderSecretName(lineItemName string) string {
	return fmt.Sprintf("%s_usage_remainder:%s", MetadataPrefix, lineItemName)
}

// Matches reports whether every key-value pair in m is present in other.
// Extra keys in other are ignored; an exact tag-set subset match is the
// identity test for managed remote records.
func (m Metadata) Matches(other map[string]string) bool {
	for key, value := range m {
		if other[key] != value {
			return false
		}
	}
	return true
}

// Clone returns a copy of the metadata map
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns a new map with entries of other overriding entries of m
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
