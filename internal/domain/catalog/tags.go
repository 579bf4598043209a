package catalog

import (
	"github.com/instpay/instpay/internal/types"
)

// ProductIdentity is the declarative identity of a billing provider product:
// the metadata tags that locate it remotely and the display fields it must
// carry. Two products with the same tags are the same managed product.
type ProductIdentity struct {
	DisplayName string
	Tags        types.Metadata
}

// ProductTags builds the metadata that marks a provider product as managed
// by this system and identifies which catalog entity it represents.
func ProductTags(productType types.ProductType, name string) types.Metadata {
	return types.Metadata{
		types.MetadataKeyManaged:     "true",
		types.MetadataKeyProductType: string(productType),
		types.MetadataKeyName:        name,
	}
}

// PlanIdentity returns the provider product identity for a plan.
func PlanIdentity(plan *Plan) ProductIdentity {
	return ProductIdentity{
		DisplayName: "Plan: " + plan.DisplayName,
		Tags:        ProductTags(types.PRODUCT_TYPE_PLAN, plan.Name),
	}
}

// LineItemIdentity returns the provider product identity for a line item.
// Line items share one product across plans; per-plan customization happens
// at the price level.
func LineItemIdentity(item *LineItem) ProductIdentity {
	return ProductIdentity{
		DisplayName: item.DisplayName,
		Tags:        ProductTags(types.PRODUCT_TYPE_LINE_ITEM, item.Name),
	}
}

// PriceTags builds the metadata carried by a provider price. planScope is
// the plan name for customized prices or "*" for template prices shared by
// every plan that keeps the line item's base settings.
func PriceTags(productType types.ProductType, name, planScope string) types.Metadata {
	tags := ProductTags(productType, name)
	if productType == types.PRODUCT_TYPE_LINE_ITEM {
		tags[types.MetadataKeyLineItemPlan] = planScope
	}
	return tags
}

// PlanScope returns the plan component of a line item price scope.
func (l *PlanLineItem) PlanScope() string {
	if l.IsTemplate {
		return "*"
	}
	return l.PlanName
}
