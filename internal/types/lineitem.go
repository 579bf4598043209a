package types

// LineItemType discriminates the settings shape of a line item
type LineItemType string

const (
	// LINE_ITEM_TYPE_CAPACITY is a purchasable quantity with a free included allotment
	LINE_ITEM_TYPE_CAPACITY LineItemType = "capacity"
	// LINE_ITEM_TYPE_USAGE is metered, tiered billing accumulated between reports
	LINE_ITEM_TYPE_USAGE LineItemType = "usage"
	// LINE_ITEM_TYPE_FLAG is a non-billed feature limit or toggle
	LINE_ITEM_TYPE_FLAG LineItemType = "flag"
)

// Validate checks the line item type is one of the known values
func (t LineItemType) Validate() bool {
	switch t {
	case LINE_ITEM_TYPE_CAPACITY, LINE_ITEM_TYPE_USAGE, LINE_ITEM_TYPE_FLAG:
		return true
	}
	return false
}

// ProductType tags a remote product as backing either a plan or a line item
type ProductType string

const (
	PRODUCT_TYPE_PLAN      ProductType = "plan"
	PRODUCT_TYPE_LINE_ITEM ProductType = "line_item"
)
