package domain

// OrderPaidNotification is the storefront "order paid" webhook body. Only the
// fields the pipeline needs are decoded; everything else is ignored.
type OrderPaidNotification struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	OrderNumber int64          `json:"order_number"`
	LineItems   []LineItemData `json:"line_items"`
}

type LineItemData struct {
	ID        int64  `json:"id"`
	VariantID int64  `json:"variant_id"`
	Sku       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	Title     string `json:"title"`
}
