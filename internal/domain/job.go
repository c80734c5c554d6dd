package domain

import "github.com/google/uuid"

// Job — единица работы в очереди. Создаётся шлюзом вебхуков, читается
// воркером; после успешной обработки сообщение коммитится.
type Job struct {
	DeliveryID    uuid.UUID    `json:"delivery_id"`
	OrderID       string       `json:"order_id"`
	LineItemID    string       `json:"line_item_id"`
	VariantID     string       `json:"variant_id"`
	Shop          string       `json:"shop"`
	CustomerEmail string       `json:"customer_email"`
	ProductName   string       `json:"product_name,omitempty"`
	OrderPayload  OrderPayload `json:"order_payload"`
}
