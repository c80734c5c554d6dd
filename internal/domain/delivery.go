package domain

import (
	"github.com/google/uuid"
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending      DeliveryStatus = "pending"
	DeliveryProvisioning DeliveryStatus = "provisioning"
	DeliveryDelivered    DeliveryStatus = "delivered"
	DeliveryFailed       DeliveryStatus = "failed"
)

// Delivery — одна строка на пару (order, line item). Ключ идемпотентности —
// (OrderID, LineItemID), в БД на него уникальный индекс.
type Delivery struct {
	ID                uuid.UUID      `json:"id"`
	OrderID           string         `json:"order_id"`
	LineItemID        string         `json:"line_item_id"`
	VariantID         string         `json:"variant_id"`
	Status            DeliveryStatus `json:"status"`
	VendorReferenceID string         `json:"vendor_reference_id,omitempty"`
	PayloadEncrypted  string         `json:"-"`
	LastError         string         `json:"last_error,omitempty"`
	CustomerEmail     string         `json:"customer_email"`
	Shop              string         `json:"shop"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type AttemptStatus string

const (
	AttemptCreated        AttemptStatus = "created"
	AttemptInvalidPayload AttemptStatus = "invalid_payload"
)

// VendorOrderAttempt is an append-only audit record, one per vendor order
// response. It is never mutated after insert, even when the payload turned
// out to be unusable.
type VendorOrderAttempt struct {
	ID                uuid.UUID
	VendorReferenceID string
	PayloadJSON       string
	PayloadEncrypted  string
	Status            AttemptStatus
	LastError         string
	CreatedAt         time.Time
}

// SkuMapping связывает SKU витрины с продуктом вендора. Таблица read-only,
// наполняется внешним тулингом.
type SkuMapping struct {
	Sku         string
	Provider    string
	ProviderSku string
	PackageType string
	DaysCount   int
}
