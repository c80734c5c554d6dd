package firoam

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/RaikyD/esim-fulfillment-service/internal/domain"
)

// Code is a vendor status code. The API returns it as a JSON number or a
// string depending on the endpoint, so both are accepted.
type Code string

func (c *Code) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	s = strings.Trim(s, `"`)
	*c = Code(s)
	return nil
}

func (c Code) OK() bool {
	return string(c) == "0"
}

// Str decodes JSON strings and bare numbers alike; vendor payloads mix both
// for ids.
type Str string

func (s *Str) UnmarshalJSON(b []byte) error {
	v := strings.TrimSpace(string(b))
	v = strings.Trim(v, `"`)
	if v == "null" {
		v = ""
	}
	*s = Str(v)
	return nil
}

// Response — общий конверт ответа вендора. Успех — code == 0.
type Response struct {
	Code Code            `json:"code"`
	Msg  string          `json:"msg"`
	Desc string          `json:"message"`
	Data json.RawMessage `json:"data"`
}

func (r *Response) OK() bool {
	return r.Code.OK()
}

func (r *Response) Message() string {
	if r.Msg != "" {
		return r.Msg
	}
	return r.Desc
}

// OrderResult is what PlaceOrder hands back. Business rejections come through
// with Success=false and a nil error; a placed order with an unusable card
// payload has Success=true and Canonical=nil — partial success stays visible.
type OrderResult struct {
	Raw               *Response
	Success           bool
	Code              Code
	Message           string
	VendorReferenceID string
	Canonical         *domain.CanonicalEsimPayload
	AttemptID         uuid.UUID
}

type CancelResult struct {
	Raw     *Response
	Success bool
	Code    Code
	Message string
}

type Sku struct {
	SkuID    Str         `json:"skuId"`
	Name     string      `json:"name"`
	Region   string      `json:"region"`
	Currency string      `json:"currency"`
	Price    json.Number `json:"price"`
}

type SkusResult struct {
	Raw     *Response
	Success bool
	Message string
	Skus    []Sku
}

type Package struct {
	PackageID Str         `json:"packageId"`
	SkuID     Str         `json:"skuId"`
	Name      string      `json:"name"`
	Days      json.Number `json:"days"`
	FlowSize  json.Number `json:"flowSize"`
	Price     json.Number `json:"price"`
}

type PackagesResult struct {
	Raw      *Response
	Success  bool
	Message  string
	Packages []Package
}
