package firoam

import (
	"errors"
	"fmt"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/RaikyD/esim-fulfillment-service/internal/domain"
)

// Вендор за годы накопил три имени для списка карт и четыре для LPA-строки.
// Порядок ниже — приоритет разрешения, от нового к легаси.
var (
	cardListKeys   = []string{"cardApiDtoList", "cards", "cardList"}
	lpaKeys        = []string{"code", "lpa", "lpaString", "sm_dp_address"}
	activationKeys = []string{"activationCode", "activation_code"}
	iccidKeys      = []string{"iccid", "mobileNumber"}
)

var ErrNoCards = errors.New("firoam: no card list in order detail")

// extractCards resolves the card-list union; returns false when the detail
// object carries none of the known list fields.
func extractCards(detail map[string]any) ([]any, bool) {
	for _, k := range cardListKeys {
		if v, ok := detail[k]; ok {
			if list, ok := v.([]any); ok {
				return list, true
			}
		}
	}
	return nil, false
}

// NormalizeDetail turns a raw order-detail object into the canonical payload.
// Only the first card is taken: one line item maps to one profile.
func NormalizeDetail(orderNum string, detail map[string]any) (*domain.CanonicalEsimPayload, error) {
	cards, ok := extractCards(detail)
	if !ok || len(cards) == 0 {
		return nil, ErrNoCards
	}
	card, ok := cards[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("firoam: card entry is not an object: %T", cards[0])
	}
	return normalizeCard(orderNum, card)
}

func normalizeCard(orderNum string, card map[string]any) (*domain.CanonicalEsimPayload, error) {
	p := &domain.CanonicalEsimPayload{
		VendorID:       orderNum,
		LPA:            firstString(card, lpaKeys),
		ActivationCode: firstString(card, activationKeys),
		ICCID:          firstString(card, iccidKeys),
	}
	if err := validatePayload(p); err != nil {
		return nil, err
	}
	return p, nil
}

func validatePayload(p *domain.CanonicalEsimPayload) error {
	return validation.ValidateStruct(p,
		validation.Field(&p.VendorID, validation.Required),
		validation.Field(&p.LPA,
			validation.Required.When(p.ActivationCode == "").
				Error("either lpa or activationCode must be present")),
	)
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s := asString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// json decodes bare numbers as float64; iccid иногда приходит числом
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
