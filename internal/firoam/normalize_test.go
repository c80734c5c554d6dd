package firoam

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detailFromJSON(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

// Все три имени списка карт должны давать один и тот же канонический payload.
func TestNormalizeCardListAliases(t *testing.T) {
	for _, listKey := range []string{"cardApiDtoList", "cards", "cardList"} {
		detail := detailFromJSON(t, `{"orderNum":"R1","`+listKey+`":[{"lpa":"LPA:1$sm.example$X","iccid":"89860001"}]}`)

		p, err := NormalizeDetail("R1", detail)
		require.NoError(t, err, listKey)
		assert.Equal(t, "R1", p.VendorID)
		assert.Equal(t, "LPA:1$sm.example$X", p.LPA)
		assert.Equal(t, "89860001", p.ICCID)
	}
}

func TestNormalizeLpaFieldAliases(t *testing.T) {
	for _, lpaKey := range []string{"code", "lpa", "lpaString", "sm_dp_address"} {
		detail := detailFromJSON(t, `{"cards":[{"`+lpaKey+`":"LPA:1$sm.example$Y"}]}`)

		p, err := NormalizeDetail("R2", detail)
		require.NoError(t, err, lpaKey)
		assert.Equal(t, "LPA:1$sm.example$Y", p.LPA, lpaKey)
	}
}

func TestNormalizeActivationCodeAliases(t *testing.T) {
	for _, key := range []string{"activationCode", "activation_code"} {
		detail := detailFromJSON(t, `{"cards":[{"`+key+`":"AC-42"}]}`)

		p, err := NormalizeDetail("R3", detail)
		require.NoError(t, err, key)
		assert.Equal(t, "AC-42", p.ActivationCode)
	}
}

func TestNormalizeIccidFallsBackToMobileNumber(t *testing.T) {
	detail := detailFromJSON(t, `{"cards":[{"lpa":"LPA:1$x$Z","mobileNumber":"8986099912"}]}`)

	p, err := NormalizeDetail("R4", detail)
	require.NoError(t, err)
	assert.Equal(t, "8986099912", p.ICCID)
}

func TestNormalizeFieldPrecedence(t *testing.T) {
	// code стоит раньше lpa в порядке разрешения
	detail := detailFromJSON(t, `{"cards":[{"code":"LPA:new","lpa":"LPA:old"}]}`)

	p, err := NormalizeDetail("R5", detail)
	require.NoError(t, err)
	assert.Equal(t, "LPA:new", p.LPA)
}

func TestNormalizeNoCards(t *testing.T) {
	detail := detailFromJSON(t, `{"orderNum":"R6","something":"else"}`)

	_, err := NormalizeDetail("R6", detail)
	assert.ErrorIs(t, err, ErrNoCards)
}

func TestNormalizeEmptyCardList(t *testing.T) {
	detail := detailFromJSON(t, `{"cards":[]}`)

	_, err := NormalizeDetail("R7", detail)
	assert.ErrorIs(t, err, ErrNoCards)
}

// Карта без lpa и без activationCode непригодна — это ошибка валидации,
// а не молчаливый пустой payload.
func TestNormalizeUnusableCardRejected(t *testing.T) {
	detail := detailFromJSON(t, `{"cards":[{"iccid":"89860001"}]}`)

	_, err := NormalizeDetail("R8", detail)
	assert.Error(t, err)
}

func TestNormalizeNumericIccid(t *testing.T) {
	detail := detailFromJSON(t, `{"cards":[{"lpa":"LPA:1$x$Q","iccid":12345}]}`)

	p, err := NormalizeDetail("R9", detail)
	require.NoError(t, err)
	assert.Equal(t, "12345", p.ICCID)
}
