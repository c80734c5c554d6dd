package firoam

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Sign строит подпись запроса по схеме вендора: выкидываем существующий
// sign, сортируем ключи, склеиваем key=value без разделителя, дописываем
// секрет, percent-encode всей строки и берём верхний регистр hex MD5.
// Результат не зависит от порядка вставки ключей в map.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString(secret)

	// пробел должен уйти как %20, а не '+': на другой стороне
	// encodeURIComponent-подобная реализация
	encoded := strings.ReplaceAll(url.QueryEscape(b.String()), "+", "%20")
	sum := md5.Sum([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
