package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CanonicalJSON serializes v (a map[string]interface{}-shaped payload)
// with keys sorted lexicographically and no whitespace, so sender and
// receiver compute an identical byte string to sign and verify.
func CanonicalJSON(v interface{}) []byte {
	var b strings.Builder
	writeCanonical(&b, v)
	return []byte(b.String())
}

func writeCanonical(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		b.WriteString(strconv.Quote(val))
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		b.WriteString(strconv.Quote(fmt.Sprintf("%v", val)))
	}
}

// Sign computes X-Signature-SHA256's value: sha256=<hex hmac digest>
// of the canonical JSON encoding of payload, keyed by secret.
func Sign(secret string, payload map[string]interface{}) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(CanonicalJSON(payload))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
