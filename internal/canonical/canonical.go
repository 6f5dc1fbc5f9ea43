// Package canonical produces order-independent content fingerprints for
// record payloads. The canonical form is the cross-device contract: two
// payloads with identical content must hash identically no matter which
// client built them or in what order fields were assembled.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Canonicalize returns a deterministic serialization of a JSON payload:
// compact JSON with object keys sorted lexicographically at every nesting
// level. Array order is preserved (it is content, not structure).
func Canonicalize(payload []byte) ([]byte, error) {
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}

	var b strings.Builder
	if err := writeCanonical(&b, value); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// Hash returns the lowercase hex SHA-256 digest of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Fingerprint canonicalizes the payload and hashes the result.
func Fingerprint(payload []byte) (string, error) {
	canon, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return Hash(canon), nil
}

func writeCanonical(b *strings.Builder, value any) error {
	switch v := value.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if v {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case float64:
		return writeNumber(b, v)
	case string:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode string: %w", err)
		}
		b.Write(encoded)
	case []any:
		b.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, elem); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encoded, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("encode key: %w", err)
			}
			b.Write(encoded)
			b.WriteByte(':')
			if err := writeCanonical(b, v[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value type %T", value)
	}
	return nil
}

// writeNumber formats numbers the way encoding/json does, so the canonical
// form of a round-tripped payload matches the canonical form of the source.
func writeNumber(b *strings.Builder, f float64) error {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("unsupported number value %v", f)
	}
	// Integral values render without an exponent or decimal point.
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		b.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}
