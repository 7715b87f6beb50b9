// Package checksum content-addresses task query parameters.
//
// Two queries that differ only in key order, case, incidental whitespace or
// the volatile date-range keys hash to the same checksum. All functions are
// pure and deterministic.
package checksum

import (
	"bytes"
	"crypto/md5" //nolint:gosec // content addressing, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DefaultDelimiter joins keys, values and sequence elements.
const DefaultDelimiter = ","

// VolatileKeys are dropped from the top level of a payload before hashing.
// They match regardless of case.
var VolatileKeys = []string{"dateStart", "dateEnd"}

// Compute returns the hex MD5 checksum of payload's canonical form.
// payload is a decoded JSON value: map[string]any, []any, string,
// json.Number, float64, bool or nil.
func Compute(payload any, delimiter string) string {
	if m, ok := payload.(map[string]any); ok {
		payload = withoutVolatile(m)
	}
	var b strings.Builder
	concat(&b, payload, delimiter)
	canonical := strings.ToLower(stripSpace(b.String()))
	sum := md5.Sum([]byte(canonical)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// FromQuery hashes an opaque query string. JSON queries are hashed
// structurally; anything else is hashed as a single scalar.
func FromQuery(query string) string {
	payload, err := Decode(query)
	if err != nil {
		return Compute(query, DefaultDelimiter)
	}
	return Compute(payload, DefaultDelimiter)
}

// Decode parses a JSON query, keeping numbers as their literal text so that
// 1.0 and 1 stay distinct.
func Decode(query string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(query))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("checksum: decode query: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("checksum: decode query: trailing data")
	}
	return v, nil
}

// Revision formats the revision tag for a task created at t.
func Revision(t time.Time, checksum string) string {
	return fmt.Sprintf("%d_%s", t.Unix(), checksum)
}

// Verify reports whether stored matches the checksum recomputed from query.
func Verify(stored, query string) bool {
	return stored == FromQuery(query)
}

func withoutVolatile(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if !isVolatile(k) {
			out[k] = v
		}
	}
	return out
}

func isVolatile(key string) bool {
	for _, v := range VolatileKeys {
		if strings.EqualFold(key, v) {
			return true
		}
	}
	return false
}

// concat writes the sorted, delimited rendering of v.
func concat(b *strings.Builder, v any, delim string) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		// Order by the lower-cased key, since the rendering is lower-cased.
		// Keys equal after folding fall back to byte order.
		sort.Slice(keys, func(i, j int) bool {
			li, lj := strings.ToLower(keys[i]), strings.ToLower(keys[j])
			if li != lj {
				return li < lj
			}
			return keys[i] < keys[j]
		})
		for i, k := range keys {
			if i > 0 {
				b.WriteString(delim)
			}
			b.WriteString(k)
			b.WriteString(delim)
			concat(b, x[k], delim)
		}
	case []any:
		for i, e := range x {
			if i > 0 {
				b.WriteString(delim)
			}
			concat(b, e, delim)
		}
	default:
		b.WriteString(scalar(x))
	}
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return "none"
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func stripSpace(s string) string {
	var buf bytes.Buffer
	buf.Grow(len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			buf.WriteRune(r)
		}
	}
	return buf.String()
}
