package oauth2

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Payload is a decoded provider response. Azure AD and Graph responses are not
// bound to a fixed schema, so fields are read with type-checked accessors.
type Payload map[string]any

// objectIDKeys are tried in order; the first non-empty string wins.
var objectIDKeys = []string{"id", "oid", "objectId"}

// Has reports whether the key is present, even with a null value.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the value when it is a non-empty string.
func (p Payload) String(key string) (string, bool) {
	s, ok := p[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// NullableString reads a key whose value may be a string or JSON null.
// ok is false when the key is absent or holds another type; value is nil for null.
func (p Payload) NullableString(key string) (value *string, ok bool) {
	v, present := p[key]
	if !present {
		return nil, false
	}
	switch t := v.(type) {
	case nil:
		return nil, true
	case string:
		return &t, true
	}
	return nil, false
}

// Int reads a numeric value. Numeric strings are accepted since some endpoints
// return expires_in quoted.
func (p Payload) Int(key string) (int, bool) {
	switch t := p[key].(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), true
		}
		if f, err := t.Float64(); err == nil {
			return int(f), true
		}
	case float64:
		if !math.IsNaN(t) && !math.IsInf(t, 0) {
			return int(t), true
		}
	case float32:
		return int(t), true
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(f), true
		}
	}
	return 0, false
}

// ObjectID returns the remote user's object id from id, oid or objectId.
func (p Payload) ObjectID() (string, bool) {
	for _, key := range objectIDKeys {
		if s, ok := p.String(key); ok {
			return s, true
		}
	}
	return "", false
}

// ProviderError reports an error payload: an object carrying a non-null "error" key.
// Graph nests the error as {"error":{"code":...,"message":...}}.
func (p Payload) ProviderError() (code, description string, ok bool) {
	v, present := p[KeyError]
	if !present || v == nil {
		return "", "", false
	}
	if nested, isMap := v.(map[string]any); isMap {
		inner := Payload(nested)
		code, _ = inner.String("code")
		description, _ = inner.String("message")
		if code == "" {
			code = stringify(v)
		}
		return code, description, true
	}
	code = stringify(v)
	if d, present := p[KeyErrorDescription]; present && d != nil {
		description = stringify(d)
	}
	return code, description, true
}

// Merge returns a new payload with other's keys written over p's.
func (p Payload) Merge(other Payload) Payload {
	merged := make(Payload, len(p)+len(other))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return p.Merge(nil)
}

// Redacted returns a copy without the access, refresh and id tokens, for display.
func (p Payload) Redacted() Payload {
	cp := p.Clone()
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyIDToken} {
		delete(cp, key)
	}
	return cp
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
