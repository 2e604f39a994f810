// Package reqbody decodes inbound request bodies tolerantly. A body that
// cannot be decoded as a JSON object is treated as an empty object.
package reqbody

import (
	"encoding/json"
	"io"
	"strings"
)

// Source is one of the body representations a caller may hold: Fields,
// Text, or Stream.
type Source interface {
	fields() map[string]any
}

// Fields is a body the caller has already decoded, such as one bound by a
// framework before the relay sees it.
type Fields map[string]any

// Text is an undecoded JSON body held in memory, such as a buffered or
// replayed request.
type Text string

// Stream is a body that still has to be drained. The relay handler passes
// the inbound request body this way.
type Stream struct {
	R io.Reader
}

func (f Fields) fields() map[string]any {
	if f == nil {
		return map[string]any{}
	}
	return f
}

func (t Text) fields() map[string]any {
	return decode([]byte(t))
}

func (s Stream) fields() map[string]any {
	if s.R == nil {
		return map[string]any{}
	}
	data, err := io.ReadAll(s.R)
	if err != nil {
		return map[string]any{}
	}
	return decode(data)
}

// Parse returns the body as a JSON object. It never fails.
func Parse(src Source) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	return src.fields()
}

func decode(data []byte) map[string]any {
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// overrideKeys are checked in order for a client-chosen sign-in identity.
var overrideKeys = []string{"outletCode", "loginId"}

// LoginOverride returns the identity the client asked to sign in as, or "".
// The first key holding a truthy value wins; a truthy value that is not a
// string selects no override.
func LoginOverride(fields map[string]any) string {
	for _, key := range overrideKeys {
		v, ok := fields[key]
		if !ok || !truthy(v) {
			continue
		}
		s, _ := v.(string)
		return s
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	default:
		return true
	}
}
