// Package schema validates inbound JSON payloads against declarative field schemas.
//
// Unknown fields are tolerated but dropped; absent optional fields receive their
// default; strings are truncated to the field's MaxLen (in runes). Validate is
// idempotent: feeding its output back in yields the same output.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/yungbote/workbench-backend/internal/platform/apierr"
)

type Type int

const (
	Any Type = iota
	String
	Real
	Bool
	List
	Map
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Real:
		return "real"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return "any"
	}
}

type Field struct {
	Required bool
	Type     Type
	Default  any
	// MaxLen truncates String values; zero means unbounded.
	MaxLen int
}

type Schema map[string]Field

// Validate checks payload against s and returns only the declared fields.
func Validate(payload map[string]any, s Schema) (map[string]any, error) {
	out := make(map[string]any, len(s))
	for _, name := range sortedFields(s) {
		f := s[name]
		v, present := payload[name]
		if !present || v == nil {
			if f.Required {
				return nil, apierr.BadRequest(apierr.CodeMissingField, fmt.Errorf("missing required field %q", name))
			}
			if f.Default != nil {
				out[name] = cloneDefault(f.Default)
			}
			continue
		}
		coerced, ok := coerce(v, f.Type)
		if !ok {
			return nil, apierr.BadRequest(apierr.CodeTypeMismatch, fmt.Errorf("field %q must be of type %s", name, f.Type))
		}
		if str, isStr := coerced.(string); isStr && f.MaxLen > 0 {
			coerced = truncateRunes(str, f.MaxLen)
		}
		out[name] = coerced
	}
	return out, nil
}

// Decode validates payload and decodes the result into out (a pointer to a struct
// whose json tags match the schema field names).
func Decode(payload map[string]any, s Schema, out any) error {
	parsed, err := Validate(payload, s)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(parsed)
	if err != nil {
		return apierr.BadRequest(apierr.CodeInvalidRequest, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierr.BadRequest(apierr.CodeTypeMismatch, err)
	}
	return nil
}

func coerce(v any, t Type) (any, bool) {
	switch t {
	case Any:
		return v, true
	case String:
		s, ok := v.(string)
		return s, ok
	case Bool:
		b, ok := v.(bool)
		return b, ok
	case Real:
		switch n := v.(type) {
		case float64:
			return n, !math.IsNaN(n) && !math.IsInf(n, 0)
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case json.Number:
			f, err := n.Float64()
			return f, err == nil
		default:
			return nil, false
		}
	case List:
		l, ok := v.([]any)
		return l, ok
	case Map:
		m, ok := v.(map[string]any)
		return m, ok
	}
	return nil, false
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func cloneDefault(v any) any {
	switch d := v.(type) {
	case []any:
		return append([]any(nil), d...)
	case map[string]any:
		m := make(map[string]any, len(d))
		for k, val := range d {
			m[k] = val
		}
		return m
	case int:
		return float64(d)
	default:
		return v
	}
}

func sortedFields(s Schema) []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
