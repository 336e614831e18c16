package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Payload is the action-specific request body. After ValidatePayload every
// declared field holds its canonical Go type (see FieldType).
type Payload map[string]any

// FieldType is the canonical type a declared payload field is coerced to.
type FieldType string

const (
	FieldString     FieldType = "string"  // string
	FieldInt        FieldType = "integer" // int
	FieldBool       FieldType = "boolean" // bool
	FieldStringList FieldType = "string_list"
	FieldObject     FieldType = "object"      // map[string]any
	FieldObjectList FieldType = "object_list" // []map[string]any
)

// FieldSpec declares one payload field of an action.
type FieldSpec struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Description string    `json:"description,omitempty"`
}

// ValidatePayload checks payload against specs and returns a copy with every
// declared field coerced to its canonical type and defaults filled in.
// Undeclared keys are copied through untouched. The input is not modified.
//
// All missing required fields are reported together; type errors are only
// reported once nothing is missing.
func ValidatePayload(specs []FieldSpec, payload Payload) (Payload, error) {
	out := make(Payload, len(payload)+len(specs))
	for k, v := range payload {
		out[k] = v
	}

	var missing, invalid []string
	for _, spec := range specs {
		raw, present := payload[spec.Name]
		if !present || isEmptyValue(raw) {
			if spec.Required {
				missing = append(missing, spec.Name)
				continue
			}
			if spec.Default != nil {
				out[spec.Name] = spec.Default
			} else {
				delete(out, spec.Name)
			}
			continue
		}

		value, ok := coerce(spec.Type, raw)
		if !ok {
			invalid = append(invalid, fmt.Sprintf("%s must be %s", spec.Name, describeType(spec.Type)))
			continue
		}
		out[spec.Name] = value
	}

	if len(missing) > 0 {
		return nil, MissingFields(missing...)
	}
	if len(invalid) > 0 {
		return nil, PayloadValidation("invalid field(s): %s", strings.Join(invalid, "; "))
	}
	return out, nil
}

// String returns the string at key, or "" when absent.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Int returns the int at key, or 0 when absent.
func (p Payload) Int(key string) int {
	n, _ := p[key].(int)
	return n
}

// Bool returns the bool at key, or false when absent.
func (p Payload) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// StringSlice returns the string list at key, or nil when absent.
func (p Payload) StringSlice(key string) []string {
	s, _ := p[key].([]string)
	return s
}

// Object returns the object at key, or nil when absent.
func (p Payload) Object(key string) map[string]any {
	m, _ := p[key].(map[string]any)
	return m
}

// Objects returns the object list at key, or nil when absent.
func (p Payload) Objects(key string) []map[string]any {
	o, _ := p[key].([]map[string]any)
	return o
}

// Has reports whether key is present with a non-empty value.
func (p Payload) Has(key string) bool {
	v, ok := p[key]
	return ok && !isEmptyValue(v)
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case []map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func coerce(ft FieldType, raw any) (any, bool) {
	switch ft {
	case FieldString:
		s, ok := raw.(string)
		return s, ok
	case FieldInt:
		return coerceInt(raw)
	case FieldBool:
		switch t := raw.(type) {
		case bool:
			return t, true
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(t))
			return b, err == nil
		}
		return nil, false
	case FieldStringList:
		return coerceStringList(raw)
	case FieldObject:
		m, ok := raw.(map[string]any)
		return m, ok
	case FieldObjectList:
		return coerceObjectList(raw)
	default:
		return raw, true
	}
}

func coerceInt(raw any) (any, bool) {
	switch t := raw.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return nil, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return nil, false
}

func coerceStringList(raw any) (any, bool) {
	switch t := raw.(type) {
	case []string:
		return t, true
	case string:
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func coerceObjectList(raw any) (any, bool) {
	switch t := raw.(type) {
	case []map[string]any:
		return t, true
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	}
	return nil, false
}

func describeType(ft FieldType) string {
	switch ft {
	case FieldInt:
		return "an integer"
	case FieldBool:
		return "a boolean"
	case FieldStringList:
		return "a list of strings"
	case FieldObject:
		return "an object"
	case FieldObjectList:
		return "a list of objects"
	default:
		return "a string"
	}
}
