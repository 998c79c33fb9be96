// Package inference implements the language-model capability: complete a
// prompt into a structured value matching a requested schema.
//
// A single Completer is created at startup and passed explicitly to every
// strategy that needs it. Implementations must be safe for concurrent use.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/Tegath/kaleads/internal/services"
)

// PropertyType is the JSON type of one schema property.
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeInteger PropertyType = "integer"
	TypeNumber  PropertyType = "number"
	TypeBoolean PropertyType = "boolean"
	// TypeStringList is an array of strings.
	TypeStringList PropertyType = "string_list"
)

// Property describes one field of a structured answer.
type Property struct {
	Name        string
	Type        PropertyType
	Description string
	Required    bool
}

// Schema is a flat object schema, provider-neutral.
type Schema struct {
	Properties []Property
}

// Completer turns a prompt into a value matching schema.
// Failures wrap services.ErrTimeout, services.ErrRateLimited or
// services.ErrMalformedResponse.
type Completer interface {
	Complete(ctx context.Context, prompt string, schema Schema) (map[string]any, error)
}

// Disabled is a Completer that always reports services.ErrDisabled.
type Disabled struct{}

// Complete implements Completer.
func (Disabled) Complete(context.Context, string, Schema) (map[string]any, error) {
	return nil, fmt.Errorf("inference: %w", services.ErrDisabled)
}

// FieldSchema is the answer shape every field-resolution prompt asks for.
var FieldSchema = Schema{Properties: []Property{
	{Name: "value", Type: TypeString, Required: true, Description: "The resolved value, or an empty string when unknown."},
	{Name: "confidence_adjustment", Type: TypeInteger, Description: "-1 when unsure, 0 otherwise."},
	{Name: "reasoning", Type: TypeString, Required: true, Description: "One sentence explaining the choice."},
}}

// Decode parses a JSON object and checks it against schema.
// Integers may arrive as JSON numbers; they are normalized to int.
func Decode(raw string, schema Schema) (map[string]any, error) {
	raw = stripFences(raw)
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("inference: decoding answer: %w", services.ErrMalformedResponse)
	}

	for _, p := range schema.Properties {
		v, ok := out[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, fmt.Errorf("inference: missing %q: %w", p.Name, services.ErrMalformedResponse)
			}
			continue
		}
		normalized, ok := coerce(v, p.Type)
		if !ok {
			return nil, fmt.Errorf("inference: %q is not %s: %w", p.Name, p.Type, services.ErrMalformedResponse)
		}
		out[p.Name] = normalized
	}
	return out, nil
}

func coerce(v any, t PropertyType) (any, bool) {
	switch t {
	case TypeString:
		s, ok := v.(string)
		return s, ok
	case TypeInteger:
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, false
		}
		return int(f), true
	case TypeNumber:
		f, ok := v.(float64)
		return f, ok
	case TypeBoolean:
		b, ok := v.(bool)
		return b, ok
	case TypeStringList:
		items, ok := v.([]any)
		if !ok {
			return nil, false
		}
		list := make([]string, 0, len(items))
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				return nil, false
			}
			list = append(list, s)
		}
		return list, true
	}
	return nil, false
}

// stripFences removes a ```json ... ``` wrapper some models add.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// String returns a string property or "".
func String(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// Int returns an integer property or 0.
func Int(m map[string]any, key string) int {
	n, _ := m[key].(int)
	return n
}

// Strings returns a string-list property or nil.
func Strings(m map[string]any, key string) []string {
	l, _ := m[key].([]string)
	return l
}
