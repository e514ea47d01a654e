package outputs

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/animus-labs/cbas-go/internal/domain"
)

// ValidationError aggregates mismatches between observed outputs and declared output types.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "output validation failed"
	}
	return "output validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// BuildOutputs translates observed workflow outputs into record attributes.
//
// Only definitions with a record update destination contribute. Every value is
// coerced to its declared type; all mismatches are reported together as a
// *ValidationError.
func BuildOutputs(defs []domain.WorkflowOutputDefinition, observed map[string]any) (map[string]any, error) {
	attributes := make(map[string]any)
	verr := &ValidationError{}
	for _, def := range defs {
		switch dest := def.Destination.(type) {
		case domain.NoDestination:
			continue
		case domain.RecordUpdateDestination:
			value, err := coerce(def.Type, observed[def.Name], def.Name)
			if err != nil {
				verr.Add(err.Error())
				continue
			}
			attributes[dest.Attribute] = value
		default:
			verr.Add(fmt.Sprintf("%s: unsupported output destination %T", def.Name, def.Destination))
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return attributes, nil
}

func coerce(typ domain.ParameterType, value any, path string) (any, error) {
	switch t := typ.(type) {
	case domain.OptionalType:
		if value == nil {
			return nil, nil
		}
		return coerce(t.Inner, value, path)
	case domain.PrimitiveType:
		if value == nil {
			return nil, fmt.Errorf("%s: missing required %s value", path, t.Kind)
		}
		return coercePrimitive(t.Kind, value, path)
	case domain.ArrayType:
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected array, got %s", path, describe(value))
		}
		if t.NonEmpty && len(items) == 0 {
			return nil, fmt.Errorf("%s: expected non-empty array", path)
		}
		out := make([]any, 0, len(items))
		for i, item := range items {
			coerced, err := coerce(t.Element, item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, coerced)
		}
		return out, nil
	case domain.MapType:
		entries, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected map, got %s", path, describe(value))
		}
		out := make(map[string]any, len(entries))
		for key, entry := range entries {
			if err := validateMapKey(t.Key, key); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			coerced, err := coerce(t.Value, entry, fmt.Sprintf("%s[%q]", path, key))
			if err != nil {
				return nil, err
			}
			out[key] = coerced
		}
		return out, nil
	case domain.StructType:
		fields, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected struct %s, got %s", path, t.Name, describe(value))
		}
		out := make(map[string]any, len(t.Fields))
		for _, field := range t.Fields {
			coerced, err := coerce(field.Type, fields[field.Name], path+"."+field.Name)
			if err != nil {
				return nil, err
			}
			out[field.Name] = coerced
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: unsupported output type %T", path, typ)
	}
}

func coercePrimitive(kind domain.PrimitiveKind, value any, path string) (any, error) {
	switch kind {
	case domain.PrimitiveString, domain.PrimitiveFile:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected %s, got %s", path, kind, describe(value))
		}
		return s, nil
	case domain.PrimitiveBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%s: expected Boolean, got %s", path, describe(value))
		}
		return b, nil
	case domain.PrimitiveFloat:
		f, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("%s: expected Float, got %s", path, describe(value))
		}
		return f, nil
	case domain.PrimitiveInt:
		f, ok := toFloat(value)
		if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%s: expected Int, got %s", path, describe(value))
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("%s: Int value %g out of range", path, f)
		}
		return int64(f), nil
	default:
		return nil, fmt.Errorf("%s: unknown primitive type %q", path, kind)
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func validateMapKey(kind domain.PrimitiveKind, key string) error {
	var err error
	switch kind {
	case domain.PrimitiveString, domain.PrimitiveFile:
		return nil
	case domain.PrimitiveInt:
		_, err = strconv.ParseInt(key, 10, 64)
	case domain.PrimitiveFloat:
		_, err = strconv.ParseFloat(key, 64)
	case domain.PrimitiveBoolean:
		_, err = strconv.ParseBool(key)
	default:
		return fmt.Errorf("unknown map key type %q", kind)
	}
	if err != nil {
		return fmt.Errorf("map key %q is not a valid %s", key, kind)
	}
	return nil
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
