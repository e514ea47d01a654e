package params

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/animus-labs/cbas-go/internal/domain"
)

const maxTypeDepth = 32

const (
	sourceLiteral      = "literal"
	sourceRecordLookup = "record_lookup"

	destinationNone         = "none"
	destinationRecordUpdate = "record_update"

	typePrimitive = "primitive"
	typeOptional  = "optional"
	typeArray     = "array"
	typeMap       = "map"
	typeStruct    = "struct"
)

// MarshalInputDefinitions serializes input definitions with stable field names.
func MarshalInputDefinitions(defs []domain.WorkflowInputDefinition) ([]byte, error) {
	payload := make([]inputDefinitionPayload, 0, len(defs))
	for _, def := range defs {
		typ, err := encodeType(def.Type, 0)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", def.Name, err)
		}
		source, err := encodeSource(def.Source)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", def.Name, err)
		}
		payload = append(payload, inputDefinitionPayload{
			InputName: def.Name,
			InputType: typ,
			Source:    source,
		})
	}
	return json.Marshal(payload)
}

// UnmarshalInputDefinitions parses persisted or submitted input definitions.
func UnmarshalInputDefinitions(raw []byte) ([]domain.WorkflowInputDefinition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []domain.WorkflowInputDefinition{}, nil
	}
	var payload []inputDefinitionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	out := make([]domain.WorkflowInputDefinition, 0, len(payload))
	for _, p := range payload {
		if p.InputName == "" {
			return nil, errors.New("input_name is required")
		}
		typ, err := decodeType(p.InputType, 0)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", p.InputName, err)
		}
		source, err := decodeSource(p.Source)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", p.InputName, err)
		}
		out = append(out, domain.WorkflowInputDefinition{Name: p.InputName, Type: typ, Source: source})
	}
	return out, nil
}

// MarshalOutputDefinitions serializes output definitions with stable field names.
func MarshalOutputDefinitions(defs []domain.WorkflowOutputDefinition) ([]byte, error) {
	payload := make([]outputDefinitionPayload, 0, len(defs))
	for _, def := range defs {
		typ, err := encodeType(def.Type, 0)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", def.Name, err)
		}
		dest, err := encodeDestination(def.Destination)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", def.Name, err)
		}
		payload = append(payload, outputDefinitionPayload{
			OutputName:  def.Name,
			OutputType:  typ,
			Destination: dest,
		})
	}
	return json.Marshal(payload)
}

// UnmarshalOutputDefinitions parses persisted or submitted output definitions.
func UnmarshalOutputDefinitions(raw []byte) ([]domain.WorkflowOutputDefinition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []domain.WorkflowOutputDefinition{}, nil
	}
	var payload []outputDefinitionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	out := make([]domain.WorkflowOutputDefinition, 0, len(payload))
	for _, p := range payload {
		if p.OutputName == "" {
			return nil, errors.New("output_name is required")
		}
		typ, err := decodeType(p.OutputType, 0)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", p.OutputName, err)
		}
		dest, err := decodeDestination(p.Destination)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", p.OutputName, err)
		}
		out = append(out, domain.WorkflowOutputDefinition{Name: p.OutputName, Type: typ, Destination: dest})
	}
	return out, nil
}

type inputDefinitionPayload struct {
	InputName string         `json:"input_name"`
	InputType *typePayload   `json:"input_type"`
	Source    *sourcePayload `json:"source"`
}

type outputDefinitionPayload struct {
	OutputName  string              `json:"output_name"`
	OutputType  *typePayload        `json:"output_type"`
	Destination *destinationPayload `json:"destination"`
}

type sourcePayload struct {
	Type            string          `json:"type"`
	ParameterValue  json.RawMessage `json:"parameter_value,omitempty"`
	RecordAttribute string          `json:"record_attribute,omitempty"`
}

type destinationPayload struct {
	Type            string `json:"type"`
	RecordAttribute string `json:"record_attribute,omitempty"`
}

type typePayload struct {
	Type          string               `json:"type"`
	PrimitiveType string               `json:"primitive_type,omitempty"`
	OptionalType  *typePayload         `json:"optional_type,omitempty"`
	ArrayType     *typePayload         `json:"array_type,omitempty"`
	NonEmpty      bool                 `json:"non_empty,omitempty"`
	KeyType       string               `json:"key_type,omitempty"`
	ValueType     *typePayload         `json:"value_type,omitempty"`
	Name          string               `json:"name,omitempty"`
	Fields        []structFieldPayload `json:"fields,omitempty"`
}

type structFieldPayload struct {
	FieldName string       `json:"field_name"`
	FieldType *typePayload `json:"field_type"`
}

func encodeSource(source domain.ParameterSource) (*sourcePayload, error) {
	switch s := source.(type) {
	case domain.LiteralSource:
		raw, err := json.Marshal(s.Value)
		if err != nil {
			return nil, fmt.Errorf("encode literal: %w", err)
		}
		return &sourcePayload{Type: sourceLiteral, ParameterValue: raw}, nil
	case domain.RecordLookupSource:
		return &sourcePayload{Type: sourceRecordLookup, RecordAttribute: s.Attribute}, nil
	default:
		return nil, fmt.Errorf("unsupported source %T", source)
	}
}

func decodeSource(p *sourcePayload) (domain.ParameterSource, error) {
	if p == nil {
		return nil, errors.New("source is required")
	}
	switch p.Type {
	case sourceLiteral:
		var value any
		if len(p.ParameterValue) > 0 {
			if err := json.Unmarshal(p.ParameterValue, &value); err != nil {
				return nil, fmt.Errorf("decode literal: %w", err)
			}
		}
		return domain.LiteralSource{Value: value}, nil
	case sourceRecordLookup:
		if p.RecordAttribute == "" {
			return nil, errors.New("record_attribute is required for record_lookup source")
		}
		return domain.RecordLookupSource{Attribute: p.RecordAttribute}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", p.Type)
	}
}

func encodeDestination(dest domain.OutputDestination) (*destinationPayload, error) {
	switch d := dest.(type) {
	case domain.NoDestination:
		return &destinationPayload{Type: destinationNone}, nil
	case domain.RecordUpdateDestination:
		return &destinationPayload{Type: destinationRecordUpdate, RecordAttribute: d.Attribute}, nil
	default:
		return nil, fmt.Errorf("unsupported destination %T", dest)
	}
}

func decodeDestination(p *destinationPayload) (domain.OutputDestination, error) {
	if p == nil {
		return nil, errors.New("destination is required")
	}
	switch p.Type {
	case destinationNone:
		return domain.NoDestination{}, nil
	case destinationRecordUpdate:
		if p.RecordAttribute == "" {
			return nil, errors.New("record_attribute is required for record_update destination")
		}
		return domain.RecordUpdateDestination{Attribute: p.RecordAttribute}, nil
	default:
		return nil, fmt.Errorf("unknown destination type %q", p.Type)
	}
}

func encodeType(typ domain.ParameterType, depth int) (*typePayload, error) {
	if depth > maxTypeDepth {
		return nil, errors.New("type nesting too deep")
	}
	switch t := typ.(type) {
	case domain.PrimitiveType:
		if _, ok := domain.ParsePrimitiveKind(string(t.Kind)); !ok {
			return nil, fmt.Errorf("unknown primitive type %q", t.Kind)
		}
		return &typePayload{Type: typePrimitive, PrimitiveType: string(t.Kind)}, nil
	case domain.OptionalType:
		inner, err := encodeType(t.Inner, depth+1)
		if err != nil {
			return nil, err
		}
		return &typePayload{Type: typeOptional, OptionalType: inner}, nil
	case domain.ArrayType:
		elem, err := encodeType(t.Element, depth+1)
		if err != nil {
			return nil, err
		}
		return &typePayload{Type: typeArray, ArrayType: elem, NonEmpty: t.NonEmpty}, nil
	case domain.MapType:
		if _, ok := domain.ParsePrimitiveKind(string(t.Key)); !ok {
			return nil, fmt.Errorf("unknown map key type %q", t.Key)
		}
		value, err := encodeType(t.Value, depth+1)
		if err != nil {
			return nil, err
		}
		return &typePayload{Type: typeMap, KeyType: string(t.Key), ValueType: value}, nil
	case domain.StructType:
		fields := make([]structFieldPayload, 0, len(t.Fields))
		for _, field := range t.Fields {
			ft, err := encodeType(field.Type, depth+1)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field.Name, err)
			}
			fields = append(fields, structFieldPayload{FieldName: field.Name, FieldType: ft})
		}
		return &typePayload{Type: typeStruct, Name: t.Name, Fields: fields}, nil
	case nil:
		return nil, errors.New("type is required")
	default:
		return nil, fmt.Errorf("unsupported type %T", typ)
	}
}

func decodeType(p *typePayload, depth int) (domain.ParameterType, error) {
	if p == nil {
		return nil, errors.New("type is required")
	}
	if depth > maxTypeDepth {
		return nil, errors.New("type nesting too deep")
	}
	switch p.Type {
	case typePrimitive:
		kind, ok := domain.ParsePrimitiveKind(p.PrimitiveType)
		if !ok {
			return nil, fmt.Errorf("unknown primitive type %q", p.PrimitiveType)
		}
		return domain.PrimitiveType{Kind: kind}, nil
	case typeOptional:
		inner, err := decodeType(p.OptionalType, depth+1)
		if err != nil {
			return nil, fmt.Errorf("optional_type: %w", err)
		}
		return domain.OptionalType{Inner: inner}, nil
	case typeArray:
		elem, err := decodeType(p.ArrayType, depth+1)
		if err != nil {
			return nil, fmt.Errorf("array_type: %w", err)
		}
		return domain.ArrayType{Element: elem, NonEmpty: p.NonEmpty}, nil
	case typeMap:
		key, ok := domain.ParsePrimitiveKind(p.KeyType)
		if !ok {
			return nil, fmt.Errorf("unknown map key type %q", p.KeyType)
		}
		value, err := decodeType(p.ValueType, depth+1)
		if err != nil {
			return nil, fmt.Errorf("value_type: %w", err)
		}
		return domain.MapType{Key: key, Value: value}, nil
	case typeStruct:
		fields := make([]domain.StructField, 0, len(p.Fields))
		for _, field := range p.Fields {
			if field.FieldName == "" {
				return nil, errors.New("struct field_name is required")
			}
			ft, err := decodeType(field.FieldType, depth+1)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field.FieldName, err)
			}
			fields = append(fields, domain.StructField{Name: field.FieldName, Type: ft})
		}
		return domain.StructType{Name: p.Name, Fields: fields}, nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", p.Type)
	}
}
