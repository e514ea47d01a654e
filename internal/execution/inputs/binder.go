package inputs

import (
	"encoding/json"
	"fmt"

	"github.com/animus-labs/cbas-go/internal/domain"
)

// BuildInputs resolves input definitions against one fetched record.
//
// The result holds exactly one entry per distinct parameter name; a later
// definition with the same name overwrites an earlier one. A record lookup for
// an absent attribute binds nil.
func BuildInputs(defs []domain.WorkflowInputDefinition, record domain.Record) map[string]any {
	params := make(map[string]any, len(defs))
	for _, def := range defs {
		switch source := def.Source.(type) {
		case domain.LiteralSource:
			params[def.Name] = source.Value
		case domain.RecordLookupSource:
			params[def.Name] = record.Attributes[source.Attribute]
		default:
			panic(fmt.Sprintf("inputs: unsupported parameter source %T for %q", def.Source, def.Name))
		}
	}
	return params
}

// InputsToJSON serializes bound inputs for engine submission. Keys are emitted
// in sorted order.
func InputsToJSON(params map[string]any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode workflow inputs: %w", err)
	}
	return raw, nil
}
