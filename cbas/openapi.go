package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openapiSpec []byte

const runSetRequestSchema = "RunSetRequest"

// requestValidator checks decoded JSON bodies against the embedded API document.
type requestValidator struct {
	runSetRequest *openapi3.Schema
}

func newRequestValidator(ctx context.Context) (*requestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	ref, ok := doc.Components.Schemas[runSetRequestSchema]
	if !ok || ref == nil || ref.Value == nil {
		return nil, fmt.Errorf("openapi schema %s missing", runSetRequestSchema)
	}
	return &requestValidator{runSetRequest: ref.Value}, nil
}

// ValidateRunSetRequest validates a body decoded into generic JSON values.
func (v *requestValidator) ValidateRunSetRequest(body any) error {
	if v == nil || v.runSetRequest == nil {
		return errors.New("request validator not initialized")
	}
	return v.runSetRequest.VisitJSON(body, openapi3.MultiErrors())
}
