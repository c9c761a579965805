// Package validate checks response bodies against JSON Schema documents.
// The result plugs into a request as its parse step.
package validate

import (
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/abdul-hamid-achik/httptask/packages/engine"
)

// SchemaError reports a body that failed schema validation.
type SchemaError struct {
	Failures []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("response body failed schema validation: %s", strings.Join(e.Failures, "; "))
}

// JSONSchema returns a parse step validating the response body against the
// given schema document. On success the step yields the decoded body.
func JSONSchema(schemaJSON string) engine.ParseFunc {
	loader := gojsonschema.NewStringLoader(schemaJSON)
	return func(resp *engine.Response) (any, error) {
		result, err := gojsonschema.Validate(loader, gojsonschema.NewBytesLoader(resp.Body))
		if err != nil {
			return nil, fmt.Errorf("validating response: %w", err)
		}
		if !result.Valid() {
			se := &SchemaError{}
			for _, desc := range result.Errors() {
				se.Failures = append(se.Failures, desc.String())
			}
			return nil, se
		}
		return resp.BodyJSON()
	}
}

// JSONSchemaFile is JSONSchema with the schema loaded from a file.
func JSONSchemaFile(path string) (engine.ParseFunc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	return JSONSchema(string(data)), nil
}
