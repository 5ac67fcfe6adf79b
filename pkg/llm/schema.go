package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaValidation is wrapped with the joined field errors when a
// JSONSchemaValidator rejects a value.
var ErrSchemaValidation = errors.New("schema validation failed")

// JSONSchemaValidator is the reference SchemaValidator implementation,
// validating candidate values against a JSON Schema document. Grounded on
// the gojsonschema usage pattern in cmd/uast/validate.go (schema loader +
// Go-value loader + Validate), simplified to the accept/reject contract
// SchemaValidator declares rather than the CLI's diagnostic reporting.
type JSONSchemaValidator struct{}

// NewJSONSchemaValidator creates a JSONSchemaValidator.
func NewJSONSchemaValidator() *JSONSchemaValidator {
	return &JSONSchemaValidator{}
}

// Validate implements SchemaValidator using gojsonschema.
func (v *JSONSchemaValidator) Validate(schema []byte, data any) error {
	schemaLoader := gojsonschema.NewBytesLoader(schema)
	documentLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("evaluate schema: %w", err)
	}

	if result.Valid() {
		return nil
	}

	fields := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		fields = append(fields, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}

	return fmt.Errorf("%w: %s", ErrSchemaValidation, strings.Join(fields, "; "))
}
