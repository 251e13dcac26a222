package dispatchy

import (
	"encoding/json"
	"maps"

	jsvalidator "github.com/santhosh-tekuri/jsonschema/v6"
)

// Extractor turns raw model-emitted JSON into a validated T without binding
// to the Tool interface. Orchestrators that need schema export and validated
// parsing, but not the Execute([]byte) ([]byte, error) pipeline, use it
// directly; NewTool builds on it internally.
type Extractor[T any] struct {
	schema    map[string]any
	validator *jsvalidator.Schema
}

// NewExtractor generates and compiles the JSON Schema for T. When strict is
// true the schema gets additionalProperties: false on every object and all
// properties required (OpenAI Structured Outputs dialect).
func NewExtractor[T any](strict bool) (*Extractor[T], error) {
	schema, validator, err := generateSchema[T](strict)
	if err != nil {
		return nil, err
	}
	return &Extractor[T]{schema: schema, validator: validator}, nil
}

// Schema returns the generated JSON Schema. The copy is shallow: top-level
// keys are the caller's to change, nested maps still belong to the extractor.
func (e *Extractor[T]) Schema() map[string]any {
	return maps.Clone(e.schema)
}

// ParseAndValidate deserializes argsJSON into T after both validation layers
// pass: first the compiled schema, then Validatable.Validate when T implements
// it. Empty input normalizes to {} since models routinely send no argument
// object for zero-argument tools. Failures come back as ClientError so the
// caller can hand the message to the LLM for self-correction.
func (e *Extractor[T]) ParseAndValidate(argsJSON []byte) (T, error) {
	var zero T
	if len(argsJSON) == 0 {
		argsJSON = []byte(`{}`)
	}
	var instance any
	if err := json.Unmarshal(argsJSON, &instance); err != nil {
		return zero, wrapJSONParseError(err)
	}
	if err := validateSchemaLayer(e.validator, instance); err != nil {
		return zero, err
	}
	var args T
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return zero, wrapJSONParseError(err)
	}
	if err := validateCustomLayer(args); err != nil {
		if IsClientError(err) {
			return zero, err
		}
		return zero, &ClientError{Reason: err.Error(), Err: ErrValidation}
	}
	return args, nil
}
