package dispatchy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// tool is the concrete Tool produced by NewTool and NewDynamicTool.
type tool struct {
	name        string
	description string
	schema      map[string]any
	execute     func(context.Context, []byte) ([]byte, error)
	opts        toolOptions
}

var (
	_ Tool         = (*tool)(nil)
	_ ToolMetadata = (*tool)(nil)
)

func (t *tool) Name() string        { return t.name }
func (t *tool) Description() string { return t.description }

// Parameters returns a shallow copy of the JSON Schema (top-level keys only).
// Nested maps (e.g. under "properties") are shared; callers must not mutate them.
func (t *tool) Parameters() map[string]any { return maps.Clone(t.schema) }

func (t *tool) Execute(ctx context.Context, argsJSON []byte) ([]byte, error) {
	return t.execute(ctx, argsJSON)
}

func (t *tool) Timeout() time.Duration { return t.opts.timeout }
func (t *tool) Tags() []string         { return append([]string(nil), t.opts.tags...) }
func (t *tool) Version() string        { return t.opts.version }
func (t *tool) IsDangerous() bool      { return t.opts.dangerous }

func buildToolOptions(opts []ToolOption) toolOptions {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewTool builds a Tool from a typed handler. The argument schema is reflected
// from T (see Extractor) and every payload passes schema plus Validatable
// validation before fn runs; fn's result is marshaled to JSON as the output.
// Handler errors keep their ClientError classification; anything else becomes
// a SystemError with the original reachable through Unwrap. Schema generation
// failure (e.g. an unsupported type) is a construction error.
func NewTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T) (R, error),
	opts ...ToolOption,
) (Tool, error) {
	o := buildToolOptions(opts)
	ext, err := NewExtractor[T](o.strict)
	if err != nil {
		return nil, err
	}
	return &tool{
		name:        name,
		description: description,
		schema:      ext.Schema(),
		opts:        o,
		execute: func(ctx context.Context, argsJSON []byte) ([]byte, error) {
			args, err := ext.ParseAndValidate(argsJSON)
			if err != nil {
				return nil, err
			}
			res, err := fn(ctx, args)
			if err != nil {
				return nil, wrapHandlerError(err)
			}
			out, err := json.Marshal(res)
			if err != nil {
				return nil, &SystemError{Err: err}
			}
			return out, nil
		},
	}, nil
}

// NewDynamicTool creates a Tool from a raw JSON Schema map and a handler that
// receives the schema-validated raw JSON. This is the path for schemas known
// only at runtime (manifest declarations, OpenAPI imports): layer 1 validation
// only, no typed unmarshal. schemaMap and fn must be non-nil. The caller's map
// is never mutated; strict mode and id stripping apply to a deep copy.
func NewDynamicTool(
	name, description string,
	schemaMap map[string]any,
	fn func(ctx context.Context, argsJSON []byte) ([]byte, error),
	opts ...ToolOption,
) (Tool, error) {
	if schemaMap == nil {
		return nil, errors.New("dynamic schema map must not be nil")
	}
	if fn == nil {
		return nil, errors.New("dynamic tool handler must not be nil")
	}
	o := buildToolOptions(opts)
	schemaCopy, compiled, err := prepareDynamicSchema(schemaMap, o.strict)
	if err != nil {
		return nil, err
	}
	return &tool{
		name:        name,
		description: description,
		schema:      schemaCopy,
		opts:        o,
		execute: func(ctx context.Context, argsJSON []byte) ([]byte, error) {
			if len(argsJSON) == 0 {
				argsJSON = []byte(`{}`)
			}
			var v any
			if err := json.Unmarshal(argsJSON, &v); err != nil {
				return nil, wrapJSONParseError(err)
			}
			if err := validateSchemaLayer(compiled, v); err != nil {
				return nil, err
			}
			out, err := fn(ctx, argsJSON)
			if err != nil {
				return nil, wrapHandlerError(err)
			}
			return out, nil
		},
	}, nil
}

// prepareDynamicSchema deep-copies the caller's schema via a JSON round trip,
// applies strict mode and id stripping to the copy, and compiles it.
func prepareDynamicSchema(schemaMap map[string]any, strict bool) (map[string]any, schemaValidator, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to deep copy schema map: %w", err)
	}
	var schemaCopy map[string]any
	if err := json.Unmarshal(data, &schemaCopy); err != nil {
		return nil, nil, fmt.Errorf("failed to deep copy schema map: %w", err)
	}
	if strict {
		applyStrictMode(schemaCopy)
	}
	stripSchemaIDs(schemaCopy)
	compiled, err := compileRawSchema(schemaCopy)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile dynamic schema: %w", err)
	}
	return schemaCopy, compiled, nil
}

// wrapHandlerError passes through ClientError; wraps other errors as SystemError.
func wrapHandlerError(err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) {
		return err
	}
	return &SystemError{Err: err}
}
