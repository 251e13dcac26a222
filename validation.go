package dispatchy

import "reflect"

// Validatable adds a second validation layer on top of the JSON Schema.
// Argument structs that implement it get Validate called after schema
// validation and unmarshaling. Return a ClientError to control the exact
// message the model sees; any other error is wrapped as one.
type Validatable interface {
	Validate() error
}

// schemaValidator is the compiled-schema contract shared by the typed and
// dynamic tool paths. *jsvalidator.Schema implements it.
type schemaValidator interface {
	Validate(v any) error
}

// validateSchemaLayer runs the compiled schema against an already-parsed JSON
// value. Parse errors are the caller's to report.
func validateSchemaLayer(validate schemaValidator, v any) error {
	if err := validate.Validate(v); err != nil {
		return &ClientError{Reason: err.Error(), Err: ErrValidation}
	}
	return nil
}

// validateCustomLayer runs Validatable on args, falling back to &args for
// value types whose Validate has a pointer receiver. Validate is invoked at
// most once per call.
func validateCustomLayer[T any](args T) error {
	if v, ok := any(args).(Validatable); ok {
		return v.Validate()
	}
	typ := reflect.TypeOf(args)
	if typ == nil || typ.Kind() == reflect.Pointer {
		return nil
	}
	if v, ok := any(&args).(Validatable); ok {
		return v.Validate()
	}
	return nil
}
