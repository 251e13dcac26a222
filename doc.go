// Package dispatchy provides a type-safe dispatch layer between LLM tool calls
// and concrete Go functions: register tools once, hand every model-emitted
// {type, args} pair to the dispatcher, and get back a result annotated with the
// call that produced it.
//
// # Overview
//
// A model emits tool calls as JSON; application code wants plain function
// invocations. The package bridges the two in one pass per call: resolve the
// tool by name, check the arguments against the same JSON Schema the model was
// shown, run the handler, and marshal the output. Anything the model got wrong
// comes back as a message it can read and correct.
//
// NewTool reflects a schema from an argument struct and wraps a Go function
// as a Tool; a Registry holds tools by name and drives Dispatch from ToolCall
// to ToolResult.
//
// # Key concepts
//
//   - One source of truth: the struct tags on the argument type produce both
//     the schema advertised to the model and the validation applied to what
//     it sends back.
//   - Annotated results: every ToolResult echoes the call's Type and Args, so
//     batch output lines up with batch input without bookkeeping on the
//     caller's side.
//   - Partial success: DispatchAll collects all results in input order; one
//     failure does not cancel others.
//   - Self-correction: ClientError carries human-readable messages back to
//     the LLM; an unregistered name surfaces as UnknownToolError with the
//     name preserved.
//
// See Tool, ToolCall, ToolResult for the core types, and NewTool / NewRegistry
// for setup.
//
// # Example
//
//	type Args struct { City string `json:"city"` }
//	type Out  struct { Temp float64 `json:"temp"` }
//	tool, err := dispatchy.NewTool("weather", "Get weather", func(_ context.Context, a Args) (Out, error) {
//	    return Out{Temp: 22.5}, nil
//	})
//	if err != nil { ... }
//	reg := dispatchy.NewRegistry()
//	if err := reg.Register(tool); err != nil { ... }
//	result := reg.Dispatch(ctx, dispatchy.ToolCall{ID: "1", Type: "weather", Args: []byte(`{"city":"Moscow"}`)})
package dispatchy
