package dispatchy

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is the contract for an LLM-callable instrument.
// It is provider-agnostic (no knowledge of OpenAI, Anthropic, etc.).
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a valid JSON Schema as map (compatible with LLM tool definitions).
	Parameters() map[string]any
	// Execute runs the tool with the raw JSON argument object and returns the
	// JSON-encoded result. Implementations built with NewTool validate argsJSON
	// against the same schema Parameters returns before running the handler.
	Execute(ctx context.Context, argsJSON []byte) ([]byte, error)
}

// ToolMetadata is implemented by tools created with NewTool and provides optional per-tool settings.
// Registry uses Timeout() to override the default dispatch timeout when set. Other methods expose
// tags, version, and dangerous flag for orchestration or discovery.
type ToolMetadata interface {
	Timeout() time.Duration
	Tags() []string
	Version() string
	IsDangerous() bool
}

// ToolCall is a single invocation record as produced by the LLM layer.
// Type carries the tool identifier (the "type" discriminant of parsed model
// output); Args is the raw JSON argument object, read-only to the dispatcher.
type ToolCall struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Args json.RawMessage `json:"args"`
}

// ToolResult is the annotated outcome of one dispatch: the original Type and
// Args passed through unchanged, plus the handler's JSON-encoded Output.
// Error is nil on success; it is excluded from JSON, so marshaling a
// successful result yields {type, args, output}.
type ToolResult struct {
	CallID string          `json:"call_id,omitempty"`
	Type   string          `json:"type"`
	Args   json.RawMessage `json:"args"`
	Output string          `json:"output,omitempty"`
	Error  error           `json:"-"`
}
