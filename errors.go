package dispatchy

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks across the dispatch pipeline.
var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrDuplicateTool = errors.New("tool already registered")
	ErrTimeout       = errors.New("tool dispatch timeout")
	ErrValidation    = errors.New("validation failed")
	ErrShutdown      = errors.New("registry is shutting down")
)

// ClientError marks input the model itself can fix: malformed JSON, a schema
// violation, a rejected enum value. Its message is safe to hand back to the
// LLM verbatim; nothing internal leaks through it.
type ClientError struct {
	Reason string
	// Retryable is application-set. When true the orchestrator may repeat
	// the same call unchanged, e.g. after a transient rate limit.
	Retryable bool
	// Err optionally carries a sentinel such as ErrValidation so callers
	// can branch with errors.Is.
	Err error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid tool input: %s", e.Reason)
}

func (e *ClientError) Unwrap() error { return e.Err }

// SystemError marks a failure on our side of the boundary. Error() stays
// deliberately opaque: the wrapped cause is for logs and errors.As, never for
// the model.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "internal system error during tool execution"
}

func (e *SystemError) Unwrap() error { return e.Err }

// panicError carries a recovered panic value inside SystemError; produced by
// Registry dispatch recovery and the WithRecovery middleware.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}

// UnknownToolError reports a dispatch whose type resolves to no registered
// tool. It carries the unresolved identifier for diagnostics and unwraps to
// ErrUnknownTool. This is terminal at the dispatch level: no retry, no
// substitution.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %q", e.Tool)
}

func (e *UnknownToolError) Unwrap() error { return ErrUnknownTool }

// DuplicateToolError reports a Register call for a name that is already
// taken. Unwraps to ErrDuplicateTool; the first registration stays bound.
type DuplicateToolError struct {
	Tool string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool already registered: %q", e.Tool)
}

func (e *DuplicateToolError) Unwrap() error { return ErrDuplicateTool }

// IsClientError reports whether err is or wraps a *ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError reports whether err is or wraps a *SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

// wrapJSONParseError normalizes unmarshal failures from the extractor, the
// dynamic execute path, and ParseToolCalls into one ClientError shape.
func wrapJSONParseError(err error) error {
	return &ClientError{Reason: "json parse error: " + err.Error()}
}
