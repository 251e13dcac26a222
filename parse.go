package dispatchy

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// ParseToolCalls converts a model-produced tool-call payload into ToolCalls.
// The payload is a JSON array of {id, type, args} objects; a single object and
// a {"tool_calls": [...]} envelope are accepted too. Malformed JSON (unquoted
// keys, trailing commas, single quotes) gets one repair pass before the
// original parse error is returned as ClientError. Records without a type are
// rejected; missing args normalize to {}.
//
// No assumption is made about how the payload was produced; it is whatever the
// upstream model or parser emitted.
func ParseToolCalls(data []byte) ([]ToolCall, error) {
	calls, err := decodeCalls(data)
	if err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return nil, wrapJSONParseError(err)
		}
		calls, repairErr = decodeCalls([]byte(repaired))
		if repairErr != nil {
			return nil, wrapJSONParseError(err)
		}
	}
	for i := range calls {
		if calls[i].Type == "" {
			return nil, &ClientError{
				Reason: fmt.Sprintf("tool call %d has no type", i),
				Err:    ErrValidation,
			}
		}
		if len(calls[i].Args) == 0 {
			calls[i].Args = json.RawMessage(`{}`)
		}
	}
	return calls, nil
}

func decodeCalls(data []byte) ([]ToolCall, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty tool call payload")
	}
	if trimmed[0] == '[' {
		var calls []ToolCall
		if err := json.Unmarshal(trimmed, &calls); err != nil {
			return nil, err
		}
		return calls, nil
	}
	// Providers wrap the list in a tool_calls envelope; accept that too.
	var envelope struct {
		ToolCalls []ToolCall `json:"tool_calls"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err == nil && envelope.ToolCalls != nil {
		return envelope.ToolCalls, nil
	}
	var call ToolCall
	if err := json.Unmarshal(trimmed, &call); err != nil {
		return nil, err
	}
	return []ToolCall{call}, nil
}
