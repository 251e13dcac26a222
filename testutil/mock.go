// Package testutil offers doubles for testing code that consumes dispatchy
// tools without building real schema-backed ones.
package testutil

import (
	"context"
	"sync/atomic"

	"github.com/skosovsky/dispatchy"
)

// MockTool is a hand-wired Tool for tests. The zero value is usable: it
// reports the name "mock", an empty object schema, and Execute returns
// (nil, nil).
type MockTool struct {
	ToolName string
	ToolDesc string
	Schema   map[string]any
	Handler  func(ctx context.Context, args []byte) ([]byte, error)

	calls atomic.Int64
}

var _ dispatchy.Tool = (*MockTool)(nil)

func (m *MockTool) Name() string {
	if m.ToolName == "" {
		return "mock"
	}
	return m.ToolName
}

func (m *MockTool) Description() string { return m.ToolDesc }

func (m *MockTool) Parameters() map[string]any {
	if m.Schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return m.Schema
}

// Execute counts the invocation and delegates to Handler when set.
func (m *MockTool) Execute(ctx context.Context, args []byte) ([]byte, error) {
	m.calls.Add(1)
	if m.Handler == nil {
		return nil, nil
	}
	return m.Handler(ctx, args)
}

// CallCount reports how many times Execute ran. Safe for concurrent use.
func (m *MockTool) CallCount() int {
	return int(m.calls.Load())
}
