package dispatchy

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(s string) json.RawMessage { return []byte(s) }

type calcArgs struct {
	N int `json:"n"`
}

type calcOut struct {
	V int `json:"v"`
}

// newCalcTool builds a pure single-argument arithmetic tool for registry tests.
func newCalcTool(t *testing.T, name string, fn func(int) int) Tool {
	t.Helper()
	tool, err := NewTool(name, "calc: "+name, func(_ context.Context, a calcArgs) (calcOut, error) {
		return calcOut{V: fn(a.N)}, nil
	})
	require.NoError(t, err)
	return tool
}

func decodeCalc(t *testing.T, res ToolResult) calcOut {
	t.Helper()
	var out calcOut
	require.NoError(t, json.Unmarshal([]byte(res.Output), &out))
	return out
}

func TestRegistry_RegisterAndDispatch(t *testing.T) {
	reg := NewRegistry(WithDefaultTimeout(time.Second), WithRecoverPanics(true))
	require.NoError(t, reg.Register(newCalcTool(t, "scale", func(n int) int { return n * 2 })))
	require.Len(t, reg.GetAllTools(), 1)

	res := reg.Dispatch(context.Background(), ToolCall{ID: "1", Type: "scale", Args: raw(`{"n": 7}`)})
	require.NoError(t, res.Error)
	require.NotEmpty(t, res.Output)
	assert.Equal(t, 14, decodeCalc(t, res).V)
}

func TestRegistry_GetTool(t *testing.T) {
	tool := newCalcTool(t, "scale", func(n int) int { return n * 2 })
	reg := NewRegistry()
	require.NoError(t, reg.Register(tool))

	got, ok := reg.GetTool("scale")
	require.True(t, ok)
	require.Same(t, tool, got)

	_, ok = reg.GetTool("missing")
	require.False(t, ok)
}

func TestRegistry_Dispatch_UnknownTool(t *testing.T) {
	reg := NewRegistry()
	res := reg.Dispatch(context.Background(), ToolCall{ID: "1", Type: "divide", Args: raw(`{"a":1,"b":2}`)})
	require.Error(t, res.Error)
	assert.ErrorIs(t, res.Error, ErrUnknownTool)

	var ute *UnknownToolError
	require.ErrorAs(t, res.Error, &ute)
	assert.Equal(t, "divide", ute.Tool, "error must carry the unresolved name")

	// The result still echoes the call so batch callers can line it up.
	assert.Equal(t, "divide", res.Type)
	assert.JSONEq(t, `{"a":1,"b":2}`, string(res.Args))
	assert.Empty(t, res.Output)
}

// The result's CallID, Type, and Args are the call's, byte for byte, on
// success and on failure.
func TestRegistry_Dispatch_EchoesCall(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newCalcTool(t, "identity", func(n int) int { return n })))

	args := raw(`{"n": 3}`)
	res := reg.Dispatch(context.Background(), ToolCall{ID: "p1", Type: "identity", Args: args})
	require.NoError(t, res.Error)
	assert.Equal(t, "p1", res.CallID)
	assert.Equal(t, "identity", res.Type)
	assert.Equal(t, string(args), string(res.Args))

	badArgs := raw(`{"n": "nan"}`)
	res = reg.Dispatch(context.Background(), ToolCall{ID: "p2", Type: "identity", Args: badArgs})
	require.Error(t, res.Error)
	assert.Equal(t, "identity", res.Type)
	assert.Equal(t, string(badArgs), string(res.Args))
}

// Dispatching the same call twice runs the handler twice and yields the same
// output both times for a pure handler.
func TestRegistry_Dispatch_Repeatable(t *testing.T) {
	var invocations int32
	tool, err := NewTool("square", "Square n", func(_ context.Context, a calcArgs) (calcOut, error) {
		atomic.AddInt32(&invocations, 1)
		return calcOut{V: a.N * a.N}, nil
	})
	require.NoError(t, err)
	reg := NewRegistry()
	require.NoError(t, reg.Register(tool))

	call := ToolCall{ID: "r1", Type: "square", Args: raw(`{"n": 9}`)}
	first := reg.Dispatch(context.Background(), call)
	second := reg.Dispatch(context.Background(), call)
	require.NoError(t, first.Error)
	require.NoError(t, second.Error)
	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, int32(2), atomic.LoadInt32(&invocations))
}

func TestRegistry_Dispatch_PanicRecovery(t *testing.T) {
	tool, err := NewTool("combust", "Panics", func(_ context.Context, _ calcArgs) (calcOut, error) {
		panic("oops")
	})
	require.NoError(t, err)
	reg := NewRegistry(WithRecoverPanics(true))
	require.NoError(t, reg.Register(tool))

	res := reg.Dispatch(context.Background(), ToolCall{ID: "1", Type: "combust", Args: raw(`{"n": 1}`)})
	require.Error(t, res.Error)
	var se *SystemError
	require.ErrorAs(t, res.Error, &se)
}

func TestRegistry_DispatchAll_PartialSuccess(t *testing.T) {
	reg := NewRegistry(WithDefaultTimeout(time.Second))
	require.NoError(t, reg.Register(newCalcTool(t, "scale", func(n int) int { return n * 2 })))

	results := reg.DispatchAll(context.Background(), []ToolCall{
		{ID: "1", Type: "scale", Args: raw(`{"n": 1}`)},
		{ID: "2", Type: "missing", Args: raw("{}")},
		{ID: "3", Type: "scale", Args: raw(`{"n": 3}`)},
	})
	require.Len(t, results, 3)
	require.NoError(t, results[0].Error)
	require.Error(t, results[1].Error)
	require.ErrorIs(t, results[1].Error, ErrUnknownTool)
	require.NoError(t, results[2].Error)
}

// Results line up with calls positionally even when earlier calls finish
// after later ones.
func TestRegistry_DispatchAll_OrderPreserved(t *testing.T) {
	type pacedArgs struct {
		N       int `json:"n"`
		DelayMS int `json:"delay_ms"`
	}
	tool, err := NewTool("paced", "Echo n after a delay", func(ctx context.Context, a pacedArgs) (calcOut, error) {
		select {
		case <-time.After(time.Duration(a.DelayMS) * time.Millisecond):
		case <-ctx.Done():
			return calcOut{}, ctx.Err()
		}
		return calcOut{V: a.N}, nil
	})
	require.NoError(t, err)
	reg := NewRegistry(WithDefaultTimeout(time.Second))
	require.NoError(t, reg.Register(tool))

	calls := []ToolCall{
		{ID: "1", Type: "paced", Args: raw(`{"n": 1, "delay_ms": 60}`)},
		{ID: "2", Type: "paced", Args: raw(`{"n": 2, "delay_ms": 0}`)},
		{ID: "3", Type: "paced", Args: raw(`{"n": 3, "delay_ms": 20}`)},
	}
	results := reg.DispatchAll(context.Background(), calls)
	require.Len(t, results, len(calls))
	for i, res := range results {
		require.NoError(t, res.Error)
		assert.Equal(t, calls[i].ID, res.CallID)
		assert.Equal(t, calls[i].Type, res.Type)
		assert.Equal(t, string(calls[i].Args), string(res.Args))
		assert.Equal(t, i+1, decodeCalc(t, res).V)
	}
}

func TestRegistry_Shutdown(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newCalcTool(t, "noop", func(n int) int { return n })))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))

	res := reg.Dispatch(context.Background(), ToolCall{ID: "1", Type: "noop", Args: raw("{}")})
	assert.ErrorIs(t, res.Error, ErrShutdown)
}

func TestRegistry_Shutdown_WaitsForInFlight(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})
	tool, err := NewTool("lingering", "Slow", func(_ context.Context, _ calcArgs) (calcOut, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		close(finished)
		return calcOut{}, nil
	})
	require.NoError(t, err)
	reg := NewRegistry(WithDefaultTimeout(5 * time.Second))
	require.NoError(t, reg.Register(tool))

	go reg.Dispatch(context.Background(), ToolCall{ID: "1", Type: "lingering", Args: raw(`{"n":1}`)})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))

	select {
	case <-finished:
	default:
		t.Fatal("in-flight dispatch should have completed before Shutdown returned")
	}
}

func TestRegistry_Shutdown_Idempotent(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newCalcTool(t, "noop", func(n int) int { return n })))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))
	require.NoError(t, reg.Shutdown(ctx))
}

func TestRegistry_Dispatch_CancelledContext(t *testing.T) {
	reg := NewRegistry(WithDefaultTimeout(time.Second))
	require.NoError(t, reg.Register(newCalcTool(t, "scale", func(n int) int { return n * 2 })))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := reg.Dispatch(ctx, ToolCall{ID: "1", Type: "scale", Args: raw(`{"n": 1}`)})
	require.Error(t, res.Error)
	assert.True(t, errors.Is(res.Error, context.Canceled) || errors.Is(res.Error, ErrTimeout),
		"expected context.Canceled or ErrTimeout, got %v", res.Error)
}

func TestRegistry_MaxConcurrency(t *testing.T) {
	var running int32
	started := make(chan struct{}, 1)
	tool, err := NewTool("crawl", "Slow", func(ctx context.Context, _ calcArgs) (calcOut, error) {
		atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			return calcOut{}, ctx.Err()
		case <-time.After(100 * time.Millisecond):
			return calcOut{}, nil
		}
	})
	require.NoError(t, err)
	reg := NewRegistry(WithMaxConcurrency(1), WithDefaultTimeout(time.Second))
	require.NoError(t, reg.Register(tool))

	ctx := context.Background()
	go reg.Dispatch(ctx, ToolCall{ID: "1", Type: "crawl", Args: raw(`{"n": 1}`)})
	<-started
	assert.Equal(t, int32(1), atomic.LoadInt32(&running))

	// The second dispatch queues behind the slot and still completes.
	res2 := reg.Dispatch(ctx, ToolCall{ID: "2", Type: "crawl", Args: raw(`{"n": 2}`)})
	require.NoError(t, res2.Error)
}

func TestRegistry_MaxConcurrency_Unlimited(t *testing.T) {
	for _, tc := range []struct {
		name string
		n    int
	}{
		{"zero", 0},
		{"negative", -1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry(WithMaxConcurrency(tc.n), WithDefaultTimeout(time.Second))
			require.NoError(t, reg.Register(newCalcTool(t, "inc", func(n int) int { return n + 1 })))
			results := reg.DispatchAll(context.Background(), []ToolCall{
				{ID: "1", Type: "inc", Args: raw(`{"n": 1}`)},
				{ID: "2", Type: "inc", Args: raw(`{"n": 2}`)},
			})
			require.Len(t, results, 2)
			require.NoError(t, results[0].Error)
			require.NoError(t, results[1].Error)
		})
	}
}

func TestRegistry_ObservabilityHooks(t *testing.T) {
	var beforeCalls, afterCalls int
	var lastCall ToolCall
	var lastResult ToolResult
	var lastDuration time.Duration
	reg := NewRegistry(
		WithOnBeforeDispatch(func(_ context.Context, call ToolCall) {
			beforeCalls++
			lastCall = call
		}),
		WithOnAfterDispatch(func(_ context.Context, _ ToolCall, result ToolResult, duration time.Duration) {
			afterCalls++
			lastResult = result
			lastDuration = duration
		}),
	)
	require.NoError(t, reg.Register(newCalcTool(t, "inc", func(n int) int { return n + 1 })))

	res := reg.Dispatch(context.Background(), ToolCall{ID: "h1", Type: "inc", Args: raw(`{"n": 10}`)})
	require.NoError(t, res.Error)
	assert.Equal(t, 1, beforeCalls)
	assert.Equal(t, 1, afterCalls)
	assert.Equal(t, "h1", lastCall.ID)
	assert.Equal(t, "inc", lastCall.Type)
	assert.Equal(t, "h1", lastResult.CallID)
	assert.Equal(t, "inc", lastResult.Type)
	assert.NotEmpty(t, lastResult.Output)
	assert.GreaterOrEqual(t, lastDuration, time.Duration(0))
}

// A handler error reaches the caller and the after-dispatch hook unchanged:
// errors.Is still sees the original sentinel.
func TestRegistry_OnAfter_ErrorPath(t *testing.T) {
	errQuota := errors.New("quota exhausted")
	tool, err := NewTool("metered", "Fails", func(_ context.Context, _ calcArgs) (calcOut, error) {
		return calcOut{}, errQuota
	})
	require.NoError(t, err)

	var afterCalls int
	var lastResult ToolResult
	reg := NewRegistry(WithOnAfterDispatch(func(_ context.Context, _ ToolCall, result ToolResult, _ time.Duration) {
		afterCalls++
		lastResult = result
	}))
	require.NoError(t, reg.Register(tool))

	res := reg.Dispatch(context.Background(), ToolCall{ID: "e1", Type: "metered", Args: raw(`{"n": 1}`)})
	require.Error(t, res.Error)
	require.ErrorIs(t, res.Error, errQuota)
	assert.Equal(t, 1, afterCalls)
	assert.Equal(t, "e1", lastResult.CallID)
	assert.Equal(t, "metered", lastResult.Type)
	assert.ErrorIs(t, lastResult.Error, errQuota)
}

func TestRegistry_DispatchAll_Empty(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.DispatchAll(context.Background(), nil))
	assert.Empty(t, reg.DispatchAll(context.Background(), []ToolCall{}))
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	first := newCalcTool(t, "convert", func(n int) int { return n })
	second := newCalcTool(t, "convert", func(n int) int { return n * 10 })

	reg := NewRegistry()
	require.NoError(t, reg.Register(first))
	err := reg.Register(second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateTool)
	var dte *DuplicateToolError
	require.ErrorAs(t, err, &dte)
	assert.Equal(t, "convert", dte.Tool)

	// The losing Register must not displace the original binding.
	got, ok := reg.GetTool("convert")
	require.True(t, ok)
	require.Same(t, first, got)

	res := reg.Dispatch(context.Background(), ToolCall{ID: "1", Type: "convert", Args: raw(`{"n": 5}`)})
	require.NoError(t, res.Error)
	assert.Equal(t, 5, decodeCalc(t, res).V)
}
