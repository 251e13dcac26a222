package dispatchy

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"
)

// Registry resolves tool calls by name and runs them under a shared dispatch
// policy: default timeout, global concurrency cap, optional panic recovery,
// and before/after hooks.
type Registry struct {
	mu          sync.Mutex
	tools       map[string]Tool // middleware-wrapped, consulted by Dispatch
	rawTools    map[string]Tool // as registered, the base Use rewraps from
	middlewares []Middleware

	cfg      registryConfig
	sem      chan struct{} // nil means unbounded
	closed   chan struct{}
	inflight sync.WaitGroup
}

// NewRegistry creates a Registry with the given options. Defaults: 5s dispatch
// timeout, 10 concurrent dispatches, panic recovery on.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := registryConfig{
		timeout:        5 * time.Second,
		maxConcurrency: 10,
		recoverPanics:  true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Registry{
		tools:    make(map[string]Tool),
		rawTools: make(map[string]Tool),
		cfg:      cfg,
		closed:   make(chan struct{}),
	}
	if cfg.maxConcurrency > 0 {
		r.sem = make(chan struct{}, cfg.maxConcurrency)
	}
	return r
}

// Register adds a tool under its Name. Stored middlewares (see Use) are applied
// to the tool before registration. A name that is already taken fails with
// DuplicateToolError and the existing registration stays in place. Safe for
// concurrent use with Dispatch and other Register calls.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.rawTools[name]; exists {
		return &DuplicateToolError{Tool: name}
	}
	r.rawTools[name] = t
	r.tools[name] = wrap(t, r.middlewares)
	return nil
}

// GetAllTools returns every registered tool sorted by name, the deterministic
// order a caller wants when exporting definitions to an LLM provider.
func (r *Registry) GetAllTools() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Tool, 0, len(r.tools))
	for _, name := range slices.Sorted(maps.Keys(r.tools)) {
		out = append(out, r.tools[name])
	}
	return out
}

// GetTool returns the tool registered under name (with middlewares applied),
// or (nil, false) when no such tool exists.
func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// Dispatch resolves call.Type against the registry and runs the tool once with call.Args.
// The returned ToolResult always carries the call's ID, Type, and Args unchanged; Output holds
// the tool's JSON output on success and Error holds the failure otherwise. A call naming an
// unregistered tool fails with UnknownToolError (matches ErrUnknownTool). No retries: the first
// outcome, success or failure, is final. Tool errors are not inspected or rewritten here; whatever
// Execute returned is what the caller sees in Error.
// The after-dispatch hook (WithOnAfterDispatch) is always invoked via defer with the final result.
func (r *Registry) Dispatch(ctx context.Context, call ToolCall) (res ToolResult) {
	res = ToolResult{CallID: call.ID, Type: call.Type, Args: call.Args}

	start := time.Now()
	// The after-dispatch hook sees every outcome, including shutdown and
	// unknown-tool rejections that never reach a tool. The recover defer below
	// is registered later, so it runs first on panic and sets res.Error before
	// the hook observes the result.
	defer func() {
		if r.cfg.onAfter != nil {
			r.cfg.onAfter(ctx, call, res, time.Since(start))
		}
	}()

	r.mu.Lock()
	select {
	case <-r.closed:
		r.mu.Unlock()
		res.Error = ErrShutdown
		return res
	default:
	}
	tool, ok := r.tools[call.Type]
	if !ok {
		r.mu.Unlock()
		res.Error = &UnknownToolError{Tool: call.Type}
		return res
	}
	r.inflight.Add(1)
	r.mu.Unlock()

	if err := r.acquireSemaphore(ctx); err != nil {
		r.inflight.Done()
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout
		}
		res.Error = err
		return res
	}
	defer r.releaseSemaphore()
	defer r.inflight.Done()

	timeout := r.cfg.timeout
	if tm, ok := tool.(ToolMetadata); ok && tm.Timeout() > 0 {
		timeout = tm.Timeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if r.cfg.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				res.Output = ""
				res.Error = &SystemError{Err: &panicError{p: p}}
			}
		}()
	}

	if r.cfg.onBefore != nil {
		r.cfg.onBefore(ctx, call)
	}

	out, err := tool.Execute(ctx, call.Args)
	res.Output = string(out)
	res.Error = err
	return res
}

// acquireSemaphore takes a concurrency slot, preferring ctx cancelation over a
// free slot when both are ready.
func (r *Registry) acquireSemaphore(ctx context.Context) error {
	if r.sem == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) releaseSemaphore() {
	if r.sem != nil {
		<-r.sem
	}
}

// DispatchAll runs all calls in parallel and returns one ToolResult per call, in input order:
// results[i] corresponds to calls[i] regardless of completion order. Calls do not affect each
// other; a failed call (including an unknown tool name) is reported in its own slot while the
// rest proceed, so callers must check every result's Error. Cancelling ctx cancels the contexts
// handed to still-running tools; how quickly they stop is up to each tool.
func (r *Registry) DispatchAll(ctx context.Context, calls []ToolCall) []ToolResult {
	if len(calls) == 0 {
		return nil
	}
	results := make([]ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Go(func() {
			results[i] = r.Dispatch(ctx, call)
		})
	}
	wg.Wait()
	return results
}

// Shutdown closes the registry for new dispatches and waits for in-flight ones
// to drain. Returns ctx.Err() if ctx expires first; safe to call repeatedly.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	r.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
