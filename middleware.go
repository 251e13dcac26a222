package dispatchy

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a Tool with cross-cutting behavior (logging, recovery, timeout).
type Middleware func(Tool) Tool

// decorated is the Tool a middleware produces: identity and metadata come from
// next, Execute comes from the middleware's exec closure. A positive timeout
// additionally overrides next's ToolMetadata timeout so the registry sees it.
type decorated struct {
	next    Tool
	exec    func(ctx context.Context, argsJSON []byte) ([]byte, error)
	timeout time.Duration
}

func (d *decorated) Name() string               { return d.next.Name() }
func (d *decorated) Description() string        { return d.next.Description() }
func (d *decorated) Parameters() map[string]any { return d.next.Parameters() }

func (d *decorated) Execute(ctx context.Context, argsJSON []byte) ([]byte, error) {
	return d.exec(ctx, argsJSON)
}

// metadata unwraps next's ToolMetadata view, or nil when next carries none.
// Wrapping must not strip per-tool timeouts, tags, or the dangerous flag.
func (d *decorated) metadata() ToolMetadata {
	if tm, ok := d.next.(ToolMetadata); ok {
		return tm
	}
	return nil
}

func (d *decorated) Timeout() time.Duration {
	if d.timeout > 0 {
		return d.timeout
	}
	if tm := d.metadata(); tm != nil {
		return tm.Timeout()
	}
	return 0
}

func (d *decorated) Tags() []string {
	if tm := d.metadata(); tm != nil {
		return tm.Tags()
	}
	return nil
}

func (d *decorated) Version() string {
	if tm := d.metadata(); tm != nil {
		return tm.Version()
	}
	return ""
}

func (d *decorated) IsDangerous() bool {
	if tm := d.metadata(); tm != nil {
		return tm.IsDangerous()
	}
	return false
}

// WithLogging returns a middleware that logs start, end, duration, and errors.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Tool) Tool {
		return &decorated{next: next, exec: func(ctx context.Context, argsJSON []byte) ([]byte, error) {
			logger.InfoContext(ctx, "tool start", slog.String("tool", next.Name()))
			start := time.Now()
			out, err := next.Execute(ctx, argsJSON)
			if err != nil {
				logger.ErrorContext(ctx, "tool error",
					slog.String("tool", next.Name()),
					slog.Duration("duration", time.Since(start)),
					slog.Any("error", err),
				)
				return nil, err
			}
			logger.InfoContext(ctx, "tool end",
				slog.String("tool", next.Name()),
				slog.Duration("duration", time.Since(start)),
			)
			return out, nil
		}}
	}
}

// WithRecovery returns a middleware that recovers panics and returns SystemError.
func WithRecovery() Middleware {
	return func(next Tool) Tool {
		return &decorated{next: next, exec: func(ctx context.Context, argsJSON []byte) (out []byte, err error) {
			defer func() {
				if p := recover(); p != nil {
					out = nil
					err = &SystemError{Err: &panicError{p: p}}
				}
			}()
			return next.Execute(ctx, argsJSON)
		}}
	}
}

// WithTimeoutMiddleware returns a middleware that enforces a per-tool timeout.
// Named with "Middleware" suffix to avoid collision with the ToolOption WithTimeout.
// When the registry default timeout also applies, the effective bound is the
// minimum of the two (the inner context cancels first).
func WithTimeoutMiddleware(d time.Duration) Middleware {
	return func(next Tool) Tool {
		return &decorated{next: next, timeout: d, exec: func(ctx context.Context, argsJSON []byte) ([]byte, error) {
			if d <= 0 {
				return next.Execute(ctx, argsJSON)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Execute(ctx, argsJSON)
		}}
	}
}

// Use stores the given middlewares and reapplies them from scratch to all
// registered tools (onion order: first middleware is outermost). Tools
// registered after Use get the same chain. Calling Use again replaces the
// chain and rewraps from the raw tools, so nothing is ever wrapped twice.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = middlewares
	for name, raw := range r.rawTools {
		r.tools[name] = wrap(raw, middlewares)
	}
}

// wrap applies the chain to t, first middleware outermost. Callers hold r.mu.
func wrap(t Tool, middlewares []Middleware) Tool {
	for i := len(middlewares) - 1; i >= 0; i-- {
		t = middlewares[i](t)
	}
	return t
}
