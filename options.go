package dispatchy

import (
	"context"
	"time"
)

// RegistryOption configures a Registry at construction time.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	timeout        time.Duration
	maxConcurrency int
	recoverPanics  bool
	onBefore       func(context.Context, ToolCall)
	onAfter        func(context.Context, ToolCall, ToolResult, time.Duration)
}

// WithDefaultTimeout bounds every dispatch that has no per-tool timeout of its own.
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(o *registryConfig) {
		o.timeout = d
	}
}

// WithMaxConcurrency caps how many dispatches run at once across the registry.
// Zero or negative disables the semaphore (unlimited concurrency).
func WithMaxConcurrency(n int) RegistryOption {
	return func(o *registryConfig) {
		o.maxConcurrency = n
	}
}

// WithRecoverPanics controls whether Dispatch recovers a panicking tool into a
// SystemError instead of crashing the process. On by default.
func WithRecoverPanics(enable bool) RegistryOption {
	return func(o *registryConfig) {
		o.recoverPanics = enable
	}
}

// WithOnBeforeDispatch installs a hook observing each call just before its tool runs.
func WithOnBeforeDispatch(fn func(context.Context, ToolCall)) RegistryOption {
	return func(o *registryConfig) {
		o.onBefore = fn
	}
}

// WithOnAfterDispatch installs a hook observing each call's final result and
// elapsed time. It fires for every outcome: success, tool error, unknown tool,
// shutdown rejection.
func WithOnAfterDispatch(fn func(context.Context, ToolCall, ToolResult, time.Duration)) RegistryOption {
	return func(o *registryConfig) {
		o.onAfter = fn
	}
}

// ToolOption configures a tool built by NewTool or NewDynamicTool.
type ToolOption func(*toolOptions)

type toolOptions struct {
	strict    bool
	timeout   time.Duration
	tags      []string
	version   string
	dangerous bool
}

// WithStrict switches the generated schema to the structured-output dialect:
// additionalProperties: false on every object, all properties required.
func WithStrict() ToolOption {
	return func(o *toolOptions) {
		o.strict = true
	}
}

// WithTimeout sets a per-tool timeout that wins over the registry default.
func WithTimeout(d time.Duration) ToolOption {
	return func(o *toolOptions) {
		o.timeout = d
	}
}

// WithTags attaches discovery tags the orchestrator can filter on.
func WithTags(tags ...string) ToolOption {
	return func(o *toolOptions) {
		o.tags = tags
	}
}

// WithVersion records the tool version in its metadata.
func WithVersion(version string) ToolOption {
	return func(o *toolOptions) {
		o.version = version
	}
}

// WithDangerous marks the tool as dangerous; an orchestrator may require
// confirmation before dispatching to it.
func WithDangerous() ToolOption {
	return func(o *toolOptions) {
		o.dangerous = true
	}
}
