// Package httpapi exposes a dispatchy.Registry over HTTP.
//
// The endpoints mirror dispatch semantics: every result echoes the call's
// type and args, single dispatch maps error classes to status codes, and
// batch dispatch always answers 200 with per-item outcomes in input order.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skosovsky/dispatchy"
)

type options struct {
	logger *slog.Logger
}

// Option configures the router.
type Option func(*options)

// WithLogger sets the request logger. Unset or nil falls back to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.logger = log }
}

// ToolInfo describes one registered tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Meta carries collection metadata.
type Meta struct {
	Total int `json:"total"`
}

// ListToolsResponse is the body of GET /tools.
type ListToolsResponse struct {
	Data []ToolInfo `json:"data"`
	Meta Meta       `json:"meta"`
}

// DispatchResponse is the annotated outcome of one call. Error carries the
// sanitized failure text for batch items; it is empty on success.
type DispatchResponse struct {
	CallID string          `json:"call_id,omitempty"`
	Type   string          `json:"type"`
	Args   json.RawMessage `json:"args"`
	Output string          `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BatchResponse is the body of POST /dispatch/batch.
type BatchResponse struct {
	Data []DispatchResponse `json:"data"`
	Meta Meta               `json:"meta"`
}

// NewRouter builds a chi router serving reg.
func NewRouter(reg *dispatchy.Registry, opts ...Option) *chi.Mux {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	h := &handler{reg: reg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(o.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Get("/tools", h.listTools)
	r.Post("/dispatch", h.dispatch)
	r.Post("/dispatch/batch", h.dispatchBatch)
	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("elapsed", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

type handler struct {
	reg *dispatchy.Registry
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listTools(w http.ResponseWriter, _ *http.Request) {
	tools := h.reg.GetAllTools()
	data := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		data = append(data, ToolInfo{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	writeJSON(w, http.StatusOK, ListToolsResponse{Data: data, Meta: Meta{Total: len(data)}})
}

func (h *handler) dispatch(w http.ResponseWriter, r *http.Request) {
	var call dispatchy.ToolCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if call.Type == "" {
		writeError(w, http.StatusBadRequest, "call has no type")
		return
	}

	res := h.reg.Dispatch(r.Context(), call)
	switch {
	case res.Error == nil:
		writeJSON(w, http.StatusOK, toResponse(res))
	case errors.Is(res.Error, dispatchy.ErrUnknownTool):
		writeError(w, http.StatusNotFound, res.Error.Error())
	case dispatchy.IsClientError(res.Error):
		writeError(w, http.StatusUnprocessableEntity, res.Error.Error())
	default:
		// Internal failures stay opaque over the wire.
		writeError(w, http.StatusInternalServerError, "tool execution failed")
	}
}

func (h *handler) dispatchBatch(w http.ResponseWriter, r *http.Request) {
	var calls []dispatchy.ToolCall
	if err := json.NewDecoder(r.Body).Decode(&calls); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(calls) == 0 {
		writeError(w, http.StatusBadRequest, "empty batch")
		return
	}
	for i, call := range calls {
		if call.Type == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("call at index %d has no type", i))
			return
		}
	}

	results := h.reg.DispatchAll(r.Context(), calls)
	data := make([]DispatchResponse, 0, len(results))
	for _, res := range results {
		data = append(data, toResponse(res))
	}
	writeJSON(w, http.StatusOK, BatchResponse{Data: data, Meta: Meta{Total: len(data)}})
}

// toResponse flattens a ToolResult for the wire. Error texts are already
// sanitized by the error taxonomy: SystemError prints a generic message and
// client errors carry only what the model may see.
func toResponse(res dispatchy.ToolResult) DispatchResponse {
	out := DispatchResponse{
		CallID: res.CallID,
		Type:   res.Type,
		Args:   res.Args,
		Output: res.Output,
	}
	if res.Error != nil {
		out.Error = res.Error.Error()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
