// Package correlation carries per-operation identifiers in a context and
// attaches them to every log record written with that context.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

type pollKey struct{}
type connKey struct{}

// NewID generates an 8-character hex ID (4 random bytes).
func NewID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithPollID returns a context tagged with a poll tick ID.
func WithPollID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, pollKey{}, id)
}

// WithConnID returns a context tagged with a client connection ID.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connKey{}, id)
}

// PollID extracts the poll ID from ctx, returning ("", false) if not present.
func PollID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(pollKey{}).(string)
	return id, ok && id != ""
}

// ConnID extracts the connection ID from ctx, returning ("", false) if not present.
func ConnID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(connKey{}).(string)
	return id, ok && id != ""
}

// Handler wraps an existing slog.Handler and adds "poll_id" and "conn_id"
// attributes when the context carries them.
type Handler struct {
	inner slog.Handler
}

// NewHandler creates a correlation-aware handler wrapping the given handler.
func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := PollID(ctx); ok {
		r.AddAttrs(slog.String("poll_id", id))
	}
	if id, ok := ConnID(ctx); ok {
		r.AddAttrs(slog.String("conn_id", id))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
