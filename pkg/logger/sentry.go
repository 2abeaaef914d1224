package logger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
)

// WithSentry returns a logger which also reports error records to the hub.
// Records are reported as exceptions when they carry an "error" attribute and
// as messages otherwise. Other attributes become event tags.
func WithSentry(log Logger, hub *sentry.Hub) Logger {
	return slog.New(&sentryHandler{next: log.Handler(), hub: hub})
}

type sentryHandler struct {
	next  slog.Handler
	hub   *sentry.Hub
	attrs []slog.Attr
}

func (h *sentryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelError || h.next.Enabled(ctx, level)
}

func (h *sentryHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		h.report(r)
	}

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &sentryHandler{next: h.next.WithAttrs(attrs), hub: h.hub, attrs: merged}
}

// groups are only passed through, reported tags stay flat
func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{next: h.next.WithGroup(name), hub: h.hub, attrs: h.attrs}
}

func (h *sentryHandler) report(r slog.Record) {
	var reported error
	tags := make(map[string]string, len(h.attrs)+r.NumAttrs())

	collect := func(a slog.Attr) bool {
		if err, ok := a.Value.Any().(error); ok && a.Key == "error" {
			reported = err
			return true
		}
		tags[a.Key] = a.Value.String()
		return true
	}

	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	h.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetTag("log_message", r.Message)

		if reported == nil {
			h.hub.CaptureMessage(r.Message)
			return
		}
		h.hub.CaptureException(fmt.Errorf("%s: %w", r.Message, reported))
	})
}
