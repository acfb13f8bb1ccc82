package clog

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
)

// AttributesHandler merges the attributes carried by the context into each
// record before passing it on.
type AttributesHandler struct {
	next slog.Handler
}

func NewAttributesHandler(next slog.Handler) *AttributesHandler {
	return &AttributesHandler{next: next}
}

func (h *AttributesHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AttributesHandler) Handle(ctx context.Context, record slog.Record) error {
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		record.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, record)
}

func (h *AttributesHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AttributesHandler{next: h.next.WithAttrs(attrs)}
}

func (h *AttributesHandler) WithGroup(name string) slog.Handler {
	return &AttributesHandler{next: h.next.WithGroup(name)}
}

// attrOrder puts the routing keys first and the error keys last in JSON records.
var attrOrder = map[string]int{
	IssueAttributeKey: -2,
	AgentAttributeKey: -1,
	ErrorAttributeKey: 1,
	StackAttributeKey: 2,
}

func contextAttrs(ctx context.Context) []slog.Attr {
	m := GetAttributes(ctx)
	if len(m) == 0 {
		return nil
	}
	attrs := make([]slog.Attr, 0, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		attrs = append(attrs, slog.Any(k, v))
	}
	slices.SortFunc(attrs, func(a, b slog.Attr) int {
		if c := cmp.Compare(attrOrder[a.Key], attrOrder[b.Key]); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return attrs
}
