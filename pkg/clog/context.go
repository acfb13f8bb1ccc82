package clog

import (
	"context"
	"maps"
	"sync"
)

type ctxSlog struct {
	mu         sync.RWMutex
	attributes map[string]any
}

type ctxSlogKey struct{}

func ContextWithSlog(ctx context.Context) context.Context {
	ctxSlog := &ctxSlog{
		attributes: make(map[string]any),
	}
	return context.WithValue(ctx, ctxSlogKey{}, ctxSlog)
}

func AddAttribute(ctx context.Context, key string, value any) {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attributes[key] = value
}

func GetAttribute[T any](ctx context.Context, key string) T {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return *new(T)
	}
	l.mu.RLock()
	iVal, ok := l.attributes[key]
	l.mu.RUnlock()
	if !ok {
		return *new(T)
	}
	v, ok := iVal.(T)
	if !ok {
		return *new(T)
	}
	return v
}

const (
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
	IssueAttributeKey = "issue"
	AgentAttributeKey = "agent"
)

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func GetError(ctx context.Context) error {
	return GetAttribute[error](ctx, ErrorAttributeKey)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}

// WithIssue returns a child logging context scoped to one issue.
func WithIssue(ctx context.Context, issue int) context.Context {
	ctx = fork(ctx)
	AddAttribute(ctx, IssueAttributeKey, issue)
	return ctx
}

// WithAgent returns a child logging context scoped to one agent.
func WithAgent(ctx context.Context, agent string) context.Context {
	ctx = fork(ctx)
	AddAttribute(ctx, AgentAttributeKey, agent)
	return ctx
}

func fork(ctx context.Context) context.Context {
	parent := GetAttributes(ctx)
	child := ContextWithSlog(ctx)
	l := child.Value(ctxSlogKey{}).(*ctxSlog)
	maps.Copy(l.attributes, parent)
	return child
}

func (c *ctxSlog) getAttributes() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.attributes)
}

func GetAttributes(ctx context.Context) map[string]any {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return nil
	}
	return l.getAttributes()
}
