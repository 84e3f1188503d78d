package clog

import (
	"context"
	"maps"
	"sync"
)

const (
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
)

// bag holds the attributes a request accumulates on its way through
// middlewares and handlers. They are attached to every record logged with
// the request context by AttributesHandler.
type bag struct {
	mu    sync.RWMutex
	attrs map[string]any
}

type bagKey struct{}

func bagFrom(ctx context.Context) *bag {
	b, _ := ctx.Value(bagKey{}).(*bag)
	return b
}

// ContextWithSlog returns ctx carrying an attribute bag. A context that
// already has one is returned unchanged so nested middlewares share it.
func ContextWithSlog(ctx context.Context) context.Context {
	if bagFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, bagKey{}, &bag{attrs: map[string]any{}})
}

func AddAttribute(ctx context.Context, key string, value any) {
	b := bagFrom(ctx)
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attrs[key] = value
}

// AddAttributes merges attributes into the bag. Nested maps are merged key
// by key instead of replaced.
func AddAttributes(ctx context.Context, attributes map[string]any) {
	b := bagFrom(ctx)
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	merge(b.attrs, attributes)
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if existing, ok := dst[k].(map[string]any); ok {
			merge(existing, sub)
			continue
		}
		dst[k] = maps.Clone(sub)
	}
}

// GetAttribute returns the attribute under key, or the zero value when it
// is missing or of another type.
func GetAttribute[T any](ctx context.Context, key string) T {
	var zero T
	b := bagFrom(ctx)
	if b == nil {
		return zero
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.attrs[key].(T)
	if !ok {
		return zero
	}
	return v
}

// GetAttributes returns a shallow copy of the bag, or nil without one.
func GetAttributes(ctx context.Context) map[string]any {
	b := bagFrom(ctx)
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.attrs)
}

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func GetError(ctx context.Context) error {
	return GetAttribute[error](ctx, ErrorAttributeKey)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}

func GetStack(ctx context.Context) string {
	return GetAttribute[string](ctx, StackAttributeKey)
}
