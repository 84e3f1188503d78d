package panicerr

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn so that a panic inside it is returned as an error carrying
// the recovered value and stack.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// SafeContext is Safe for functions that take a context.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Safe(func() error { return fn(ctx) })()
	}
}

// Logged runs fn under Safe and logs any error under name instead of
// returning it. Background loops use it so one bad iteration does not end
// the loop.
func Logged(ctx context.Context, name string, fn func(context.Context) error) {
	if err := SafeContext(fn)(ctx); err != nil {
		slog.ErrorContext(ctx, name+" failed", "error", err)
	}
}
