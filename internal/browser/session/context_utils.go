// Package session holds the context plumbing shared by every chromedp call:
// operation deadlines layered onto a tab context, and detached contexts for
// teardown that must survive cancellation of the run.
package session

import (
	"context"
	"time"
)

// CombineContext returns a context derived from tabCtx, so it carries the
// chromedp target, that is also canceled when opCtx is done. opCtx usually
// carries the per-operation deadline.
func CombineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(tabCtx)

	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext keeps its parent's values but none of its deadline or
// cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }

func (valueOnlyContext) Done() <-chan struct{} { return nil }

func (valueOnlyContext) Err() error { return nil }

// Detach returns a context that inherits values from ctx but is never
// canceled by it. Browser teardown runs on a detached context.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}

// WithTimeoutDetached detaches ctx and bounds the result by d.
func WithTimeoutDetached(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(Detach(ctx), d)
}
