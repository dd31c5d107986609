// Package testutil holds shared helpers for service and handler tests.
package testutil

import (
	"context"
	"time"

	"crosswalk/pkg/requestcontext"
)

// Clock is the instant tests pin the request clock to unless they need
// their own. Pinning keeps every timestamp a service writes in one call
// equal and assertable.
var Clock = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Context returns a background context with the clock pinned to Clock
// and the given actor identity set.
func Context(actor string) context.Context {
	return ContextAt(Clock, actor)
}

// ContextAt pins an explicit instant. Use it when a test needs the
// clock to advance between calls (evidence expiry, effective dates).
func ContextAt(at time.Time, actor string) context.Context {
	ctx := requestcontext.WithTime(context.Background(), at)
	if actor != "" {
		ctx = requestcontext.WithActor(ctx, actor)
	}
	return ctx
}
