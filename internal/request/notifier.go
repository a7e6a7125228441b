package request

import (
	"context"

	"github.com/me/tradebot/pkg/model"
)

// Notifier receives lifecycle events for a request. Implementations must be
// safe for concurrent use: several routines notify in parallel.
type Notifier interface {
	OnInitialize(ctx context.Context, req *Request)
	OnSearching(ctx context.Context, req *Request)
	OnCanceled(ctx context.Context, req *Request, reason model.Result)
	OnFinished(ctx context.Context, req *Request, result Payload)
	OnMessage(ctx context.Context, req *Request, text string)
}

type ctxKey string

const ctxKeyRoutine ctxKey = "routine"

// WithRoutine returns a context carrying the name of the routine that is
// processing a request.
func WithRoutine(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeyRoutine, name)
}

// RoutineFromContext extracts the routine name from ctx.
func RoutineFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(ctxKeyRoutine).(string); ok {
		return name
	}
	return ""
}
