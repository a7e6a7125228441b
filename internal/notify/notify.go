// Package notify provides request.Notifier implementations: a structured
// log sink, a persistent history sink and a fan-out combinator.
package notify

import (
	"context"
	"log/slog"

	"github.com/me/tradebot/internal/request"
	"github.com/me/tradebot/pkg/model"
)

// Event names used in logs and the history table.
const (
	EventInitialize = "initialize"
	EventSearching  = "searching"
	EventCanceled   = "canceled"
	EventFinished   = "finished"
	EventMessage    = "message"
)

func label(p request.Payload) string {
	if p == nil || p.IsEmpty() {
		return ""
	}
	return p.Label()
}

// LogNotifier writes every lifecycle event to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) log(ctx context.Context, level slog.Level, event string, req *request.Request, attrs ...any) {
	args := []any{
		"event", event,
		"requester", req.Requester().Name,
		"kind", req.Kind().String(),
		"code", req.Code(),
	}
	if routine := request.RoutineFromContext(ctx); routine != "" {
		args = append(args, "routine", routine)
	}
	n.logger.Log(ctx, level, "request "+event, append(args, attrs...)...)
}

func (n *LogNotifier) OnInitialize(ctx context.Context, req *request.Request) {
	n.log(ctx, slog.LevelInfo, EventInitialize, req, "payload", label(req.Payload()))
}

func (n *LogNotifier) OnSearching(ctx context.Context, req *request.Request) {
	n.log(ctx, slog.LevelInfo, EventSearching, req)
}

func (n *LogNotifier) OnCanceled(ctx context.Context, req *request.Request, reason model.Result) {
	n.log(ctx, slog.LevelWarn, EventCanceled, req, "reason", reason.String())
}

func (n *LogNotifier) OnFinished(ctx context.Context, req *request.Request, result request.Payload) {
	n.log(ctx, slog.LevelInfo, EventFinished, req, "sent", label(req.Payload()), "received", label(result))
}

func (n *LogNotifier) OnMessage(ctx context.Context, req *request.Request, text string) {
	n.log(ctx, slog.LevelDebug, EventMessage, req, "text", text)
}

// Multi fans each event out to all notifiers, in order.
type Multi []request.Notifier

func (m Multi) OnInitialize(ctx context.Context, req *request.Request) {
	for _, n := range m {
		n.OnInitialize(ctx, req)
	}
}

func (m Multi) OnSearching(ctx context.Context, req *request.Request) {
	for _, n := range m {
		n.OnSearching(ctx, req)
	}
}

func (m Multi) OnCanceled(ctx context.Context, req *request.Request, reason model.Result) {
	for _, n := range m {
		n.OnCanceled(ctx, req, reason)
	}
}

func (m Multi) OnFinished(ctx context.Context, req *request.Request, result request.Payload) {
	for _, n := range m {
		n.OnFinished(ctx, req, result)
	}
}

func (m Multi) OnMessage(ctx context.Context, req *request.Request, text string) {
	for _, n := range m {
		n.OnMessage(ctx, req, text)
	}
}
