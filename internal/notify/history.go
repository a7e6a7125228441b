package notify

import (
	"context"
	"log/slog"

	"github.com/me/tradebot/internal/request"
	"github.com/me/tradebot/pkg/model"
)

// Recorder is the subset of store.Store a StoreNotifier writes to.
type Recorder interface {
	RecordEvent(ctx context.Context, ev *model.HistoryEvent) error
}

// StoreNotifier persists lifecycle events. Write failures are logged and
// never reach the routine.
type StoreNotifier struct {
	rec    Recorder
	logger *slog.Logger
}

// NewStoreNotifier creates a StoreNotifier writing to rec.
func NewStoreNotifier(rec Recorder, logger *slog.Logger) *StoreNotifier {
	return &StoreNotifier{rec: rec, logger: logger.With("component", "history")}
}

func (n *StoreNotifier) record(ctx context.Context, event string, req *request.Request, detail string) {
	who := req.Requester()
	ev := &model.HistoryEvent{
		RequesterID:   who.ID,
		RequesterName: who.Name,
		Kind:          req.Kind().String(),
		Code:          req.Code(),
		Event:         event,
		Payload:       label(req.Payload()),
		Detail:        detail,
		Routine:       request.RoutineFromContext(ctx),
	}
	// Persist even when the routine's context is already canceled.
	if err := n.rec.RecordEvent(context.WithoutCancel(ctx), ev); err != nil {
		n.logger.Warn("record event failed", "event", event, "requester", who.Name, "error", err)
	}
}

func (n *StoreNotifier) OnInitialize(ctx context.Context, req *request.Request) {
	n.record(ctx, EventInitialize, req, "")
}

func (n *StoreNotifier) OnSearching(ctx context.Context, req *request.Request) {
	n.record(ctx, EventSearching, req, "")
}

func (n *StoreNotifier) OnCanceled(ctx context.Context, req *request.Request, reason model.Result) {
	n.record(ctx, EventCanceled, req, reason.String())
}

func (n *StoreNotifier) OnFinished(ctx context.Context, req *request.Request, result request.Payload) {
	n.record(ctx, EventFinished, req, label(result))
}

func (n *StoreNotifier) OnMessage(ctx context.Context, req *request.Request, text string) {
	n.record(ctx, EventMessage, req, text)
}
