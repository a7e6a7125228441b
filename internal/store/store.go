package store

import (
	"context"

	"github.com/me/tradebot/pkg/model"
)

// Store persists the lifecycle history of trade requests.
type Store interface {
	// RecordEvent appends one lifecycle event. ID and CreatedAt are filled
	// in when empty.
	RecordEvent(ctx context.Context, ev *model.HistoryEvent) error
	// ListEvents returns events newest first, filtered by opts, together
	// with the total number of matching events.
	ListEvents(ctx context.Context, opts model.ListOptions) ([]*model.HistoryEvent, int, error)
	// CountByEvent returns the number of stored events per event name.
	CountByEvent(ctx context.Context) (map[string]int, error)

	Close() error
	Migrate(ctx context.Context) error
}
