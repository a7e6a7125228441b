package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/me/tradebot/pkg/model"

	_ "modernc.org/sqlite"
)

// timeLayout is RFC 3339 with a fixed-width fraction so stored timestamps
// sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, ev *model.HistoryEvent) error {
	if ev.ID == "" {
		ev.ID = "evt_" + uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	s.logger.Debug("sql", "op", "insert", "table", "request_events", "id", ev.ID, "event", ev.Event)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_events (id, requester_id, requester_name, kind, code, event, payload, detail, routine, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RequesterID, ev.RequesterName, ev.Kind, ev.Code, ev.Event,
		ev.Payload, ev.Detail, ev.Routine, ev.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, opts model.ListOptions) ([]*model.HistoryEvent, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "request_events", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var conds []string
	var args []any
	if opts.RequesterID != "" {
		conds = append(conds, "requester_id = ?")
		args = append(args, opts.RequesterID)
	}
	if opts.Event != "" {
		conds = append(conds, "event = ?")
		args = append(args, opts.Event)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM request_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, requester_id, requester_name, kind, code, event, payload, detail, routine, created_at
		 FROM request_events`+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*model.HistoryEvent
	for rows.Next() {
		var ev model.HistoryEvent
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.RequesterID, &ev.RequesterName, &ev.Kind, &ev.Code, &ev.Event,
			&ev.Payload, &ev.Detail, &ev.Routine, &createdAt); err != nil {
			return nil, 0, err
		}
		ev.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		events = append(events, &ev)
	}
	return events, total, rows.Err()
}

func (s *SQLiteStore) CountByEvent(ctx context.Context) (map[string]int, error) {
	s.logger.Debug("sql", "op", "count", "table", "request_events")

	rows, err := s.db.QueryContext(ctx, `SELECT event, COUNT(*) FROM request_events GROUP BY event`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var event string
		var n int
		if err := rows.Scan(&event, &n); err != nil {
			return nil, err
		}
		counts[event] = n
	}
	return counts, rows.Err()
}
