package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for the history tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS request_events (
		id             TEXT PRIMARY KEY,
		requester_id   TEXT NOT NULL,
		requester_name TEXT NOT NULL DEFAULT '',
		kind           TEXT NOT NULL,
		code           INTEGER NOT NULL DEFAULT -1,
		event          TEXT NOT NULL,
		detail         TEXT NOT NULL DEFAULT '',
		routine        TEXT NOT NULL DEFAULT '',
		created_at     TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_request_events_requester ON request_events(requester_id)`,
	`CREATE INDEX IF NOT EXISTS idx_request_events_event ON request_events(event)`,
	`CREATE INDEX IF NOT EXISTS idx_request_events_created_at ON request_events(created_at)`,
}

// alterStatement adds a column to an existing table.
type alterStatement struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // optional index to create after the column exists
}

// alterStatements run after schema, for databases created before the
// column existed.
var alterStatements = []alterStatement{
	{
		table:    "request_events",
		column:   "payload",
		alterSQL: "ALTER TABLE request_events ADD COLUMN payload TEXT NOT NULL DEFAULT ''",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	exists, err := hasColumn(ctx, db, table, column)
	if err != nil || exists {
		return err
	}
	_, err = db.ExecContext(ctx, alterSQL)
	return err
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}
