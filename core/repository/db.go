package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// DB wraps the PostgreSQL connection pool
type DB struct {
	*sql.DB
}

// NewDB opens and pings a PostgreSQL database
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	input_path TEXT NOT NULL,
	work_dir TEXT NOT NULL,
	policy_yaml TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	outcome TEXT,
	iterations_used INTEGER NOT NULL DEFAULT 0,
	final_mesh_location TEXT,
	last_report JSONB,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS run_events (
	id BIGSERIAL PRIMARY KEY,
	run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	at TIMESTAMPTZ NOT NULL,
	from_state TEXT,
	to_state TEXT NOT NULL,
	reason TEXT NOT NULL,
	iteration INTEGER NOT NULL DEFAULT 0,
	meta_json JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS run_events_run_id_idx ON run_events (run_id, id);

CREATE TABLE IF NOT EXISTS run_artifacts (
	id BIGSERIAL PRIMARY KEY,
	run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	uri TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	meta_json JSONB NOT NULL DEFAULT '{}'
);
`

// Migrate creates the tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
