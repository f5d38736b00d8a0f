package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/attara/chronicle/core/persistence"
)

// Counters is a SQLite-backed counter store. Each counter is one row
// keyed by category and name, advanced with an atomic upsert.
type Counters struct {
	db *sql.DB
}

// NewCounters builds the counter store and its backing table.
func NewCounters(ctx context.Context, db *sql.DB) (*Counters, error) {
	create := `CREATE TABLE IF NOT EXISTS "counters" (
		category TEXT NOT NULL,
		name TEXT NOT NULL,
		value INTEGER NOT NULL DEFAULT 0,
		last_update_time TEXT NOT NULL,
		PRIMARY KEY (category, name)
	)`
	if _, err := db.ExecContext(ctx, create); err != nil {
		return nil, fmt.Errorf("failed to create counters table: %w", err)
	}
	return &Counters{db: db}, nil
}

// Increment advances the counter and returns the new value. A fresh
// counter starts at zero, so its first increment returns the step.
func (c *Counters) Increment(ctx context.Context, category, name string, step int64) (int64, error) {
	row := c.db.QueryRowContext(ctx, `
		INSERT INTO "counters" (category, name, value, last_update_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (category, name) DO UPDATE SET
			value = value + excluded.value,
			last_update_time = excluded.last_update_time
		RETURNING value`,
		category, name, step, time.Now().UTC().Format(time.RFC3339Nano))
	var value int64
	if err := row.Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to increment counter %s/%s: %w", category, name, err)
	}
	return value, nil
}

// Current reads the counter without advancing it. A fresh counter reads
// zero.
func (c *Counters) Current(ctx context.Context, category, name string) (int64, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT value FROM "counters" WHERE category = ? AND name = ?`, category, name)
	var value int64
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read counter %s/%s: %w", category, name, err)
	}
	return value, nil
}

// Reset restarts the counter from zero.
func (c *Counters) Reset(ctx context.Context, category, name string) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM "counters" WHERE category = ? AND name = ?`, category, name); err != nil {
		return fmt.Errorf("failed to reset counter %s/%s: %w", category, name, err)
	}
	return nil
}

var _ persistence.CounterStore = (*Counters)(nil)
