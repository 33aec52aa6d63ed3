package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		topic          TEXT        NOT NULL,
		unique_id      TEXT        NOT NULL,
		event_name     TEXT        NOT NULL,
		score          BIGINT      NOT NULL,
		block_number   BIGINT      NOT NULL,
		delivery_state TEXT        NOT NULL DEFAULT 'pending',
		attempts       INTEGER     NOT NULL DEFAULT 0,
		last_error     TEXT        NOT NULL DEFAULT '',
		delivered_to   TEXT[]      NOT NULL DEFAULT '{}',
		time_seen      TIMESTAMPTZ NOT NULL,
		doc            JSONB       NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (topic, unique_id)
	)`,
	`CREATE INDEX IF NOT EXISTS events_score_idx ON events (score)`,
	`CREATE INDEX IF NOT EXISTS events_pending_idx ON events (delivery_state, score, time_seen)`,
	`CREATE TABLE IF NOT EXISTS source_cursors (
		source            TEXT PRIMARY KEY,
		last_served_block BIGINT      NOT NULL,
		lookback_distance BIGINT      NOT NULL,
		last_run_at       TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS milestones_state (
		id           TEXT PRIMARY KEY,
		current_goal TEXT        NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS finality_checkpoints (
		epoch       BIGINT PRIMARY KEY,
		delay       BIGINT      NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS labels_cache (
		address    TEXT PRIMARY KEY,
		label      TEXT        NOT NULL,
		source     TEXT        NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for i, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return tx.Commit(ctx)
}
