package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies the schema. Idempotent; runs at startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id      TEXT PRIMARY KEY,
			sender  TEXT NOT NULL,
			body    TEXT NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_sent_at ON chat_messages (sent_at DESC)`,
		`CREATE TABLE IF NOT EXISTS participants (
			connection_id TEXT PRIMARY KEY,
			client_id     TEXT NOT NULL,
			name          TEXT NOT NULL,
			joined_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS poll_questions (
			id           TEXT PRIMARY KEY,
			body         TEXT NOT NULL,
			options      TEXT[] NOT NULL,
			started_at   TIMESTAMPTZ NOT NULL,
			duration_sec INT NOT NULL,
			completed    BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS poll_answers (
			question_id  TEXT NOT NULL,
			student_id   TEXT NOT NULL,
			student_name TEXT,
			option_index INT NOT NULL,
			answered_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (question_id, student_id)
		)`,
		`CREATE TABLE IF NOT EXISTS poll_history (
			id           TEXT PRIMARY KEY,
			body         TEXT NOT NULL,
			options      TEXT[] NOT NULL,
			counts       INT[] NOT NULL,
			total        INT NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_poll_history_completed_at ON poll_history (completed_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
