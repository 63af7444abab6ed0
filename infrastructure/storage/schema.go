package storage

import (
	"context"
	"fmt"
	"strings"
)

// schema is applied statement by statement. {{ts}} expands to the dialect's
// timestamp type.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS contests (
		id       TEXT PRIMARY KEY,
		revision BIGINT NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS contest_results (
		id              TEXT PRIMARY KEY,
		contest_id      TEXT NOT NULL,
		seq             BIGINT NOT NULL,
		model_id        TEXT NOT NULL,
		round_id        TEXT NOT NULL,
		round_index     INTEGER,
		user_score      DOUBLE PRECISION,
		arbiter_score   DOUBLE PRECISION,
		criteria_scores TEXT NOT NULL DEFAULT '',
		response_text   TEXT NOT NULL DEFAULT '',
		updated_at      {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contest_results_contest ON contest_results(contest_id, seq)`,

	`CREATE TABLE IF NOT EXISTS interview_sessions (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		role            TEXT NOT NULL,
		candidate_model TEXT NOT NULL,
		transcript      TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		verdict         TEXT,
		completed_at    {{ts}},
		created_at      {{ts}} NOT NULL,
		updated_at      {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_interview_sessions_status ON interview_sessions(status, updated_at)`,

	`CREATE TABLE IF NOT EXISTS role_assignment_history (
		id                  TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL,
		role                TEXT NOT NULL,
		model_id            TEXT NOT NULL,
		assigned_at         {{ts}} NOT NULL,
		removed_at          {{ts}},
		removal_reason      TEXT NOT NULL DEFAULT '',
		interview_avg_score DOUBLE PRECISION,
		is_synthetic        BOOLEAN NOT NULL DEFAULT FALSE,
		metadata            TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_role_assignment_user_role ON role_assignment_history(user_id, role, assigned_at)`,

	`CREATE TABLE IF NOT EXISTS evolution_records (
		id            TEXT PRIMARY KEY,
		code          TEXT NOT NULL UNIQUE,
		contest_id    TEXT NOT NULL DEFAULT '',
		result_id     TEXT NOT NULL UNIQUE,
		model_id      TEXT NOT NULL,
		round_id      TEXT NOT NULL DEFAULT '',
		user_score    DOUBLE PRECISION NOT NULL,
		arbiter_score DOUBLE PRECISION NOT NULL,
		delta         DOUBLE PRECISION NOT NULL,
		hypothesis    TEXT NOT NULL DEFAULT '',
		created_at    {{ts}} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		kind       TEXT NOT NULL,
		title      TEXT NOT NULL,
		body       TEXT NOT NULL DEFAULT '',
		reference  TEXT NOT NULL DEFAULT '',
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, kind, reference)`,

	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id TEXT NOT NULL,
		role    TEXT NOT NULL,
		PRIMARY KEY (user_id, role)
	)`,
}

// timestampType returns the column type that round-trips time.Time. The
// sqlite driver only parses columns declared exactly as TIMESTAMP.
func timestampType(d Dialect) string {
	if d == DialectPostgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

// Migrate creates every table and index. It is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	ts := timestampType(d.dialect)
	for i, stmt := range schema {
		stmt = strings.ReplaceAll(stmt, "{{ts}}", ts)
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, mapError("schema", "Migrate", err))
		}
	}
	return nil
}
