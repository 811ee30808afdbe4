package postgres

import (
	"context"
	"fmt"
)

// Schema is the DDL for every table the cockpit reads or writes. Apply it via
// [Store.Migrate] or during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id   TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'team_member'
);

CREATE TABLE IF NOT EXISTS projects (
    id                    TEXT PRIMARY KEY,
    name                  TEXT NOT NULL DEFAULT '',
    ttd_current           INTEGER,
    target_projects_month INTEGER,
    budget_total          INTEGER,
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS discovery_questions (
    id              TEXT PRIMARY KEY,
    category        TEXT NOT NULL DEFAULT '',
    text            TEXT NOT NULL,
    priority        TEXT NOT NULL DEFAULT 'medium',
    sort_order      INTEGER NOT NULL DEFAULT 0,
    answered        BOOLEAN NOT NULL DEFAULT false,
    answer          TEXT,
    answered_by     TEXT,
    answered_at     TIMESTAMPTZ,
    mentioned_users TEXT[]
);

CREATE TABLE IF NOT EXISTS answer_history (
    id              TEXT PRIMARY KEY,
    question_id     TEXT NOT NULL REFERENCES discovery_questions(id) ON DELETE CASCADE,
    answer          TEXT NOT NULL DEFAULT '',
    answered_by     TEXT NOT NULL DEFAULT '',
    mentioned_users TEXT[],
    source          TEXT NOT NULL CHECK (source IN ('manual', 'stt', 'stt_correction')),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_answer_history_question ON answer_history(question_id, created_at DESC);

CREATE TABLE IF NOT EXISTS stt_sessions (
    id               TEXT PRIMARY KEY,
    project_id       TEXT NOT NULL DEFAULT '',
    started_by       TEXT NOT NULL DEFAULT '',
    started_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    ended_at         TIMESTAMPTZ,
    transcript_count INTEGER NOT NULL DEFAULT 0,
    extraction_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stt_extractions (
    id         BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES stt_sessions(id) ON DELETE CASCADE,
    field      TEXT NOT NULL,
    value      TEXT NOT NULL,
    confidence TEXT NOT NULL,
    category   TEXT NOT NULL,
    quote      TEXT,
    confirmed  BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_stt_extractions_session ON stt_extractions(session_id);

CREATE TABLE IF NOT EXISTS decisions (
    id             TEXT PRIMARY KEY,
    type           TEXT NOT NULL,
    title          TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    reasoning      TEXT NOT NULL DEFAULT '',
    made_by        TEXT NOT NULL DEFAULT '',
    previous_state JSONB,
    new_state      JSONB,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate executes [Schema]. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres store: migrate: %w", err)
	}
	return nil
}
