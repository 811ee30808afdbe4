package postgres

import (
	"context"
	"fmt"

	"github.com/MrWong99/cockpit/pkg/store"
	"github.com/MrWong99/cockpit/pkg/types"
)

// CreateSession implements [store.SessionStore].
func (s *Store) CreateSession(ctx context.Context, rec types.SessionRecord) (types.SessionRecord, error) {
	const q = `
		INSERT INTO stt_sessions (id, project_id, started_by, started_at)
		VALUES ($1, $2, $3, $4)`

	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.now()
	}
	if _, err := s.db.Exec(ctx, q, rec.ID, rec.ProjectID, rec.StartedBy, rec.StartedAt); err != nil {
		return types.SessionRecord{}, fmt.Errorf("postgres store: create session: %w", err)
	}
	return rec, nil
}

// CloseSession implements [store.SessionStore].
func (s *Store) CloseSession(ctx context.Context, id string, sum types.SessionSummary) error {
	const q = `
		UPDATE stt_sessions
		SET    ended_at = $2, transcript_count = $3, extraction_count = $4
		WHERE  id = $1`

	tag, err := s.db.Exec(ctx, q, id, sum.EndedAt, sum.TranscriptCount, sum.ExtractionCount)
	if err != nil {
		return fmt.Errorf("postgres store: close session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres store: close session %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// InsertExtraction implements [store.SessionStore]. Extractions are stored
// unconfirmed.
func (s *Store) InsertExtraction(ctx context.Context, sessionID string, e types.Extraction) error {
	const q = `
		INSERT INTO stt_extractions (session_id, field, value, confidence, category, quote, confirmed)
		VALUES ($1, $2, $3, $4, $5, $6, false)`

	if _, err := s.db.Exec(ctx, q, sessionID, string(e.Field), e.Value,
		string(e.Confidence), string(e.Category), nullString(e.Quote)); err != nil {
		return fmt.Errorf("postgres store: insert extraction: %w", err)
	}
	return nil
}
