package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/cockpit/pkg/store"
	"github.com/MrWong99/cockpit/pkg/types"
)

// Questions implements [store.BacklogStore].
func (s *Store) Questions(ctx context.Context) ([]types.Question, error) {
	const q = `
		SELECT id, category, text, priority, answered, answer, answered_by, answered_at, mentioned_users
		FROM   discovery_questions
		ORDER  BY sort_order, id`

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: questions: %w", err)
	}
	defer rows.Close()

	var out []types.Question
	for rows.Next() {
		var (
			qu         types.Question
			priority   string
			answer     *string
			answeredBy *string
			answeredAt *time.Time
		)
		if err := rows.Scan(&qu.ID, &qu.Category, &qu.Text, &priority, &qu.Answered,
			&answer, &answeredBy, &answeredAt, &qu.MentionedUsers); err != nil {
			return nil, fmt.Errorf("postgres store: scan question: %w", err)
		}
		qu.Priority = types.Priority(priority)
		qu.Answer = deref(answer)
		qu.AnsweredBy = deref(answeredBy)
		qu.AnsweredAt = answeredAt
		out = append(out, qu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: questions: %w", err)
	}
	return out, nil
}

// UpdateAnswer implements [store.BacklogStore]. A patch with Answered=false
// nulls every answer column.
func (s *Store) UpdateAnswer(ctx context.Context, id string, patch types.AnswerPatch) error {
	const q = `
		UPDATE discovery_questions
		SET    answered = $2, answer = $3, answered_by = $4, answered_at = $5, mentioned_users = $6
		WHERE  id = $1`

	var (
		answer, by *string
		at         *time.Time
		mentions   []string
	)
	if patch.Answered {
		answer = nullString(patch.Answer)
		by = nullString(patch.AnsweredBy)
		t := patch.AnsweredAt
		at = &t
		mentions = patch.MentionedUsers
	}

	tag, err := s.db.Exec(ctx, q, id, patch.Answered, answer, by, at, mentions)
	if err != nil {
		return fmt.Errorf("postgres store: update answer %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres store: update answer %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// InsertHistory implements [store.BacklogStore].
func (s *Store) InsertHistory(ctx context.Context, e types.AnswerHistoryEntry) (types.AnswerHistoryEntry, error) {
	const q = `
		INSERT INTO answer_history (id, question_id, answer, answered_by, mentioned_users, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if !e.Source.IsValid() {
		return types.AnswerHistoryEntry{}, fmt.Errorf("postgres store: insert history: invalid source %q", e.Source)
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	if _, err := s.db.Exec(ctx, q, e.ID, e.QuestionID, e.Answer, e.AnsweredBy,
		e.MentionedUsers, string(e.Source), e.CreatedAt); err != nil {
		return types.AnswerHistoryEntry{}, fmt.Errorf("postgres store: insert history: %w", err)
	}
	return e, nil
}

// History implements [store.BacklogStore].
func (s *Store) History(ctx context.Context) ([]types.AnswerHistoryEntry, error) {
	const q = `
		SELECT id, question_id, answer, answered_by, mentioned_users, source, created_at
		FROM   answer_history
		ORDER  BY created_at DESC`

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: history: %w", err)
	}
	defer rows.Close()

	var out []types.AnswerHistoryEntry
	for rows.Next() {
		var (
			e      types.AnswerHistoryEntry
			source string
		)
		if err := rows.Scan(&e.ID, &e.QuestionID, &e.Answer, &e.AnsweredBy,
			&e.MentionedUsers, &source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan history: %w", err)
		}
		e.Source = types.AnswerSource(source)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: history: %w", err)
	}
	return out, nil
}

// Users implements [store.RosterStore].
func (s *Store) Users(ctx context.Context) ([]types.User, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, role FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (types.User, error) {
		return scanUser(r)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: users: %w", err)
	}
	return users, nil
}

// User implements [store.RosterStore].
func (s *Store) User(ctx context.Context, id string) (types.User, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, role FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return types.User{}, fmt.Errorf("postgres store: user %s: %w", id, notFound(err))
	}
	return u, nil
}

func scanUser(row pgx.Row) (types.User, error) {
	var (
		u    types.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &role); err != nil {
		return types.User{}, err
	}
	u.Role = types.Role(role)
	return u, nil
}
