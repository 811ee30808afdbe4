package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrWong99/cockpit/pkg/types"
)

const projectColumns = `id, name, ttd_current, target_projects_month, budget_total`

// Project implements [store.ProjectStore].
func (s *Store) Project(ctx context.Context, id string) (types.Project, error) {
	q := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	args := []any{id}
	if id == "" {
		q = `SELECT ` + projectColumns + ` FROM projects ORDER BY id LIMIT 1`
		args = nil
	}

	p, err := scanProject(s.db.QueryRow(ctx, q, args...))
	if err != nil {
		return types.Project{}, fmt.Errorf("postgres store: project %q: %w", id, notFound(err))
	}
	return p, nil
}

// UpdateProject implements [store.ProjectStore]. Nil patch fields keep their
// stored value.
func (s *Store) UpdateProject(ctx context.Context, id string, patch types.ProjectPatch) (types.Project, error) {
	const q = `
		UPDATE projects
		SET    ttd_current           = COALESCE($2, ttd_current),
		       target_projects_month = COALESCE($3, target_projects_month),
		       budget_total          = COALESCE($4, budget_total),
		       updated_at            = now()
		WHERE  id = $1
		RETURNING ` + projectColumns

	if id == "" {
		return types.Project{}, errors.New("postgres store: update project: empty id")
	}
	p, err := scanProject(s.db.QueryRow(ctx, q, id, patch.TTDCurrent, patch.TargetProjectsMonth, patch.BudgetTotal))
	if err != nil {
		return types.Project{}, fmt.Errorf("postgres store: update project %s: %w", id, notFound(err))
	}
	return p, nil
}

// InsertDecision implements [store.ProjectStore]. Project states are stored
// as JSONB.
func (s *Store) InsertDecision(ctx context.Context, d types.Decision) (types.Decision, error) {
	const q = `
		INSERT INTO decisions (id, type, title, description, reasoning, made_by, previous_state, new_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	prev, err := marshalState(d.PreviousState)
	if err != nil {
		return types.Decision{}, fmt.Errorf("postgres store: marshal previous state: %w", err)
	}
	next, err := marshalState(d.NewState)
	if err != nil {
		return types.Decision{}, fmt.Errorf("postgres store: marshal new state: %w", err)
	}
	if d.ID == "" {
		d.ID = s.newID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}

	if _, err := s.db.Exec(ctx, q, d.ID, d.Type, d.Title, d.Description, d.Reasoning,
		d.MadeBy, prev, next, d.CreatedAt); err != nil {
		return types.Decision{}, fmt.Errorf("postgres store: insert decision: %w", err)
	}
	return d, nil
}

func marshalState(p *types.Project) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func scanProject(row interface{ Scan(...any) error }) (types.Project, error) {
	var p types.Project
	if err := row.Scan(&p.ID, &p.Name, &p.TTDCurrent, &p.TargetProjectsMonth, &p.BudgetTotal); err != nil {
		return types.Project{}, err
	}
	return p, nil
}
