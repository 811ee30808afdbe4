// Package store defines the record-store boundary used by the cockpit core.
//
// The store is row oriented: questions, answer history, STT sessions and
// their extractions, the project KPI record, its decisions audit log, and the
// read-only user roster. No transactions are assumed across tables; callers
// compensate by writing answer history before every question mutation.
//
// Implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"

	"github.com/MrWong99/cockpit/pkg/types"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("store: not found")

// BacklogStore persists discovery questions and their answer history.
type BacklogStore interface {
	// Questions returns every backlog question in backlog order.
	Questions(ctx context.Context) ([]types.Question, error)

	// UpdateAnswer writes patch to the question identified by id. Returns
	// [ErrNotFound] when no such question exists.
	UpdateAnswer(ctx context.Context, id string, patch types.AnswerPatch) error

	// InsertHistory appends an entry to the answer log. The returned entry
	// carries the store-assigned ID and CreatedAt.
	InsertHistory(ctx context.Context, e types.AnswerHistoryEntry) (types.AnswerHistoryEntry, error)

	// History returns the whole answer log, newest first.
	History(ctx context.Context) ([]types.AnswerHistoryEntry, error)
}

// RosterStore exposes the read-only user roster.
type RosterStore interface {
	// Users returns every user ordered by name.
	Users(ctx context.Context) ([]types.User, error)

	// User returns a single user or [ErrNotFound].
	User(ctx context.Context, id string) (types.User, error)
}

// SessionStore records STT listening sessions and their extractions.
type SessionStore interface {
	// CreateSession opens a session row. ID and StartedAt are assigned by the
	// store when empty.
	CreateSession(ctx context.Context, rec types.SessionRecord) (types.SessionRecord, error)

	// CloseSession stamps the end time and summary counts on a session.
	CloseSession(ctx context.Context, id string, sum types.SessionSummary) error

	// InsertExtraction stores one extraction tagged with sessionID.
	InsertExtraction(ctx context.Context, sessionID string, e types.Extraction) error
}

// ProjectStore holds the project KPI record and its audit log.
type ProjectStore interface {
	// Project returns the project identified by id. An empty id selects the
	// first project, for single-project deployments.
	Project(ctx context.Context, id string) (types.Project, error)

	// UpdateProject applies patch and returns the stored result.
	UpdateProject(ctx context.Context, id string, patch types.ProjectPatch) (types.Project, error)

	// InsertDecision appends an audit row.
	InsertDecision(ctx context.Context, d types.Decision) (types.Decision, error)
}

// Store is the complete record store.
type Store interface {
	BacklogStore
	RosterStore
	SessionStore
	ProjectStore

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error
}
