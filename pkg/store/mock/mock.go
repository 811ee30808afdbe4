// Package mock provides an in-memory test double for [store.Store].
//
// Unlike a pure stub, Store keeps real state: answers written through it are
// visible to later Questions and History calls, so controller tests can
// assert on the resulting backlog. Every method call is also recorded in
// order, and each write path has an injectable error. All methods are safe
// for concurrent use.
//
// Typical usage:
//
//	s := mock.New()
//	s.SeedQuestions(types.Question{ID: "q1", Text: "Quale CRM usate?"})
//	s.InsertHistoryErr = errors.New("db down")
package mock

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/cockpit/pkg/store"
	"github.com/MrWong99/cockpit/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is an in-memory [store.Store].
type Store struct {
	mu    sync.Mutex
	calls []Call

	questions   []types.Question
	history     []types.AnswerHistoryEntry // oldest first
	users       []types.User
	projects    []types.Project
	sessions    map[string]*sessionRow
	extractions map[string][]types.Extraction
	decisions   []types.Decision

	// Now is the clock used for created_at values. Defaults to time.Now.
	Now func() time.Time

	QuestionsErr        error
	UpdateAnswerErr     error
	InsertHistoryErr    error
	HistoryErr          error
	UsersErr            error
	CreateSessionErr    error
	CloseSessionErr     error
	InsertExtractionErr error
	ProjectErr          error
	UpdateProjectErr    error
	InsertDecisionErr   error
	PingErr             error
}

type sessionRow struct {
	rec     types.SessionRecord
	summary *types.SessionSummary
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions:    make(map[string]*sessionRow),
		extractions: make(map[string][]types.Extraction),
	}
}

// SeedQuestions appends questions to the backlog.
func (s *Store) SeedQuestions(qs ...types.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, qs...)
}

// SeedUsers appends users to the roster.
func (s *Store) SeedUsers(us ...types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, us...)
}

// SeedProject adds a project record.
func (s *Store) SeedProject(p types.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = append(s.projects, p)
}

// Calls returns a copy of all recorded method invocations.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallCount returns how many times the named method was invoked.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Methods returns the recorded method names in call order.
func (s *Store) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Method
	}
	return out
}

// Reset clears recorded calls without touching state or error injection.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Extractions returns the extractions stored under sessionID.
func (s *Store) Extractions(sessionID string) []types.Extraction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.extractions[sessionID])
}

// Decisions returns the audit rows, oldest first.
func (s *Store) Decisions() []types.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.decisions)
}

// Session returns the session record and its closing summary, if closed.
func (s *Store) Session(id string) (types.SessionRecord, *types.SessionSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sessions[id]
	if !ok {
		return types.SessionRecord{}, nil, false
	}
	return row.rec, row.summary, true
}

func (s *Store) record(method string, args ...any) {
	s.calls = append(s.calls, Call{Method: method, Args: args})
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Questions implements [store.BacklogStore].
func (s *Store) Questions(_ context.Context) ([]types.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Questions")
	if s.QuestionsErr != nil {
		return nil, s.QuestionsErr
	}
	out := make([]types.Question, len(s.questions))
	for i, q := range s.questions {
		q.MentionedUsers = slices.Clone(q.MentionedUsers)
		out[i] = q
	}
	return out, nil
}

// UpdateAnswer implements [store.BacklogStore].
func (s *Store) UpdateAnswer(_ context.Context, id string, patch types.AnswerPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateAnswer", id, patch)
	if s.UpdateAnswerErr != nil {
		return s.UpdateAnswerErr
	}
	i := slices.IndexFunc(s.questions, func(q types.Question) bool { return q.ID == id })
	if i < 0 {
		return store.ErrNotFound
	}
	q := &s.questions[i]
	if !patch.Answered {
		q.Answered, q.Answer, q.AnsweredBy, q.AnsweredAt, q.MentionedUsers = false, "", "", nil, nil
		return nil
	}
	at := patch.AnsweredAt
	q.Answered = true
	q.Answer = patch.Answer
	q.AnsweredBy = patch.AnsweredBy
	q.AnsweredAt = &at
	q.MentionedUsers = slices.Clone(patch.MentionedUsers)
	return nil
}

// InsertHistory implements [store.BacklogStore].
func (s *Store) InsertHistory(_ context.Context, e types.AnswerHistoryEntry) (types.AnswerHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("InsertHistory", e)
	if s.InsertHistoryErr != nil {
		return types.AnswerHistoryEntry{}, s.InsertHistoryErr
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.history = append(s.history, e)
	return e, nil
}

// History implements [store.BacklogStore]. Entries are returned newest first;
// entries sharing a timestamp keep reverse insertion order.
func (s *Store) History(_ context.Context) ([]types.AnswerHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("History")
	if s.HistoryErr != nil {
		return nil, s.HistoryErr
	}
	out := slices.Clone(s.history)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b types.AnswerHistoryEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Users implements [store.RosterStore].
func (s *Store) Users(_ context.Context) ([]types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Users")
	if s.UsersErr != nil {
		return nil, s.UsersErr
	}
	out := slices.Clone(s.users)
	slices.SortStableFunc(out, func(a, b types.User) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// User implements [store.RosterStore].
func (s *Store) User(_ context.Context, id string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("User", id)
	if s.UsersErr != nil {
		return types.User{}, s.UsersErr
	}
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

// CreateSession implements [store.SessionStore].
func (s *Store) CreateSession(_ context.Context, rec types.SessionRecord) (types.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreateSession", rec)
	if s.CreateSessionErr != nil {
		return types.SessionRecord{}, s.CreateSessionErr
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.now()
	}
	s.sessions[rec.ID] = &sessionRow{rec: rec}
	return rec, nil
}

// CloseSession implements [store.SessionStore].
func (s *Store) CloseSession(_ context.Context, id string, sum types.SessionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CloseSession", id, sum)
	if s.CloseSessionErr != nil {
		return s.CloseSessionErr
	}
	row, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	ended := sum.EndedAt
	row.rec.EndedAt = &ended
	row.summary = &sum
	return nil
}

// InsertExtraction implements [store.SessionStore].
func (s *Store) InsertExtraction(_ context.Context, sessionID string, e types.Extraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("InsertExtraction", sessionID, e)
	if s.InsertExtractionErr != nil {
		return s.InsertExtractionErr
	}
	s.extractions[sessionID] = append(s.extractions[sessionID], e)
	return nil
}

// Project implements [store.ProjectStore].
func (s *Store) Project(_ context.Context, id string) (types.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Project", id)
	if s.ProjectErr != nil {
		return types.Project{}, s.ProjectErr
	}
	for _, p := range s.projects {
		if id == "" || p.ID == id {
			return p, nil
		}
	}
	return types.Project{}, store.ErrNotFound
}

// UpdateProject implements [store.ProjectStore].
func (s *Store) UpdateProject(_ context.Context, id string, patch types.ProjectPatch) (types.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateProject", id, patch)
	if s.UpdateProjectErr != nil {
		return types.Project{}, s.UpdateProjectErr
	}
	for i, p := range s.projects {
		if p.ID == id {
			s.projects[i] = patch.Apply(p)
			return s.projects[i], nil
		}
	}
	return types.Project{}, store.ErrNotFound
}

// InsertDecision implements [store.ProjectStore].
func (s *Store) InsertDecision(_ context.Context, d types.Decision) (types.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("InsertDecision", d)
	if s.InsertDecisionErr != nil {
		return types.Decision{}, s.InsertDecisionErr
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	s.decisions = append(s.decisions, d)
	return d, nil
}

// Ping implements [store.Store].
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Ping")
	return s.PingErr
}
