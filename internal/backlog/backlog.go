// Package backlog owns the live discovery backlog: the question list, the
// append-only answer history, the cached user roster and the in-process
// LastAnswered pointer that gates corrections.
//
// Every answer mutation goes through [Service.Record], which persists the
// history entry before touching the question. If the history write fails the
// mutation is abandoned; if the question update fails the history row stays
// (the log is append-only) but the in-memory question is left untouched.
package backlog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/MrWong99/cockpit/internal/analysis"
	"github.com/MrWong99/cockpit/internal/observe"
	"github.com/MrWong99/cockpit/pkg/store"
	"github.com/MrWong99/cockpit/pkg/types"
)

var (
	// ErrEmptyAnswer is returned when a manual answer is blank.
	ErrEmptyAnswer = errors.New("backlog: empty answer")

	// ErrUnknownQuestion is returned for ids not in the backlog.
	ErrUnknownQuestion = errors.New("backlog: unknown question")

	// ErrNotAnswered is returned when editing a question that has no answer.
	ErrNotAnswered = errors.New("backlog: question not answered")
)

const (
	rosterKey        = "roster"
	defaultRosterTTL = 5 * time.Minute
)

// Store is the subset of [store.Store] the backlog needs.
type Store interface {
	store.BacklogStore
	store.RosterStore
}

// LastAnswered points at the most recent answer. It is never persisted.
type LastAnswered struct {
	QuestionID string
	At         time.Time
}

// Option configures a [Service].
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRosterTTL sets how long the user roster is cached.
func WithRosterTTL(d time.Duration) Option {
	return func(s *Service) { s.rosterTTL = d }
}

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service is safe for concurrent use.
type Service struct {
	store     Store
	now       func() time.Time
	rosterTTL time.Duration
	roster    *cache.Cache
	metrics   *observe.Metrics

	// writeMu serialises answer mutations so each history/update pair
	// reaches the store without interleaving.
	writeMu sync.Mutex

	mu        sync.RWMutex
	questions []types.Question
	history   []types.AnswerHistoryEntry // newest first
	last      *LastAnswered
}

// New creates a Service. Call [Service.Load] before use.
func New(st Store, opts ...Option) *Service {
	s := &Service{
		store:     st,
		now:       time.Now,
		rosterTTL: defaultRosterTTL,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.roster = cache.New(s.rosterTTL, 2*s.rosterTTL)
	return s
}

// Load replaces the in-memory backlog with the store's contents.
func (s *Service) Load(ctx context.Context) error {
	qs, err := s.store.Questions(ctx)
	if err != nil {
		return fmt.Errorf("backlog: load questions: %w", err)
	}
	hist, err := s.store.History(ctx)
	if err != nil {
		return fmt.Errorf("backlog: load history: %w", err)
	}

	s.mu.Lock()
	s.questions = qs
	s.history = hist
	s.mu.Unlock()
	return nil
}

// Roster returns the user roster, served from cache while fresh.
func (s *Service) Roster(ctx context.Context) ([]types.User, error) {
	if v, ok := s.roster.Get(rosterKey); ok {
		return slices.Clone(v.([]types.User)), nil
	}
	users, err := s.store.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("backlog: load roster: %w", err)
	}
	s.roster.Set(rosterKey, users, cache.DefaultExpiration)
	return slices.Clone(users), nil
}

// InvalidateRoster drops the cached roster.
func (s *Service) InvalidateRoster() { s.roster.Delete(rosterKey) }

// User resolves a roster user by id.
func (s *Service) User(ctx context.Context, id string) (types.User, error) {
	users, err := s.Roster(ctx)
	if err != nil {
		return types.User{}, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return types.User{}, fmt.Errorf("backlog: user %s: %w", id, store.ErrNotFound)
}

// Questions returns a snapshot of the backlog in order.
func (s *Service) Questions() []types.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneQuestions(s.questions)
}

// Question returns the question with id.
func (s *Service) Question(id string) (types.Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return types.Question{}, false
	}
	q := s.questions[i]
	q.MentionedUsers = slices.Clone(q.MentionedUsers)
	return q, true
}

// History returns the whole answer log, newest first.
func (s *Service) History() []types.AnswerHistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history)
}

// QuestionHistory returns the log entries for one question, newest first.
func (s *Service) QuestionHistory(questionID string) []types.AnswerHistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.AnswerHistoryEntry
	for _, e := range s.history {
		if e.QuestionID == questionID {
			out = append(out, e)
		}
	}
	return out
}

// HistoryForUser returns the log entries that mention userID, newest first.
func (s *Service) HistoryForUser(userID string) []types.AnswerHistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.AnswerHistoryEntry
	for _, e := range s.history {
		if slices.Contains(e.MentionedUsers, userID) {
			out = append(out, e)
		}
	}
	return out
}

// QuestionsAboutUser returns the questions whose current answer mentions
// userID.
func (s *Service) QuestionsAboutUser(userID string) []types.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Question
	for _, q := range s.questions {
		if slices.Contains(q.MentionedUsers, userID) {
			q.MentionedUsers = slices.Clone(q.MentionedUsers)
			out = append(out, q)
		}
	}
	return out
}

// LastAnswered returns the most recent answer pointer.
func (s *Service) LastAnswered() (LastAnswered, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return LastAnswered{}, false
	}
	return *s.last, true
}

// CorrectionTarget returns the last answered question when it was answered
// strictly less than window before now.
func (s *Service) CorrectionTarget(now time.Time, window time.Duration) (types.Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil || now.Sub(s.last.At) >= window {
		return types.Question{}, false
	}
	i := s.indexOf(s.last.QuestionID)
	if i < 0 {
		return types.Question{}, false
	}
	q := s.questions[i]
	q.MentionedUsers = slices.Clone(q.MentionedUsers)
	return q, true
}

// Mutation describes one answer change.
type Mutation struct {
	QuestionID string

	// Entry is the history row. QuestionID and CreatedAt are filled in.
	Entry types.AnswerHistoryEntry

	// Patch is applied to the question after the history row is stored.
	Patch types.AnswerPatch

	// Track updates the LastAnswered pointer on success.
	Track bool
}

// Record persists a history entry and then the question patch, and applies
// both in memory. It returns the updated question.
func (s *Service) Record(ctx context.Context, m Mutation) (types.Question, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, ok := s.Question(m.QuestionID); !ok {
		return types.Question{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, m.QuestionID)
	}

	m.Entry.QuestionID = m.QuestionID
	if m.Entry.CreatedAt.IsZero() {
		m.Entry.CreatedAt = s.now()
	}
	entry, err := s.store.InsertHistory(ctx, m.Entry)
	if err != nil {
		s.metrics.RecordStoreError(ctx, "insert_history")
		return types.Question{}, fmt.Errorf("backlog: write history for %s: %w", m.QuestionID, err)
	}
	s.mu.Lock()
	s.history = slices.Insert(s.history, 0, entry)
	s.mu.Unlock()

	if m.Patch.Answered && m.Patch.AnsweredAt.IsZero() {
		m.Patch.AnsweredAt = entry.CreatedAt
	}
	if err := s.store.UpdateAnswer(ctx, m.QuestionID, m.Patch); err != nil {
		s.metrics.RecordStoreError(ctx, "update_answer")
		return types.Question{}, fmt.Errorf("backlog: update question %s: %w", m.QuestionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(m.QuestionID)
	if i < 0 {
		return types.Question{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, m.QuestionID)
	}
	applyPatch(&s.questions[i], m.Patch)
	switch {
	case m.Track && m.Patch.Answered:
		s.last = &LastAnswered{QuestionID: m.QuestionID, At: m.Patch.AnsweredAt}
	case !m.Patch.Answered && s.last != nil && s.last.QuestionID == m.QuestionID:
		s.last = nil
	}
	q := s.questions[i]
	q.MentionedUsers = slices.Clone(q.MentionedUsers)
	return q, nil
}

// Answer records a manual answer to an open or answered question.
func (s *Service) Answer(ctx context.Context, questionID, text, author string) (types.Question, error) {
	return s.manual(ctx, questionID, text, author, false)
}

// UpdateAnswer edits the answer of an answered question.
func (s *Service) UpdateAnswer(ctx context.Context, questionID, text, author string) (types.Question, error) {
	return s.manual(ctx, questionID, text, author, true)
}

func (s *Service) manual(ctx context.Context, questionID, text, author string, mustBeAnswered bool) (types.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Question{}, ErrEmptyAnswer
	}
	q, ok := s.Question(questionID)
	if !ok {
		return types.Question{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if mustBeAnswered && !q.Answered {
		return types.Question{}, fmt.Errorf("%w: %s", ErrNotAnswered, questionID)
	}

	roster, err := s.Roster(ctx)
	if err != nil {
		observe.Logger(ctx).Warn("backlog: roster unavailable, skipping mentions", "err", err)
	}
	mentions := analysis.DetectMentions(text, roster)
	now := s.now()

	return s.Record(ctx, Mutation{
		QuestionID: questionID,
		Entry: types.AnswerHistoryEntry{
			Answer:         text,
			AnsweredBy:     author,
			MentionedUsers: mentions,
			Source:         types.SourceManual,
			CreatedAt:      now,
		},
		Patch: types.AnswerPatch{
			Answered:       true,
			Answer:         text,
			AnsweredBy:     author,
			AnsweredAt:     now,
			MentionedUsers: mentions,
		},
		Track: true,
	})
}

// DeleteAnswer resets a question to unanswered. The reset is logged as a
// manual history entry with an empty answer.
func (s *Service) DeleteAnswer(ctx context.Context, questionID, author string) (types.Question, error) {
	q, ok := s.Question(questionID)
	if !ok {
		return types.Question{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if !q.Answered {
		return types.Question{}, fmt.Errorf("%w: %s", ErrNotAnswered, questionID)
	}
	return s.Record(ctx, Mutation{
		QuestionID: questionID,
		Entry: types.AnswerHistoryEntry{
			AnsweredBy: author,
			Source:     types.SourceManual,
		},
		Patch: types.AnswerPatch{},
	})
}

// indexOf must be called with mu held.
func (s *Service) indexOf(id string) int {
	return slices.IndexFunc(s.questions, func(q types.Question) bool { return q.ID == id })
}

func applyPatch(q *types.Question, p types.AnswerPatch) {
	if !p.Answered {
		q.Answered, q.Answer, q.AnsweredBy, q.AnsweredAt, q.MentionedUsers = false, "", "", nil, nil
		return
	}
	at := p.AnsweredAt
	q.Answered = true
	q.Answer = p.Answer
	q.AnsweredBy = p.AnsweredBy
	q.AnsweredAt = &at
	q.MentionedUsers = slices.Clone(p.MentionedUsers)
}

func cloneQuestions(qs []types.Question) []types.Question {
	out := make([]types.Question, len(qs))
	for i, q := range qs {
		q.MentionedUsers = slices.Clone(q.MentionedUsers)
		out[i] = q
	}
	return out
}
