// Package session implements the listening-session controller: it buffers
// final utterances from the recognizer, flushes them after a debounce window,
// and runs every flushed chunk through the ingestion pipeline (feature
// extraction, correction handling, auto-answering and KPI persistence).
//
// The controller moves between two states, idle and listening. While
// listening, utterances accumulate in a per-session buffer; each one re-arms
// the idle timer. When the timer fires the buffer is taken and queued for a
// single worker goroutine, so at most one pipeline run is in flight and chunks
// are processed in the order they were flushed.
//
// All exported methods are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/cockpit/internal/backlog"
	"github.com/MrWong99/cockpit/internal/extract"
	"github.com/MrWong99/cockpit/internal/observe"
	"github.com/MrWong99/cockpit/internal/transcript"
	"github.com/MrWong99/cockpit/pkg/store"
	"github.com/MrWong99/cockpit/pkg/types"
)

var (
	// ErrAlreadyListening is returned by Start while a session is active.
	ErrAlreadyListening = errors.New("session: already listening")

	// ErrNotListening is returned by Stop when no session is active.
	ErrNotListening = errors.New("session: not listening")
)

// Default tuning values.
const (
	DefaultDebounce            = 2 * time.Second
	DefaultCorrectionWindow    = 120 * time.Second
	DefaultMinChunkRunes       = 10
	DefaultConfidenceThreshold = 0.3
)

// Bounded log sizes.
const (
	maxTranscripts   = 15
	maxExtractions   = 20
	maxUncertainties = 10
	maxSuggestions   = 10
)

// Config tunes a [Controller]. Zero values select the defaults.
type Config struct {
	// ProjectID selects the project KPI record. Empty selects the first
	// project in the store.
	ProjectID string

	// Debounce is the idle time after the last final utterance before the
	// buffer is flushed.
	Debounce time.Duration

	// CorrectionWindow is how long after an answer a correction phrase may
	// overwrite it. The comparison is strict.
	CorrectionWindow time.Duration

	// MinChunkRunes discards trimmed chunks shorter than this.
	MinChunkRunes int

	// ConfidenceThreshold is the extraction confidence an auto-answer must
	// exceed.
	ConfidenceThreshold float64
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.CorrectionWindow <= 0 {
		c.CorrectionWindow = DefaultCorrectionWindow
	}
	if c.MinChunkRunes <= 0 {
		c.MinChunkRunes = DefaultMinChunkRunes
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	return c
}

// Backlog is the answer-recording surface the pipeline mutates.
// [*backlog.Service] satisfies it.
type Backlog interface {
	Questions() []types.Question
	Roster(ctx context.Context) ([]types.User, error)
	CorrectionTarget(now time.Time, window time.Duration) (types.Question, bool)
	Record(ctx context.Context, m backlog.Mutation) (types.Question, error)
}

// Extractor resolves a chunk to a question. [*extract.Extractor] satisfies it.
type Extractor interface {
	Extract(ctx context.Context, text string, questions []types.Question, roster []types.User) extract.Result
}

// Normalizer rewrites misheard roster names. [*transcript.Normalizer]
// satisfies it.
type Normalizer interface {
	Normalize(text string, roster []types.User) (string, []transcript.Correction)
}

// Store is the subset of [store.Store] the controller writes to.
type Store interface {
	store.SessionStore
	store.ProjectStore
}

// Option configures a [Controller].
type Option func(*Controller)

// WithClock overrides the time source used for answer timestamps and the
// correction window.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithNormalizer enables roster-name repair before analysis.
func WithNormalizer(n Normalizer) Option {
	return func(c *Controller) { c.normalizer = n }
}

// session is the state of one listening session. Fields are guarded by
// Controller.mu.
type session struct {
	id       string
	operator types.User

	buffer string
	timer  *time.Timer
	gen    uint64

	queue   []string
	closing bool
	wake    chan struct{}
	done    chan struct{}

	// Totals written to the session record on close.
	transcriptCount int
	extractionCount int
}

// Controller owns the listening session and its bounded logs.
type Controller struct {
	cfg        Config
	backlog    Backlog
	extractor  Extractor
	store      Store
	normalizer Normalizer
	now        func() time.Time
	metrics    *observe.Metrics

	debounce atomic.Int64

	// procMu serialises pipeline runs.
	procMu sync.Mutex

	mu   sync.Mutex
	sess *session
	// owner is the session the logs below belong to. It outlives Stop so
	// the logs stay readable until the next Start; chunks of any other
	// session still finishing in the background never touch them.
	owner           *session
	transcripts     []types.Utterance // oldest first
	extractions     []types.Extraction
	uncertainties   []types.Uncertainty
	suggestions     []types.Suggestion
	transcriptCount int
	extractionCount int
}

// New creates an idle Controller.
func New(cfg Config, bl Backlog, ex Extractor, st Store, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg.withDefaults(),
		backlog:   bl,
		extractor: ex,
		store:     st,
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.debounce.Store(int64(c.cfg.Debounce))
	return c
}

// SetDebounce changes the idle window for subsequent utterances.
func (c *Controller) SetDebounce(d time.Duration) {
	if d > 0 {
		c.debounce.Store(int64(d))
	}
}

// Debounce returns the current idle window.
func (c *Controller) Debounce() time.Duration {
	return time.Duration(c.debounce.Load())
}

// Start clears the session logs, opens a session record and begins
// listening. A failure to create the record is logged and listening
// continues without a session id, so extractions are not persisted.
func (c *Controller) Start(ctx context.Context, operator types.User) error {
	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return ErrAlreadyListening
	}
	s := &session{
		operator: operator,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	c.sess = s
	c.owner = s
	c.transcripts = nil
	c.extractions = nil
	c.uncertainties = nil
	c.suggestions = nil
	c.transcriptCount = 0
	c.extractionCount = 0
	c.mu.Unlock()

	log := observe.Logger(ctx)
	rec, err := c.store.CreateSession(ctx, types.SessionRecord{
		ProjectID: c.projectID(ctx),
		StartedBy: operator.ID,
		StartedAt: c.now(),
	})
	if err != nil {
		c.metrics.RecordStoreError(ctx, "create_session")
		log.Warn("session: could not open session record", "err", err)
	} else {
		c.mu.Lock()
		s.id = rec.ID
		c.mu.Unlock()
	}

	c.metrics.ActiveSessions.Add(ctx, 1)
	go c.run(context.WithoutCancel(ctx), s)

	log.Info("session: listening", "session_id", rec.ID, "operator", operator.Name)
	return nil
}

func (c *Controller) projectID(ctx context.Context) string {
	if c.cfg.ProjectID != "" {
		return c.cfg.ProjectID
	}
	p, err := c.store.Project(ctx, "")
	if err != nil {
		return ""
	}
	return p.ID
}

// Stop cancels the idle timer, drops any unflushed text, waits for queued
// chunks to finish, and closes the session record. If ctx expires first Stop
// returns and the record is closed once the remaining chunks have finished,
// so their extractions are still counted against this session.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	s := c.sess
	if s == nil {
		c.mu.Unlock()
		return ErrNotListening
	}
	c.sess = nil
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
	}
	dropped := utf8.RuneCountInString(strings.TrimSpace(s.buffer))
	s.buffer = ""
	s.closing = true
	signal(s.wake)
	c.mu.Unlock()

	log := observe.Logger(ctx)
	if dropped > 0 {
		log.Debug("session: dropped unflushed text", "runes", dropped)
	}

	c.metrics.ActiveSessions.Add(ctx, -1)

	select {
	case <-s.done:
	case <-ctx.Done():
		log.Warn("session: stop timed out, record closes after pending chunks", "err", ctx.Err())
		bg := context.WithoutCancel(ctx)
		go func() {
			<-s.done
			c.closeRecord(bg, s)
		}()
		return nil
	}
	c.closeRecord(ctx, s)
	return nil
}

// closeRecord writes the session's totals to its record. The worker must
// have exited.
func (c *Controller) closeRecord(ctx context.Context, s *session) {
	c.mu.Lock()
	id := s.id
	sum := types.SessionSummary{
		EndedAt:         c.now(),
		TranscriptCount: s.transcriptCount,
		ExtractionCount: s.extractionCount,
	}
	c.mu.Unlock()

	log := observe.Logger(ctx)
	if id != "" {
		if err := c.store.CloseSession(ctx, id, sum); err != nil {
			c.metrics.RecordStoreError(ctx, "close_session")
			log.Warn("session: could not close session record", "session_id", id, "err", err)
		}
	}
	log.Info("session: stopped",
		"session_id", id,
		"transcripts", sum.TranscriptCount,
		"extractions", sum.ExtractionCount,
	)
}

// IsListening reports whether a session is active.
func (c *Controller) IsListening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// ShouldRestart tells the recognizer boundary whether a stopped recognizer
// must be restarted.
func (c *Controller) ShouldRestart() bool {
	return c.IsListening()
}

// SessionID returns the active session record id, or "" when idle or when
// the record could not be created.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.id
}

// HandleResult accepts a recognizer result. Interim results and results
// received while idle are ignored. confidence is in [0, 1].
func (c *Controller) HandleResult(text string, isFinal bool, confidence float64) {
	if !isFinal {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sess
	if s == nil {
		return
	}

	confidence = min(max(confidence, 0), 1)
	c.transcripts = append(c.transcripts, types.Utterance{
		Text:       text,
		Confidence: int(math.Round(confidence * 100)),
		At:         c.now(),
	})
	if n := len(c.transcripts); n > maxTranscripts {
		c.transcripts = append([]types.Utterance(nil), c.transcripts[n-maxTranscripts:]...)
	}
	c.transcriptCount++
	s.transcriptCount++

	s.buffer += " " + text
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(c.Debounce(), func() { c.fire(s, gen) })
}

// HandleError logs a recognizer fault. Restarting is the boundary's job.
func (c *Controller) HandleError(code string) {
	if code == "no-speech" {
		slog.Debug("session: recognizer heard no speech", "listening", c.IsListening())
		return
	}
	slog.Warn("session: recognizer error", "code", code, "listening", c.IsListening())
}

// HandleEnd logs the end of a recognizer run.
func (c *Controller) HandleEnd() {
	slog.Debug("session: recognizer ended", "listening", c.IsListening())
}

// Flush queues the buffered text immediately instead of waiting for the idle
// timer. It reports whether a chunk was queued.
func (c *Controller) Flush() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sess
	if s == nil {
		return false
	}
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
	}
	return c.enqueue(s)
}

// fire runs when the idle timer expires. A stale generation means a newer
// utterance or a stop superseded this timer.
func (c *Controller) fire(s *session, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != s || s.gen != gen {
		return
	}
	c.enqueue(s)
}

// enqueue takes the buffer and hands it to the worker. c.mu must be held.
func (c *Controller) enqueue(s *session) bool {
	chunk := strings.TrimSpace(s.buffer)
	s.buffer = ""
	if utf8.RuneCountInString(chunk) < c.cfg.MinChunkRunes {
		if chunk != "" {
			c.metrics.RecordChunk(context.Background(), observe.OutcomeDiscarded)
		}
		return false
	}
	s.queue = append(s.queue, chunk)
	signal(s.wake)
	return true
}

// run is the per-session worker. It drains the queue in order and exits once
// the session is closing and nothing is left.
func (c *Controller) run(ctx context.Context, s *session) {
	defer close(s.done)
	for {
		c.mu.Lock()
		if len(s.queue) == 0 {
			closing := s.closing
			c.mu.Unlock()
			if closing {
				return
			}
			<-s.wake
			continue
		}
		chunk := s.queue[0]
		s.queue = s.queue[1:]
		c.mu.Unlock()

		c.process(ctx, s, chunk)
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
