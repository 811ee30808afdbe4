package recognizer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/cockpit/internal/observe"
)

// Default supervision parameters.
const (
	DefaultRestartDelay = 100 * time.Millisecond
	DefaultMaxRestarts  = 20
)

// Liveness reports whether the recognizer should be running.
type Liveness interface {
	ShouldRestart() bool
}

// SupervisorConfig configures a [Supervisor].
type SupervisorConfig struct {
	// Recognizer is restarted on faults.
	Recognizer Recognizer

	// Liveness is polled before every restart. Usually the session
	// controller.
	Liveness Liveness

	// RestartDelay is the pause before a restart. Defaults to 100ms if zero.
	RestartDelay time.Duration

	// MaxRestarts caps consecutive restarts without a recognised result.
	// Defaults to 20 if zero; negative disables the cap.
	MaxRestarts int

	// Metrics receives restart counts. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Supervisor restarts the recognizer after it stops on its own while the
// session is still listening.
//
// Faults are coalesced: several faults arriving before a restart produce a
// single restart. Any recognised result resets the consecutive-restart count.
//
// All methods are safe for concurrent use.
type Supervisor struct {
	recognizer   Recognizer
	liveness     Liveness
	restartDelay time.Duration
	maxRestarts  int
	metrics      *observe.Metrics

	faults   chan string
	done     chan struct{}
	stopOnce sync.Once

	mu          sync.Mutex
	consecutive int
	total       int
}

var _ Monitor = (*Supervisor)(nil)

// NewSupervisor creates a Supervisor. Call [Supervisor.Run] to start it.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	delay := cfg.RestartDelay
	if delay <= 0 {
		delay = DefaultRestartDelay
	}
	maxRestarts := cfg.MaxRestarts
	if maxRestarts == 0 {
		maxRestarts = DefaultMaxRestarts
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Supervisor{
		recognizer:   cfg.Recognizer,
		liveness:     cfg.Liveness,
		restartDelay: delay,
		maxRestarts:  maxRestarts,
		metrics:      m,
		faults:       make(chan string, 1),
		done:         make(chan struct{}),
	}
}

// Fault reports that the recognizer stopped. Only the first fault per restart
// cycle has effect.
func (s *Supervisor) Fault(reason string) {
	select {
	case s.faults <- reason:
	default:
	}
}

// Alive resets the consecutive-restart count.
func (s *Supervisor) Alive() {
	s.mu.Lock()
	s.consecutive = 0
	s.mu.Unlock()
}

// Restarts returns the total number of restarts issued.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Stop ends [Supervisor.Run]. Safe to call multiple times.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Run handles faults until ctx is cancelled or Stop is called. It always
// returns nil so it can run inside an errgroup.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case reason := <-s.faults:
			s.restart(ctx, reason)
		}
	}
}

func (s *Supervisor) restart(ctx context.Context, reason string) {
	if !s.liveness.ShouldRestart() {
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-s.done:
		return
	case <-time.After(s.restartDelay):
	}

	// The session may have stopped during the delay.
	if !s.liveness.ShouldRestart() {
		return
	}

	s.mu.Lock()
	if s.maxRestarts > 0 && s.consecutive >= s.maxRestarts {
		n := s.consecutive
		s.mu.Unlock()
		slog.Error("recognizer: giving up after consecutive restarts",
			"restarts", n,
			"reason", reason,
		)
		return
	}
	s.consecutive++
	s.total++
	attempt := s.consecutive
	s.mu.Unlock()

	s.metrics.RecordRestart(ctx, reason)
	slog.Debug("recognizer: restarting", "reason", reason, "attempt", attempt)

	if err := s.recognizer.Start(ctx); err != nil {
		slog.Warn("recognizer: restart failed",
			"reason", reason,
			"attempt", attempt,
			"err", err,
		)
	}
}
