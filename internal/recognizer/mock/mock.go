// Package mock provides test doubles for the recognizer package.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cockpit/internal/recognizer"
)

// Recognizer is a mock implementation of [recognizer.Recognizer].
type Recognizer struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	startCalls int
	stopCalls  int
}

var _ recognizer.Recognizer = (*Recognizer)(nil)

// Start records the call and returns StartErr.
func (r *Recognizer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startCalls++
	return r.StartErr
}

// Stop records the call and returns StopErr.
func (r *Recognizer) Stop(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopCalls++
	return r.StopErr
}

// StartCalls returns how many times Start was called.
func (r *Recognizer) StartCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startCalls
}

// StopCalls returns how many times Stop was called.
func (r *Recognizer) StopCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCalls
}

// Reset clears the call counters.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startCalls, r.stopCalls = 0, 0
}

// Sink is a mock implementation of [recognizer.Sink] that records events.
type Sink struct {
	mu sync.Mutex

	// Listening is returned by ShouldRestart.
	Listening bool

	results []Result
	errors  []string
	ends    int
}

// Result is one recorded HandleResult call.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

var _ recognizer.Sink = (*Sink)(nil)

// HandleResult records the result.
func (s *Sink) HandleResult(text string, isFinal bool, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, Result{Text: text, IsFinal: isFinal, Confidence: confidence})
}

// HandleError records the error code.
func (s *Sink) HandleError(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, code)
}

// HandleEnd records the end event.
func (s *Sink) HandleEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends++
}

// ShouldRestart returns Listening.
func (s *Sink) ShouldRestart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Listening
}

// SetListening changes the value returned by ShouldRestart.
func (s *Sink) SetListening(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Listening = on
}

// Results returns a copy of the recorded results.
func (s *Sink) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}

// Errors returns a copy of the recorded error codes.
func (s *Sink) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

// Ends returns how many end events were recorded.
func (s *Sink) Ends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ends
}
