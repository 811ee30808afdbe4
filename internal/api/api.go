// Package api serves the cockpit's JSON HTTP endpoints:
//
//	POST   /api/session/start             {user_id}; start listening
//	POST   /api/session/stop              stop listening
//	GET    /api/session                   listening flag and session logs
//	GET    /api/session/report            end-of-call summary
//	GET    /api/questions                 the backlog
//	POST   /api/questions/{id}/answer     {user_id, text}; manual answer
//	PUT    /api/questions/{id}/answer     {user_id, text}; edit an answer
//	DELETE /api/questions/{id}/answer     ?user_id=; reset to unanswered
//	GET    /api/questions/{id}/history    answer history, newest first
//	GET    /api/users/{id}/mentions       questions and answers naming a user
//
// Errors are returned as {"error": "..."} with a matching status code.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/cockpit/internal/backlog"
	"github.com/MrWong99/cockpit/internal/observe"
	"github.com/MrWong99/cockpit/internal/recognizer"
	"github.com/MrWong99/cockpit/internal/session"
	"github.com/MrWong99/cockpit/pkg/store"
	"github.com/MrWong99/cockpit/pkg/types"
)

// stopTimeout bounds how long a stop request waits for pending chunks.
const stopTimeout = 30 * time.Second

// Session is the session controller surface used by the API.
type Session interface {
	Start(ctx context.Context, operator types.User) error
	Stop(ctx context.Context) error
	Snapshot() session.Snapshot
	Report() session.Report
}

// Backlog is the backlog surface used by the API.
type Backlog interface {
	User(ctx context.Context, id string) (types.User, error)
	Questions() []types.Question
	QuestionHistory(questionID string) []types.AnswerHistoryEntry
	HistoryForUser(userID string) []types.AnswerHistoryEntry
	QuestionsAboutUser(userID string) []types.Question
	Answer(ctx context.Context, questionID, text, author string) (types.Question, error)
	UpdateAnswer(ctx context.Context, questionID, text, author string) (types.Question, error)
	DeleteAnswer(ctx context.Context, questionID, author string) (types.Question, error)
}

// Server holds the API dependencies.
type Server struct {
	session    Session
	backlog    Backlog
	recognizer recognizer.Recognizer
}

// New creates a Server. rec may be nil when no recognizer is wired.
func New(sess Session, bl Backlog, rec recognizer.Recognizer) *Server {
	return &Server{session: sess, backlog: bl, recognizer: rec}
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/stop", s.handleStop)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/session/report", s.handleReport)
	mux.HandleFunc("GET /api/questions", s.handleQuestions)
	mux.HandleFunc("POST /api/questions/{id}/answer", s.handleAnswer)
	mux.HandleFunc("PUT /api/questions/{id}/answer", s.handleUpdateAnswer)
	mux.HandleFunc("DELETE /api/questions/{id}/answer", s.handleDeleteAnswer)
	mux.HandleFunc("GET /api/questions/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /api/users/{id}/mentions", s.handleMentions)
}

// Handler returns a mux serving only the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type startRequest struct {
	UserID string `json:"user_id"`
}

type sessionResponse struct {
	Listening bool   `json:"listening"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	ctx := r.Context()
	operator, err := s.backlog.User(ctx, req.UserID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := s.session.Start(ctx, operator); err != nil {
		writeFailure(w, err)
		return
	}
	if s.recognizer != nil {
		if err := s.recognizer.Start(ctx); err != nil {
			logRecognizer(ctx, "start", err)
		}
	}
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, sessionResponse{Listening: snap.Listening, SessionID: snap.SessionID})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.recognizer != nil {
		if err := s.recognizer.Stop(ctx); err != nil {
			logRecognizer(ctx, "stop", err)
		}
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := s.session.Stop(stopCtx); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Listening: false})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Report())
}

func (s *Server) handleQuestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backlog.Questions())
}

type answerRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	s.answer(w, r, s.backlog.Answer)
}

func (s *Server) handleUpdateAnswer(w http.ResponseWriter, r *http.Request) {
	s.answer(w, r, s.backlog.UpdateAnswer)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, questionID, text, author string) (types.Question, error)) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	author, ok := s.author(w, r, req.UserID)
	if !ok {
		return
	}
	q, err := apply(r.Context(), r.PathValue("id"), req.Text, author)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteAnswer(w http.ResponseWriter, r *http.Request) {
	author, ok := s.author(w, r, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}
	q, err := s.backlog.DeleteAnswer(r.Context(), r.PathValue("id"), author)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// author resolves the acting user's display name. It writes the error
// response itself and reports false on failure.
func (s *Server) author(w http.ResponseWriter, r *http.Request, userID string) (string, bool) {
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return "", false
	}
	u, err := s.backlog.User(r.Context(), userID)
	if err != nil {
		writeFailure(w, err)
		return "", false
	}
	return u.Name, true
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backlog.QuestionHistory(r.PathValue("id")))
}

type mentionsResponse struct {
	User      types.User                 `json:"user"`
	Questions []types.Question           `json:"questions"`
	Answers   []types.AnswerHistoryEntry `json:"answers"`
}

func (s *Server) handleMentions(w http.ResponseWriter, r *http.Request) {
	u, err := s.backlog.User(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mentionsResponse{
		User:      u,
		Questions: s.backlog.QuestionsAboutUser(u.ID),
		Answers:   s.backlog.HistoryForUser(u.ID),
	})
}

// logRecognizer logs a failed control frame. A missing client is expected
// until the browser page connects.
func logRecognizer(ctx context.Context, op string, err error) {
	log := observe.Logger(ctx)
	if errors.Is(err, recognizer.ErrNotConnected) {
		log.Debug("api: no recognizer client attached", "op", op)
		return
	}
	log.Warn("api: recognizer control failed", "op", op, "err", err)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, backlog.ErrEmptyAnswer):
		return http.StatusBadRequest
	case errors.Is(err, backlog.ErrUnknownQuestion), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, backlog.ErrNotAnswered),
		errors.Is(err, session.ErrAlreadyListening),
		errors.Is(err, session.ErrNotListening):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("api: request failed", "err", err)
	}
	writeError(w, status, err.Error())
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}
