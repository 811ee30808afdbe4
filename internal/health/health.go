// Package health serves the liveness and readiness probes.
//
//   - GET /healthz always answers 200 while the process can serve HTTP.
//   - GET /readyz runs every [Checker] concurrently and answers 503 when a
//     required one fails. A failing optional checker (the model backends,
//     the recognizer client) marks the service "degraded" but keeps 200,
//     since discovery-call capture still works on lexical matching alone.
//
// Bodies are JSON: {"status": "ok"|"degraded"|"fail", "checks": {name: msg}}.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// Checker is a named dependency probe.
type Checker struct {
	// Name keys the result in the "checks" map.
	Name string

	// Check returns nil when the dependency is usable. It must honour ctx.
	Check func(ctx context.Context) error

	// Optional marks a dependency the cockpit can run without.
	Optional bool
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New creates a Handler evaluating checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: statusOK})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := h.evaluate(r.Context())
	code := http.StatusOK
	if res.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// evaluate runs all checkers concurrently, each under its own timeout.
func (h *Handler) evaluate(ctx context.Context) result {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		status = statusOK
	)

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			err := c.Check(cctx)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				checks[c.Name] = statusOK
			case c.Optional:
				checks[c.Name] = statusDegraded + ": " + err.Error()
				if status == statusOK {
					status = statusDegraded
				}
			default:
				checks[c.Name] = statusFail + ": " + err.Error()
				status = statusFail
			}
			return nil
		})
	}
	_ = g.Wait()

	return result{Status: status, Checks: checks}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
