// Package health serves the liveness and readiness probes.
//
// /healthz reports liveness only: a process that answers HTTP is alive.
// /readyz evaluates the registered checkers (the gallery database, the
// model pools, whatever the app wires in) and reports per-dependency
// status with probe latency. It returns 503 while any dependency is
// down so the load balancer keeps WebSocket traffic away until
// enrollment and verification can actually run.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds one readiness probe of one dependency.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the
// dependency can serve and an error describing the failure otherwise.
type Checker struct {
	// Name labels the dependency in the /readyz response, e.g.
	// "database" or "models".
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// checkResult is the per-dependency entry in the /readyz body.
type checkResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// probeResponse is the body of both probe endpoints. Checks is empty
// for /healthz.
type probeResponse struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves the two probe endpoints. Safe for concurrent use; the
// checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New builds a Handler that runs the given checkers, in order, on each
// /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200: a process serving HTTP is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeResponse{Status: "alive"})
}

// Readyz probes every checker and answers 200 only when all pass. Each
// probe runs under its own checkTimeout derived from the request
// context, and its latency is reported alongside the outcome.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := probeResponse{
		Status: "ready",
		Checks: make(map[string]checkResult, len(h.checkers)),
	}
	code := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		started := time.Now()
		err := c.Check(ctx)
		cancel()

		cr := checkResult{
			Status:   "ok",
			Duration: time.Since(started).Round(time.Microsecond).String(),
		}
		if err != nil {
			cr.Status = "fail"
			cr.Error = err.Error()
			res.Status = "unavailable"
			code = http.StatusServiceUnavailable
		}
		res.Checks[c.Name] = cr
	}

	writeJSON(w, code, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
