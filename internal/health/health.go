// Package health serves the liveness and readiness probes. Every replica
// runs these; readiness additionally gates on the registered dependency
// checks so a pod with a dead database connection drops out of the service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kingsalliance/bidbot/internal/clock"
)

// checkTimeout bounds a single readiness probe.
const checkTimeout = 5 * time.Second

// Response is the probe reply body.
type Response struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	CheckedAt string            `json:"checked_at"`
}

// Check is a named dependency probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Handler provides the HTTP probe endpoints.
type Handler struct {
	ready  atomic.Bool
	checks []Check
	clock  clock.Clock
}

// NewHandler creates a health Handler with the given dependency checks.
func NewHandler(clk clock.Clock, checks ...Check) *Handler {
	return &Handler{checks: checks, clock: clk}
}

// SetReady marks the replica as ready (or not) to receive traffic. The
// leader flips this after the bot connects; followers stay not-ready.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Register mounts the probe endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.liveness)
	mux.HandleFunc("/readyz", h.readiness)
}

func (h *Handler) liveness(w http.ResponseWriter, _ *http.Request) {
	h.write(w, http.StatusOK, Response{Status: "ok", CheckedAt: h.now()})
}

func (h *Handler) readiness(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		h.write(w, http.StatusServiceUnavailable, Response{Status: "not_ready", CheckedAt: h.now()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	code := http.StatusOK
	status := "ready"
	for _, c := range h.checks {
		if err := c.Probe(ctx); err != nil {
			results[c.Name] = err.Error()
			code = http.StatusServiceUnavailable
			status = "not_ready"
			continue
		}
		results[c.Name] = "ok"
	}

	h.write(w, code, Response{Status: status, Checks: results, CheckedAt: h.now()})
}

func (h *Handler) now() string {
	return h.clock.Now().UTC().Format(time.RFC3339)
}

func (h *Handler) write(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
