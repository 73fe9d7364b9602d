package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/handsign/internal/store"
)

// AuditHandler serves the balance run audit trail and inference sessions.
type AuditHandler struct {
	store *store.Store
}

// NewAuditHandler creates a new AuditHandler with the given store.
func NewAuditHandler(s *store.Store) *AuditHandler {
	return &AuditHandler{store: s}
}

type runResponse struct {
	*store.BalanceRun
	Removals []store.RemovalRecord `json:"removals,omitempty"`
}

type listRunsResponse struct {
	Runs []*store.BalanceRun `json:"runs"`
}

type listSessionsResponse struct {
	Sessions []*store.InferenceSession `json:"sessions"`
}

type sessionResponse struct {
	*store.InferenceSession
	Duration string `json:"duration,omitempty"`
}

// ServeHTTP routes /api/runs, /api/runs/{id}, /api/sessions and
// /api/sessions/{id}.
func (h *AuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, ok := intQuery(r, "limit", 50)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/api/runs"):
		id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/runs"), "/")
		if id == "" {
			h.listRuns(w, limit)
			return
		}
		h.getRun(w, id)
	case strings.HasPrefix(r.URL.Path, "/api/sessions"):
		id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/sessions"), "/")
		if id == "" {
			h.listSessions(w, limit)
			return
		}
		h.getSession(w, id)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// listRuns handles GET /api/runs.
func (h *AuditHandler) listRuns(w http.ResponseWriter, limit int) {
	runs, err := h.store.BalanceRuns().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list balance runs")
		return
	}
	if runs == nil {
		runs = []*store.BalanceRun{}
	}
	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs})
}

// getRun handles GET /api/runs/{id} and includes the removed samples.
func (h *AuditHandler) getRun(w http.ResponseWriter, id string) {
	run, err := h.store.BalanceRuns().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Balance run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get balance run")
		return
	}

	removals, err := h.store.BalanceRuns().Removals(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list removals")
		return
	}
	writeJSON(w, http.StatusOK, runResponse{BalanceRun: run, Removals: removals})
}

// listSessions handles GET /api/sessions.
func (h *AuditHandler) listSessions(w http.ResponseWriter, limit int) {
	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.InferenceSession{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

// getSession handles GET /api/sessions/{id}.
func (h *AuditHandler) getSession(w http.ResponseWriter, id string) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	resp := sessionResponse{InferenceSession: sess}
	if sess.EndedAt != nil {
		resp.Duration = sess.EndedAt.Sub(sess.StartedAt).Round(time.Millisecond).String()
	}
	writeJSON(w, http.StatusOK, resp)
}
