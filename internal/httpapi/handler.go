// Package httpapi implements the HTTP surface of the pipeline service.
//
// All routes expect an x-user-id header forwarded by the Gateway.
//
// Routes:
//
//	GET  /queue                    → list candidate's queue entries (?status= filter)
//	POST /queue/{id}/approve       → approve a pending entry
//	POST /queue/{id}/reject        → reject a pending or approved entry
//	POST /rescan                   → trigger an immediate scoring pass for the candidate
//	GET  /applications             → list terminal entries with execution outcomes
//	GET  /health                   → liveness probe
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"applypilot/pipeline-service/internal/queue"
)

// Rescanner triggers an on-demand scoring pass for one candidate.
type Rescanner interface {
	RunCandidate(ctx context.Context, candidateID string) error
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	mgr    *queue.Manager
	rescan Rescanner
	log    *zap.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(mgr *queue.Manager, rescan Rescanner, log *zap.Logger) *Handler {
	return &Handler{mgr: mgr, rescan: rescan, log: log}
}

// RegisterRoutes mounts all pipeline-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/queue", h.handleQueue)
	mux.HandleFunc("/queue/", h.handleQueueAction)
	mux.HandleFunc("/rescan", h.handleRescan)
	mux.HandleFunc("/applications", h.handleApplications)
	mux.HandleFunc("/health", h.handleHealth)
}

// ─── Route dispatch ───────────────────────────────────────────────────────────

// handleQueue handles GET /queue
func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.listQueue(w, r)
}

// handleQueueAction handles POST /queue/{id}/approve|reject
func (h *Handler) handleQueueAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse /queue/{id}/{action}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}

	entryID := parts[1]
	action := parts[2]

	switch action {
	case "approve":
		h.approveEntry(w, r, entryID)
	case "reject":
		h.rejectEntry(w, r, entryID)
	default:
		jsonError(w, fmt.Sprintf("unknown action %q", action), http.StatusNotFound)
	}
}

// ─── Individual handlers ──────────────────────────────────────────────────────

func (h *Handler) listQueue(w http.ResponseWriter, r *http.Request) {
	candidateID := r.Header.Get("x-user-id")
	if candidateID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	var stateFilter queue.State
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := queue.ParseState(raw)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		stateFilter = s
	}

	entries, err := h.mgr.List(r.Context(), candidateID, stateFilter)
	if err != nil {
		h.log.Error("list queue failed", zap.String("candidateId", candidateID), zap.Error(err))
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	jsonOK(w, entries)
}

func (h *Handler) approveEntry(w http.ResponseWriter, r *http.Request, entryID string) {
	candidateID := r.Header.Get("x-user-id")
	if candidateID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	entry, err := h.mgr.Approve(r.Context(), candidateID, entryID)
	if err != nil {
		h.writeTransitionError(w, entryID, err)
		return
	}

	jsonOK(w, entry)
}

func (h *Handler) rejectEntry(w http.ResponseWriter, r *http.Request, entryID string) {
	candidateID := r.Header.Get("x-user-id")
	if candidateID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if body.Reason == "" {
		body.Reason = "rejected by candidate"
	}

	entry, err := h.mgr.Reject(r.Context(), candidateID, entryID, body.Reason)
	if err != nil {
		h.writeTransitionError(w, entryID, err)
		return
	}

	jsonOK(w, entry)
}

func (h *Handler) handleRescan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	candidateID := r.Header.Get("x-user-id")
	if candidateID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	if err := h.rescan.RunCandidate(r.Context(), candidateID); err != nil {
		h.log.Error("rescan failed", zap.String("candidateId", candidateID), zap.Error(err))
		jsonError(w, "rescan failed", http.StatusInternalServerError)
		return
	}

	jsonOK(w, map[string]string{"status": "rescan complete"})
}

func (h *Handler) handleApplications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	candidateID := r.Header.Get("x-user-id")
	if candidateID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	entries, err := h.mgr.ListTerminal(r.Context(), candidateID)
	if err != nil {
		h.log.Error("list applications failed", zap.String("candidateId", candidateID), zap.Error(err))
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	jsonOK(w, entries)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]string{"status": "ok"})
}

// writeTransitionError maps manager errors onto HTTP status codes.
func (h *Handler) writeTransitionError(w http.ResponseWriter, entryID string, err error) {
	var illegal *queue.ErrIllegalTransition
	switch {
	case errors.Is(err, queue.ErrNotFound):
		jsonError(w, "queue entry not found", http.StatusNotFound)
	case errors.As(err, &illegal):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error("queue transition failed", zap.String("entryId", entryID), zap.Error(err))
		jsonError(w, "database error", http.StatusInternalServerError)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
