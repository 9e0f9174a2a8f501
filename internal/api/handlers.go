package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/ansuz/internal/sync"
)

// Sync modes accepted by POST /api/sync.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// SyncRequest is the request body for triggering a reconciliation run.
type SyncRequest struct {
	Mode string `json:"mode"`
	Base string `json:"base,omitempty"`
}

// Handler holds API route handlers.
type Handler struct {
	runner *sync.Runner
}

// NewHandler creates a new Handler.
func NewHandler(runner *sync.Runner) *Handler {
	return &Handler{runner: runner}
}

// GetReport handles GET /api/report: the report of the most recent run.
func (h *Handler) GetReport(w http.ResponseWriter, _ *http.Request) {
	report := h.runner.LastReport()
	if report == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no reconciliation has run yet"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// TriggerSync handles POST /api/sync: runs a full rebuild or an incremental
// reconciliation and returns its report.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	req := SyncRequest{Mode: ModeIncremental, Base: "HEAD"}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	if req.Base == "" {
		req.Base = "HEAD"
	}

	var (
		report *sync.Report
		err    error
	)
	switch req.Mode {
	case ModeFull:
		report, err = h.runner.Rebuild()
	case ModeIncremental, "":
		report, err = h.runner.Reconcile(req.Base)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("mode must be full or incremental"))
		return
	}
	if err != nil {
		slog.Error("sync run failed", slog.String("mode", req.Mode), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("sync failed: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
