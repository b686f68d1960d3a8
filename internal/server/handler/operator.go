package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

// OperatorHandler serves the HMAC-protected operator endpoints: audit log
// listing and manual archive triggering.
type OperatorHandler struct {
	audit    domain.AuditStore
	archiver domain.Archiver
	logger   *slog.Logger
}

// NewOperatorHandler creates an OperatorHandler. archiver may be nil when
// cold storage is not configured; the trigger endpoint then reports 503.
func NewOperatorHandler(audit domain.AuditStore, archiver domain.Archiver, logger *slog.Logger) *OperatorHandler {
	return &OperatorHandler{
		audit:    audit,
		archiver: archiver,
		logger:   logger,
	}
}

// auditEntryResponse is the JSON shape of one audit row.
type auditEntryResponse struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListAudit returns audit log entries, newest first.
// GET /api/operator/audit?limit=50&offset=0
func (h *OperatorHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}
	opts := parseListOpts(r)

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// TriggerArchive runs an archive pass for records older than the cutoff in
// the before query parameter (RFC 3339, default now).
// POST /api/operator/archive
func (h *OperatorHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "cold storage not configured")
		return
	}

	before := time.Now().UTC()
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be RFC 3339")
			return
		}
		before = t.UTC()
	}

	stakes, err := h.archiver.ArchiveLiquidated(r.Context(), before)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive liquidated failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive failed")
		return
	}
	audits, err := h.archiver.ArchiveAudit(r.Context(), before)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"before":        before.Format(time.RFC3339),
		"stakes":        stakes,
		"audit_entries": audits,
	})
}
