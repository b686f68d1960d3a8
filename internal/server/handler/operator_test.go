package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

type stubAudit struct {
	entries []domain.AuditEntry
}

func (s *stubAudit) Log(_ context.Context, event string, detail map[string]any) error {
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries)) + 1,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *stubAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	out := s.entries
	if opts.Offset > 0 && opts.Offset < len(out) {
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

type stubArchiver struct {
	stakes int64
	audits int64
	before time.Time
}

func (s *stubArchiver) ArchiveLiquidated(_ context.Context, before time.Time) (int64, error) {
	s.before = before
	return s.stakes, nil
}

func (s *stubArchiver) ArchiveAudit(context.Context, time.Time) (int64, error) {
	return s.audits, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListAudit(t *testing.T) {
	audit := &stubAudit{}
	require.NoError(t, audit.Log(context.Background(), "stake.opened", map[string]any{"stake_id": 1}))
	require.NoError(t, audit.Log(context.Background(), "stake.closed", map[string]any{"stake_id": 1}))

	h := NewOperatorHandler(audit, nil, discardLogger())
	rec := httptest.NewRecorder()
	h.ListAudit(rec, httptest.NewRequest(http.MethodGet, "/api/operator/audit?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Entries []auditEntryResponse `json:"entries"`
		Limit   int                  `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "stake.opened", got.Entries[0].Event)
	assert.Equal(t, 1, got.Limit)
}

func TestListAuditUnconfigured(t *testing.T) {
	h := NewOperatorHandler(nil, nil, discardLogger())
	rec := httptest.NewRecorder()
	h.ListAudit(rec, httptest.NewRequest(http.MethodGet, "/api/operator/audit", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTriggerArchive(t *testing.T) {
	arch := &stubArchiver{stakes: 7, audits: 3}
	h := NewOperatorHandler(&stubAudit{}, arch, discardLogger())

	rec := httptest.NewRecorder()
	h.TriggerArchive(rec, httptest.NewRequest(http.MethodPost,
		"/api/operator/archive?before=2026-06-01T00:00:00Z", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float64(7), got["stakes"])
	assert.Equal(t, float64(3), got["audit_entries"])
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), arch.before)
}

func TestTriggerArchiveValidation(t *testing.T) {
	h := NewOperatorHandler(&stubAudit{}, &stubArchiver{}, discardLogger())
	rec := httptest.NewRecorder()
	h.TriggerArchive(rec, httptest.NewRequest(http.MethodPost, "/api/operator/archive?before=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	disabled := NewOperatorHandler(&stubAudit{}, nil, discardLogger())
	rec = httptest.NewRecorder()
	disabled.TriggerArchive(rec, httptest.NewRequest(http.MethodPost, "/api/operator/archive", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
