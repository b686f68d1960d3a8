package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

// ArchiveImpl implements domain.Archiver by querying the ledger store for
// settled records, serializing them to JSONL, and uploading the result to S3.
//
// Archived records stay in the primary store: stake ids are append-only and
// never reused, so the ledger is the source of truth and the archive is a
// cold-storage mirror.
type ArchiveImpl struct {
	writer domain.BlobWriter
	ledger domain.LedgerStore
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, ledger domain.LedgerStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		ledger: ledger,
		audit:  audit,
	}
}

// archivedStake is the flat JSONL row written for a liquidated stake.
type archivedStake struct {
	Holder       string    `json:"holder"`
	StakeID      uint64    `json:"stake_id"`
	Amount       *big.Int  `json:"amount"`
	Reward       *big.Int  `json:"reward"`
	DurationDays int       `json:"duration_days"`
	CreatedAt    time.Time `json:"created_at"`
}

// ArchiveLiquidated queries liquidated stakes created before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/liquidated/YYYY-MM.jsonl. The archival event is recorded in the
// audit log and the count of archived records is returned.
func (a *ArchiveImpl) ArchiveLiquidated(ctx context.Context, before time.Time) (int64, error) {
	stakes, err := a.ledger.ListLiquidatedBefore(ctx, before, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive liquidated query: %w", err)
	}
	if len(stakes) == 0 {
		return 0, nil
	}

	rows := make([]archivedStake, 0, len(stakes))
	for _, s := range stakes {
		rows = append(rows, archivedStake{
			Holder:       strings.ToLower(s.Owner.Hex()),
			StakeID:      s.ID,
			Amount:       s.Amount,
			Reward:       s.Reward,
			DurationDays: s.DurationDays,
			CreatedAt:    s.CreatedAt,
		})
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive liquidated marshal: %w", err)
	}

	path := archivePath("liquidated", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive liquidated upload: %w", err)
	}

	count := int64(len(stakes))

	if err := a.audit.Log(ctx, "archive.liquidated", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive liquidated audit log: %w", err)
	}

	return count, nil
}

// ArchiveAudit queries audit entries before the cutoff, serializes them to
// JSONL, and uploads the file to S3 at archive/audit/YYYY-MM.jsonl. Returns
// the count of archived entries.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.List(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	return int64(len(entries)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/liquidated/2026-08.jsonl
//	archive/audit/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
