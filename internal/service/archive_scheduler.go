package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/stakevault/internal/domain"
)

// ArchiveScheduler periodically exports settled ledger history to cold
// storage. Records older than the retention window are snapshotted; the
// primary store keeps everything, since stake ids are never reused.
type ArchiveScheduler struct {
	archiver  domain.Archiver
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiveScheduler creates an ArchiveScheduler that runs every interval and
// archives records older than retention.
func NewArchiveScheduler(archiver domain.Archiver, interval, retention time.Duration, logger *slog.Logger) *ArchiveScheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &ArchiveScheduler{
		archiver:  archiver,
		interval:  interval,
		retention: retention,
		logger:    logger.With(slog.String("component", "archive_scheduler")),
	}
}

// Run archives on the configured interval until ctx is cancelled. Call in a
// goroutine.
func (a *ArchiveScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.runOnce(ctx)
		}
	}
}

func (a *ArchiveScheduler) runOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-a.retention)

	stakes, err := a.archiver.ArchiveLiquidated(ctx, cutoff)
	if err != nil {
		a.logger.ErrorContext(ctx, "liquidated stake archive failed", slog.String("error", err.Error()))
	}
	audits, err := a.archiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		a.logger.ErrorContext(ctx, "audit archive failed", slog.String("error", err.Error()))
	}
	if stakes > 0 || audits > 0 {
		a.logger.InfoContext(ctx, "archive pass complete",
			slog.Time("cutoff", cutoff),
			slog.Int64("stakes", stakes),
			slog.Int64("audit_entries", audits),
		)
	}
}
