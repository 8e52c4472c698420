package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/collabsync/internal/domain"
)

// JournalSink records notifications in a Repository. Its Consume method
// matches notify.Sink.
type JournalSink struct {
	repo Repository
	now  func() time.Time
}

// NewJournalSink creates a sink writing to repo.
func NewJournalSink(repo Repository) *JournalSink {
	return &JournalSink{repo: repo, now: time.Now}
}

// Consume records n.
func (j *JournalSink) Consume(ctx context.Context, n domain.Notification) error {
	now := j.now()
	return j.repo.RecordNotification(ctx, &domain.NotificationRecord{
		Name:       n.Name,
		DocumentID: n.DocumentID(),
		Event:      n.Event,
		OccurredAt: n.OccurredAt(now),
		CreatedAt:  now,
	})
}

// StartRetentionWorker runs a background goroutine that periodically removes
// journal entries older than retention.
func StartRetentionWorker(ctx context.Context, repo Repository, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Journal retention worker started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				cleanupJournal(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Journal retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func cleanupJournal(ctx context.Context, repo Repository, retention time.Duration) {
	deleted, err := repo.CleanupNotifications(ctx, retention)
	if err != nil {
		slog.Error("Journal retention worker failed to cleanup notifications", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Journal retention worker removed old notifications", "count", deleted)
	}
}
