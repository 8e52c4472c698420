// Package store provides the notification journal.
package store

import (
	"context"
	"time"

	"github.com/ashureev/collabsync/internal/domain"
)

// Repository defines the interface for persisting session notifications.
type Repository interface {
	// RecordNotification appends a notification to the journal.
	RecordNotification(ctx context.Context, rec *domain.NotificationRecord) error

	// ListNotifications returns the newest notifications first. An empty
	// documentID matches every document.
	ListNotifications(ctx context.Context, documentID string, limit int) ([]*domain.NotificationRecord, error)

	// CleanupNotifications removes entries older than ttl.
	CleanupNotifications(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
