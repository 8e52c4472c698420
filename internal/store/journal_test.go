package store

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/collabsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalSinkRecordsNotification(t *testing.T) {
	s := newTestStore(t)
	sink := NewJournalSink(s)
	at := time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.UTC)

	n := domain.NewNotification(domain.EventError, at, map[string]any{
		"documentId": "notes",
		"error":      "ConnectionError",
	})
	require.NoError(t, sink.Consume(context.Background(), n))

	recs, err := s.ListNotifications(context.Background(), "notes", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.EventError, recs[0].Name)
	assert.True(t, recs[0].OccurredAt.Equal(at))
	assert.Equal(t, "ConnectionError", recs[0].Event["error"])
	assert.Equal(t, "2024-03-01T12:30:45.123Z", recs[0].Event["timestamp"])
}

func TestRetentionWorkerRemovesOldEntries(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.RecordNotification(ctx, &domain.NotificationRecord{
		Name:      domain.EventSynced,
		Event:     map[string]any{},
		CreatedAt: time.Now().Add(-time.Hour),
	}))

	StartRetentionWorker(ctx, s, 10*time.Millisecond, time.Minute)

	assert.Eventually(t, func() bool {
		recs, err := s.ListNotifications(context.Background(), "", 0)
		return err == nil && len(recs) == 0
	}, 2*time.Second, 20*time.Millisecond)
}
