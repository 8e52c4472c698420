package domain

import "time"

// Notification names emitted to the host.
const (
	EventConnected       = "session:connected"
	EventDisconnected    = "session:disconnected"
	EventSynced          = "session:synced"
	EventSyncing         = "session:syncing"
	EventError           = "session:error"
	EventPresenceChanged = "session:presence-changed"
)

// TimestampLayout is ISO-8601 with millisecond precision in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Notification is the single envelope delivered to the host.
type Notification struct {
	Name  string         `json:"name"`
	Event map[string]any `json:"event"`
}

// NewNotification builds an envelope and stamps the payload with at.
func NewNotification(name string, at time.Time, payload map[string]any) Notification {
	event := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		event[k] = v
	}
	event["timestamp"] = FormatTimestamp(at)
	return Notification{Name: name, Event: event}
}

// FormatTimestamp renders t the way notification payloads carry it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// DocumentID returns the documentId payload field, if any.
func (n Notification) DocumentID() string {
	id, _ := n.Event["documentId"].(string)
	return id
}

// SessionID returns the sessionId payload field, if any.
func (n Notification) SessionID() string {
	id, _ := n.Event["sessionId"].(string)
	return id
}

// NotificationRecord is a notification as kept in the journal.
type NotificationRecord struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	DocumentID string         `json:"document_id,omitempty"`
	Event      map[string]any `json:"event"`
	OccurredAt time.Time      `json:"occurred_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

// OccurredAt parses the payload timestamp, falling back to fallback.
func (n Notification) OccurredAt(fallback time.Time) time.Time {
	raw, _ := n.Event["timestamp"].(string)
	if raw == "" {
		return fallback
	}
	t, err := time.Parse(TimestampLayout, raw)
	if err != nil {
		return fallback
	}
	return t
}
