package collab

import (
	"github.com/ashureev/collabsync/internal/domain"
	"github.com/ashureev/collabsync/internal/transport"
)

// bridge turns events from one transport into status updates and
// notifications. It is bound to the session epoch it was created for and
// ignores everything once that session is gone.
type bridge struct {
	m     *Manager
	tr    transport.Transport
	epoch uint64
}

func (b *bridge) handle(ev transport.Event) {
	m := b.m

	m.mu.Lock()
	if !m.currentLocked(b.epoch, b.tr) {
		m.mu.Unlock()
		return
	}
	var notes []domain.Notification
	switch ev.Kind {
	case transport.KindConnected:
		notes = b.connected(ev)
	case transport.KindDisconnected:
		notes = b.disconnected(ev)
	case transport.KindSynced:
		notes = b.synced()
	case transport.KindStatus:
		notes = b.status(ev)
	case transport.KindError:
		notes = b.failed(ev)
	case transport.KindPresence:
		notes = b.presenceChanged()
	}
	m.mu.Unlock()

	m.deliver(notes)
}

func (b *bridge) connected(ev transport.Event) []domain.Notification {
	m := b.m
	m.retries.Cancel()
	m.attempts = 0
	m.status.Connected = true
	m.status.Error = nil
	m.status.State = domain.StateSyncing

	var connID any
	if ev.ConnectionID != "" {
		id := ev.ConnectionID
		m.status.ConnectionID = &id
		connID = id
	}

	m.logger.Info("Connected to sync endpoint",
		"document_id", m.cfg.DocumentID,
		"endpoint", m.cfg.NormalizedEndpoint(),
		"user_name", m.cfg.UserName,
		"connection_id", ev.ConnectionID,
	)
	return []domain.Notification{m.notification(domain.EventConnected, map[string]any{
		"documentId":   m.cfg.DocumentID,
		"connectionId": connID,
	})}
}

func (b *bridge) disconnected(ev transport.Event) []domain.Notification {
	m := b.m
	m.status.Connected = false
	m.status.Synced = false
	if m.status.State != domain.StateRetrying && m.status.State != domain.StateFailed {
		m.status.State = domain.StateDisconnected
	}

	reason := ev.Reason
	if reason == "" {
		reason = "unknown"
	}
	m.logger.Info("Disconnected from sync endpoint", "document_id", m.cfg.DocumentID, "reason", reason)
	return []domain.Notification{m.notification(domain.EventDisconnected, map[string]any{
		"documentId": m.cfg.DocumentID,
		"reason":     reason,
	})}
}

func (b *bridge) synced() []domain.Notification {
	m := b.m
	m.status.Synced = true
	m.status.Syncing = false
	m.status.State = domain.StateSynced

	m.logger.Info("Document synced", "document_id", m.cfg.DocumentID)
	return []domain.Notification{m.notification(domain.EventSynced, map[string]any{
		"documentId": m.cfg.DocumentID,
		"state":      "synced",
	})}
}

func (b *bridge) status(ev transport.Event) []domain.Notification {
	m := b.m
	switch ev.Phase {
	case transport.PhaseConnecting:
		m.status.State = domain.StateConnecting
	case transport.PhaseSyncing:
		m.status.State = domain.StateSyncing
	default:
		return nil
	}
	m.status.Syncing = true

	return []domain.Notification{m.notification(domain.EventSyncing, map[string]any{
		"documentId": m.cfg.DocumentID,
		"state":      string(ev.Phase),
	})}
}

func (b *bridge) failed(ev transport.Event) []domain.Notification {
	m := b.m
	m.attempts++
	attempt := m.attempts
	maxAttempts := m.cfg.MaxConnectionAttempts

	name := transport.ErrorName(ev.Err)
	msg := transport.ErrorMessage(ev.Err)
	m.status.Error = &msg

	level := m.logger.Warn
	if attempt >= maxAttempts {
		level = m.logger.Error
	}
	level("Sync connection error",
		"attempt", attempt,
		"max_attempts", maxAttempts,
		"error_name", name,
		"error", msg,
		"document_id", m.cfg.DocumentID,
		"endpoint", m.cfg.NormalizedEndpoint(),
	)

	note := m.notification(domain.EventError, map[string]any{
		"error":       name,
		"message":     msg,
		"attempt":     attempt,
		"maxAttempts": maxAttempts,
		"documentId":  m.cfg.DocumentID,
	})

	// An error on a live connection does not drop it; the state stays as is
	// and no reconnect is scheduled.
	if b.tr.IsConnected() {
		return []domain.Notification{note}
	}

	epoch, tr := b.epoch, b.tr
	delay, scheduled := m.retries.Schedule(attempt, maxAttempts, func() {
		m.retryFired(epoch, tr)
	})
	if scheduled {
		m.status.State = domain.StateRetrying
		m.logger.Info("Retrying sync connection", "delay", delay, "attempt", attempt)
	} else {
		m.status.State = domain.StateFailed
		m.logger.Error("Max connection attempts reached, stopping retries",
			"document_id", m.cfg.DocumentID,
			"max_attempts", maxAttempts,
		)
	}
	return []domain.Notification{note}
}

func (b *bridge) presenceChanged() []domain.Notification {
	m := b.m
	aw := b.tr.Awareness()
	if aw == nil {
		return nil
	}
	p := m.presence.Recompute(aw.States())
	m.status.Users = p.Users
	m.status.UserCount = p.UserCount

	return []domain.Notification{m.notification(domain.EventPresenceChanged, map[string]any{
		"documentId": m.cfg.DocumentID,
		"users":      domain.CloneUsers(p.Users),
		"userCount":  p.UserCount,
	})}
}
