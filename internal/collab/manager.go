// Package collab manages the lifecycle of one collaborative editing session:
// it owns the document replica and the transport, maps transport events to a
// status model, and retries failed connections.
package collab

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/collabsync/internal/config"
	"github.com/ashureev/collabsync/internal/domain"
	"github.com/ashureev/collabsync/internal/presence"
	"github.com/ashureev/collabsync/internal/replica"
	"github.com/ashureev/collabsync/internal/retry"
	"github.com/ashureev/collabsync/internal/transport"
)

// Notifier receives session notifications. Notify is never called while the
// manager holds its lock, so implementations may call back into the manager.
type Notifier interface {
	Notify(n domain.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n domain.Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n domain.Notification) { f(n) }

// Options configures a Manager. Zero values select the production defaults.
type Options struct {
	NewTransport transport.Factory
	NewReplica   func() (*replica.Doc, error)
	Notifier     Notifier
	Logger       *slog.Logger
	AfterFunc    retry.AfterFunc
	Now          func() time.Time
}

// Bindings are the handles an editor attaches to. They are borrowed: the
// editor must not destroy them.
type Bindings struct {
	Replica   *replica.Doc
	Transport transport.Transport
	LocalUser domain.User
}

// Manager is the session lifecycle manager.
type Manager struct {
	newTransport transport.Factory
	newReplica   func() (*replica.Doc, error)
	notifier     Notifier
	logger       *slog.Logger
	now          func() time.Time

	resolver config.Resolver
	retries  *retry.Scheduler
	presence *presence.Tracker

	mu        sync.Mutex
	settings  config.Settings
	cfg       config.SessionConfig
	res       resources
	epoch     uint64
	attempts  int
	status    domain.SessionStatus
	localUser domain.User
}

// NewManager creates an idle manager.
func NewManager(opts Options) *Manager {
	if opts.NewTransport == nil {
		opts.NewTransport = transport.NewWebSocketTransport
	}
	if opts.NewReplica == nil {
		opts.NewReplica = func() (*replica.Doc, error) { return replica.New(), nil }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		newTransport: opts.NewTransport,
		newReplica:   opts.NewReplica,
		notifier:     opts.Notifier,
		logger:       opts.Logger,
		now:          opts.Now,
		retries:      retry.NewScheduler(opts.AfterFunc),
		presence:     presence.NewTracker(),
		status:       domain.EmptyStatus(),
	}
}

// Initialize tears down any existing session and, when settings make the
// session eligible, builds a new replica and transport. Failures are reported
// as session:error notifications and never returned.
func (m *Manager) Initialize(settings config.Settings) {
	m.mu.Lock()
	notes := m.initializeLocked(settings)
	m.mu.Unlock()

	m.deliver(notes)
}

// Reattempt resets the attempt counter and rebuilds the session from the last
// settings passed to Initialize.
func (m *Manager) Reattempt() {
	m.mu.Lock()
	m.logger.Info("Manually reattempting connection", "previous_attempts", m.attempts)
	m.attempts = 0
	notes := m.initializeLocked(m.settings)
	m.mu.Unlock()

	m.deliver(notes)
}

// Destroy releases the transport and the replica and resets the status.
// It is safe to call without a session.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyLocked()
}

// Connect asks an existing, disconnected transport to connect.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr := m.res.tr
	if tr == nil || tr.IsConnected() {
		return
	}
	m.status.State = domain.StateConnecting
	tr.Connect()
}

// Disconnect closes a connected transport.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr := m.res.tr
	if tr == nil || !tr.IsConnected() {
		return
	}
	tr.Disconnect()
}

// ForceSync requests an immediate resync on a connected transport.
func (m *Manager) ForceSync() {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr := m.res.tr
	if tr == nil || !tr.IsConnected() {
		return
	}
	tr.ForceSync()
}

// RenameLocalUser republishes the local participant with name and a new
// color. It reports whether the transport supports presence.
func (m *Manager) RenameLocalUser(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.res.tr == nil {
		return false
	}
	aw := m.res.tr.Awareness()
	if aw == nil {
		return false
	}
	if name == "" {
		name = config.DefaultUserName
	}
	m.localUser = presence.NewLocalUser(name)
	aw.SetLocalUser(m.localUser)
	return true
}

// Status returns a snapshot. Connected and Synced are read from the live
// transport.
func (m *Manager) Status() domain.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.status.Clone()
	s.Connected = false
	s.Synced = false
	if tr := m.res.tr; tr != nil {
		s.Connected = tr.IsConnected()
		s.Synced = s.Connected && tr.IsSynced()
	}
	s.Users = m.presence.Users()
	s.UserCount = len(s.Users)
	s.Attempt = m.attempts
	return s
}

// BindingHandles returns the current replica and transport, or zero Bindings
// when no session is active.
func (m *Manager) BindingHandles() Bindings {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.res.active() {
		return Bindings{}
	}
	return Bindings{
		Replica:   m.res.doc,
		Transport: m.res.tr,
		LocalUser: m.localUser,
	}
}

// Active reports whether a session exists.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.res.active()
}

// SessionID identifies the active session, or returns "" when there is none.
// Every notification of that session carries it as sessionId.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.res.doc == nil {
		return ""
	}
	return m.res.doc.GUID()
}

// Attempts returns the current attempt counter.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Config returns the config the current session was resolved from.
func (m *Manager) Config() config.SessionConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *Manager) initializeLocked(settings config.Settings) (notes []domain.Notification) {
	m.destroyLocked()

	m.settings = settings
	cfg := m.resolver.Resolve(settings)
	m.cfg = cfg
	if !cfg.Eligible() {
		m.logger.Debug("Collaboration not eligible, session stays inactive",
			"enabled", cfg.Enabled,
			"has_document_id", cfg.DocumentID != "",
			"has_endpoint", cfg.EndpointURL != "",
		)
		return nil
	}

	var doc *replica.Doc
	defer func() {
		if r := recover(); r != nil {
			if doc != nil && !m.res.active() {
				doc.Destroy()
			}
			notes = m.initFailedLocked(fmt.Errorf("initialize session: %v", r))
		}
	}()

	doc, err := m.newReplica()
	if err != nil {
		return m.initFailedLocked(fmt.Errorf("create replica: %w", err))
	}

	endpoint := cfg.NormalizedEndpoint()
	m.logger.Info("Initializing collaboration session",
		"endpoint", endpoint,
		"document_id", cfg.DocumentID,
		"connect_to", endpoint+"/"+cfg.DocumentID,
		"has_token", cfg.HasToken(),
		"save_mode", cfg.SaveMode,
		"user_name", cfg.UserName,
	)

	tr, err := m.newTransport(transport.Options{
		URL:        endpoint,
		DocumentID: cfg.DocumentID,
		Token:      cfg.AuthToken,
		Authenticate: func() transport.AuthPayload {
			return transport.AuthPayload{
				Token:    cfg.AuthToken,
				SaveMode: cfg.SaveMode,
				UserName: cfg.UserName,
			}
		},
		Document: doc,
		Logger:   m.logger,
	})
	if err != nil {
		doc.Destroy()
		return m.initFailedLocked(fmt.Errorf("open transport: %w", err))
	}

	m.epoch++
	b := &bridge{m: m, tr: tr, epoch: m.epoch}
	m.res = resources{doc: doc, tr: tr, unsubscribe: tr.Subscribe(b.handle)}

	m.status.DocumentID = cfg.DocumentID
	m.status.MaxAttempts = cfg.MaxConnectionAttempts
	m.status.State = domain.StateDisconnected

	if aw := tr.Awareness(); aw != nil {
		m.localUser = presence.NewLocalUser(cfg.UserName)
		aw.SetLocalUser(m.localUser)
	}
	if cfg.AutoConnect {
		m.status.State = domain.StateConnecting
		tr.Connect()
	}
	return nil
}

func (m *Manager) destroyLocked() {
	m.retries.Cancel()
	m.res.release()
	m.epoch++
	m.cfg = config.SessionConfig{}
	m.attempts = 0
	m.presence.Reset()
	m.status = domain.EmptyStatus()
	m.localUser = domain.User{}
}

func (m *Manager) initFailedLocked(err error) []domain.Notification {
	m.logger.Error("Failed to initialize collaboration", "error", err, "document_id", m.cfg.DocumentID)
	return []domain.Notification{m.notification(domain.EventError, map[string]any{
		"error":   "InitializationError",
		"message": err.Error(),
	})}
}

// currentLocked reports whether epoch and tr still identify the live session.
func (m *Manager) currentLocked(epoch uint64, tr transport.Transport) bool {
	return m.epoch == epoch && m.res.tr != nil && m.res.tr == tr
}

func (m *Manager) retryFired(epoch uint64, tr transport.Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.currentLocked(epoch, tr) {
		m.logger.Debug("Dropping stale retry")
		return
	}
	if tr.IsConnected() {
		m.logger.Debug("Dropping retry, transport already connected")
		m.status.State = domain.StateSyncing
		if tr.IsSynced() {
			m.status.State = domain.StateSynced
		}
		return
	}
	m.status.State = domain.StateConnecting
	tr.Connect()
}

// notification stamps payload with the current session id when a session is
// active.
func (m *Manager) notification(name string, payload map[string]any) domain.Notification {
	if m.res.doc != nil {
		payload["sessionId"] = m.res.doc.GUID()
	}
	return domain.NewNotification(name, m.now(), payload)
}

func (m *Manager) deliver(notes []domain.Notification) {
	if m.notifier == nil {
		return
	}
	for _, n := range notes {
		m.notifier.Notify(n)
	}
}
