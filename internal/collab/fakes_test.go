package collab

import (
	"errors"
	"sync"
	"time"

	"github.com/ashureev/collabsync/internal/domain"
	"github.com/ashureev/collabsync/internal/replica"
	"github.com/ashureev/collabsync/internal/retry"
	"github.com/ashureev/collabsync/internal/transport"
)

// fakeAwareness is an awareness map the test fills directly.
type fakeAwareness struct {
	mu     sync.Mutex
	local  *domain.User
	remote []domain.PeerState
}

func (a *fakeAwareness) ClientID() string { return "local" }

func (a *fakeAwareness) States() []domain.PeerState {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []domain.PeerState{{ClientID: "local", User: a.local}}
	return append(out, a.remote...)
}

func (a *fakeAwareness) SetLocalUser(user domain.User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.local = &user
}

func (a *fakeAwareness) LocalUser() *domain.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.local
}

func (a *fakeAwareness) setRemote(states ...domain.PeerState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.remote = states
}

// fakeTransport records calls and emits only when the test asks it to, on
// the test goroutine.
type fakeTransport struct {
	opts      transport.Options
	awareness *fakeAwareness

	mu          sync.Mutex
	listeners   map[int]transport.Listener
	nextID      int
	connected   bool
	synced      bool
	destroyed   bool
	connects    int
	disconnects int
	syncs       int
}

func newFakeTransport(opts transport.Options) *fakeTransport {
	return &fakeTransport{
		opts:      opts,
		awareness: &fakeAwareness{},
		listeners: make(map[int]transport.Listener),
	}
}

func (f *fakeTransport) Connect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeTransport) ForceSync() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) IsSynced() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.synced
}

func (f *fakeTransport) ConnectionID() string { return "" }

func (f *fakeTransport) Awareness() transport.Awareness { return f.awareness }

func (f *fakeTransport) Subscribe(l transport.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeTransport) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
}

func (f *fakeTransport) calls() (connects, disconnects, syncs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects, f.syncs
}

func (f *fakeTransport) isDestroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

// markConnected flips the fake's flags without notifying listeners, as if
// the matching events were still queued.
func (f *fakeTransport) markConnected(synced bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.synced = synced
}

// emit updates the fake's flags and hands ev to every current listener.
func (f *fakeTransport) emit(ev transport.Event) {
	f.mu.Lock()
	switch ev.Kind {
	case transport.KindConnected:
		f.connected = true
	case transport.KindDisconnected:
		f.connected = false
		f.synced = false
	case transport.KindSynced:
		f.synced = true
	}
	listeners := make([]transport.Listener, 0, len(f.listeners))
	for id := 0; id < f.nextID; id++ {
		if l, ok := f.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	f.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// fakeTimer is a retry timer fired by hand.
type fakeTimer struct {
	delay   time.Duration
	fire    func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

// harness wires a Manager to fakes.
type harness struct {
	m *Manager

	mu         sync.Mutex
	transports []*fakeTransport
	docs       []*replica.Doc
	timers     []*fakeTimer
	notes      []domain.Notification

	transportErr error
	panicOnOpen  bool
}

var fixedNow = time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.UTC)

func newHarness() *harness {
	h := &harness{}
	h.m = NewManager(Options{
		NewTransport: h.newTransport,
		NewReplica:   h.newReplica,
		Notifier:     NotifierFunc(h.notify),
		AfterFunc:    h.afterFunc,
		Now:          func() time.Time { return fixedNow },
	})
	return h
}

func (h *harness) newTransport(opts transport.Options) (transport.Transport, error) {
	if h.panicOnOpen {
		panic("boom")
	}
	if h.transportErr != nil {
		return nil, h.transportErr
	}
	f := newFakeTransport(opts)
	h.mu.Lock()
	h.transports = append(h.transports, f)
	h.mu.Unlock()
	return f, nil
}

func (h *harness) newReplica() (*replica.Doc, error) {
	d := replica.New()
	h.mu.Lock()
	h.docs = append(h.docs, d)
	h.mu.Unlock()
	return d, nil
}

func (h *harness) afterFunc(d time.Duration, f func()) retry.Timer {
	t := &fakeTimer{delay: d, fire: f}
	h.mu.Lock()
	h.timers = append(h.timers, t)
	h.mu.Unlock()
	return t
}

func (h *harness) notify(n domain.Notification) {
	h.mu.Lock()
	h.notes = append(h.notes, n)
	h.mu.Unlock()
}

func (h *harness) transport() *fakeTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.transports) == 0 {
		return nil
	}
	return h.transports[len(h.transports)-1]
}

func (h *harness) lastTimer() *fakeTimer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.timers) == 0 {
		return nil
	}
	return h.timers[len(h.timers)-1]
}

func (h *harness) delays() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]time.Duration, len(h.timers))
	for i, t := range h.timers {
		out[i] = t.delay
	}
	return out
}

// drain returns and clears the recorded notifications.
func (h *harness) drain() []domain.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.notes
	h.notes = nil
	return out
}

func names(notes []domain.Notification) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.Name
	}
	return out
}

var errRefused = errors.New("dial tcp: connection refused")
