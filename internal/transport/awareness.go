package transport

import (
	"sync"

	"github.com/ashureev/collabsync/internal/domain"
	"github.com/google/uuid"
)

// AwarenessMap is an insertion-ordered awareness map. The local client is
// always the first entry.
type AwarenessMap struct {
	clientID string
	onLocal  func(user *domain.User)

	mu     sync.RWMutex
	order  []string
	states map[string]*domain.User
}

// NewAwarenessMap creates a map holding only the local client, with no user.
// onLocal is called after every local user change.
func NewAwarenessMap(onLocal func(user *domain.User)) *AwarenessMap {
	id := uuid.NewString()
	return &AwarenessMap{
		clientID: id,
		onLocal:  onLocal,
		order:    []string{id},
		states:   map[string]*domain.User{id: nil},
	}
}

// ClientID returns the local client id.
func (a *AwarenessMap) ClientID() string {
	return a.clientID
}

// States returns every entry in insertion order.
func (a *AwarenessMap) States() []domain.PeerState {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]domain.PeerState, 0, len(a.order))
	for _, id := range a.order {
		st := domain.PeerState{ClientID: id}
		if u := a.states[id]; u != nil {
			cp := *u
			st.User = &cp
		}
		out = append(out, st)
	}
	return out
}

// SetLocalUser publishes the local user.
func (a *AwarenessMap) SetLocalUser(user domain.User) {
	a.mu.Lock()
	u := user
	a.states[a.clientID] = &u
	a.mu.Unlock()

	if a.onLocal != nil {
		cp := user
		a.onLocal(&cp)
	}
}

// LocalUser returns the local user, or nil when none was published.
func (a *AwarenessMap) LocalUser() *domain.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if u := a.states[a.clientID]; u != nil {
		cp := *u
		return &cp
	}
	return nil
}

// setRemote inserts or updates a remote entry and reports whether anything changed.
func (a *AwarenessMap) setRemote(clientID string, user *domain.User) bool {
	if clientID == "" || clientID == a.clientID {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	prev, exists := a.states[clientID]
	if !exists {
		a.order = append(a.order, clientID)
	} else if sameUser(prev, user) {
		return false
	}
	if user != nil {
		cp := *user
		user = &cp
	}
	a.states[clientID] = user
	return true
}

// removeRemote drops a remote entry and reports whether it existed.
func (a *AwarenessMap) removeRemote(clientID string) bool {
	if clientID == a.clientID {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.states[clientID]; !ok {
		return false
	}
	delete(a.states, clientID)
	for i, id := range a.order {
		if id == clientID {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return true
}

// clearRemote drops every remote entry and reports whether any existed.
func (a *AwarenessMap) clearRemote() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.order) <= 1 {
		return false
	}
	local := a.states[a.clientID]
	a.order = []string{a.clientID}
	a.states = map[string]*domain.User{a.clientID: local}
	return true
}

func sameUser(a, b *domain.User) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
