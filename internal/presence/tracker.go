// Package presence derives the participant list from awareness state.
package presence

import (
	"math/rand/v2"
	"sync"

	"github.com/ashureev/collabsync/internal/domain"
)

// Palette holds the cursor colors handed out to participants.
var Palette = []string{
	"#6B46C1",
	"#DC2626",
	"#EA580C",
	"#CA8A04",
	"#0284C7",
	"#0D9488",
	"#16A34A",
	"#65A30D",
	"#C026D3",
	"#DB2777",
	"#7C3AED",
	"#0891B2",
}

// RandomColor picks a palette entry.
func RandomColor() string {
	return Palette[rand.IntN(len(Palette))]
}

// NewLocalUser returns the presence entry for the local participant.
func NewLocalUser(name string) domain.User {
	return domain.User{Name: name, Color: RandomColor()}
}

// Tracker keeps the last derived participant list.
type Tracker struct {
	mu    sync.RWMutex
	users []domain.User
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{users: []domain.User{}}
}

// Recompute replaces the participant list with the peers in states that carry
// a user, keeping their order.
func (t *Tracker) Recompute(states []domain.PeerState) domain.Presence {
	users := Derive(states)

	t.mu.Lock()
	t.users = users
	t.mu.Unlock()

	return domain.Presence{Users: domain.CloneUsers(users), UserCount: len(users)}
}

// Users returns a copy of the current participant list.
func (t *Tracker) Users() []domain.User {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return domain.CloneUsers(t.users)
}

// Count returns the number of tracked participants.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}

// Reset clears the participant list.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.users = []domain.User{}
	t.mu.Unlock()
}

// Derive projects peer states to users, skipping peers without a user field.
func Derive(states []domain.PeerState) []domain.User {
	users := make([]domain.User, 0, len(states))
	for _, st := range states {
		if st.User == nil {
			continue
		}
		users = append(users, domain.User{Name: st.User.Name, Color: st.User.Color})
	}
	return users
}
