package notify

import (
	"context"
	"sync"

	"github.com/ashureev/collabsync/internal/domain"
)

// Recent keeps the last notifications in a fixed-size ring, overwriting the
// oldest once full.
type Recent struct {
	mu   sync.RWMutex
	buf  []domain.Notification
	size int
	head int
	full bool
}

// NewRecent creates a ring holding up to size notifications.
func NewRecent(size int) *Recent {
	if size <= 0 {
		size = 100
	}
	return &Recent{buf: make([]domain.Notification, size), size: size}
}

// Consume implements Sink.
func (r *Recent) Consume(_ context.Context, n domain.Notification) error {
	r.Add(n)
	return nil
}

// Add stores n.
func (r *Recent) Add(n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = n
	r.head = (r.head + 1) % r.size
	if r.head == 0 {
		r.full = true
	}
}

// List returns the stored notifications oldest first.
func (r *Recent) List() []domain.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]domain.Notification, r.head)
		copy(out, r.buf[:r.head])
		return out
	}
	out := make([]domain.Notification, 0, r.size)
	out = append(out, r.buf[r.head:]...)
	out = append(out, r.buf[:r.head]...)
	return out
}

// Len returns the number of stored notifications.
func (r *Recent) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return r.size
	}
	return r.head
}

// Reset clears the ring.
func (r *Recent) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = make([]domain.Notification, r.size)
	r.head = 0
	r.full = false
}
