// Package replica holds the local copy of a shared document as an ordered
// log of opaque updates. Merging updates is left to the editor that reads
// them back.
package replica

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrDestroyed is returned when a destroyed document is modified.
var ErrDestroyed = errors.New("replica: document destroyed")

// Origin tags where an update came from.
type Origin int

// Update origins.
const (
	OriginLocal Origin = iota
	OriginRemote
)

// Observer is notified of each update applied to the document.
type Observer func(update []byte, origin Origin)

// Doc is a document replica.
type Doc struct {
	guid string

	mu        sync.RWMutex
	updates   [][]byte
	observers map[int]Observer
	nextID    int
	destroyed bool
}

// New creates an empty document.
func New() *Doc {
	return &Doc{
		guid:      uuid.NewString(),
		observers: make(map[int]Observer),
	}
}

// GUID identifies this replica instance.
func (d *Doc) GUID() string {
	return d.guid
}

// Apply appends update and notifies observers outside the lock.
func (d *Doc) Apply(update []byte, origin Origin) error {
	data := make([]byte, len(update))
	copy(data, update)

	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return ErrDestroyed
	}
	d.updates = append(d.updates, data)
	observers := make([]Observer, 0, len(d.observers))
	for _, fn := range d.observers {
		observers = append(observers, fn)
	}
	d.mu.Unlock()

	for _, fn := range observers {
		fn(data, origin)
	}
	return nil
}

// Updates returns a copy of every applied update in order.
func (d *Doc) Updates() [][]byte {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([][]byte, len(d.updates))
	for i, u := range d.updates {
		c := make([]byte, len(u))
		copy(c, u)
		out[i] = c
	}
	return out
}

// Len returns the number of applied updates.
func (d *Doc) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.updates)
}

// Observe registers fn and returns a function that removes it.
func (d *Doc) Observe(fn Observer) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.observers[id] = fn
	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}

// Destroy drops all content and observers. Safe to call more than once.
func (d *Doc) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.destroyed = true
	d.updates = nil
	d.observers = make(map[int]Observer)
}

// Destroyed reports whether Destroy was called.
func (d *Doc) Destroyed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.destroyed
}
