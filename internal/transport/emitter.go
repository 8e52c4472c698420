package transport

import "sync"

// emitter delivers events to listeners from a single goroutine, in order.
// The queue is unbounded so a listener may call back into the transport
// without deadlocking.
type emitter struct {
	mu        sync.Mutex
	queue     []Event
	listeners map[int]Listener
	nextID    int
	closed    bool

	wake chan struct{}
	done chan struct{}
}

func newEmitter() *emitter {
	e := &emitter{
		listeners: make(map[int]Listener),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *emitter) subscribe(l Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return func() {}
	}
	id := e.nextID
	e.nextID++
	e.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, ev)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// close drops queued events and listeners and stops the delivery goroutine.
func (e *emitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.queue = nil
	e.listeners = make(map[int]Listener)
	close(e.done)
}

func (e *emitter) run() {
	for {
		select {
		case <-e.done:
			return
		case <-e.wake:
		}

		for {
			e.mu.Lock()
			if e.closed || len(e.queue) == 0 {
				e.mu.Unlock()
				break
			}
			ev := e.queue[0]
			e.queue = e.queue[1:]
			listeners := make([]Listener, 0, len(e.listeners))
			for id := 0; id < e.nextID; id++ {
				if l, ok := e.listeners[id]; ok {
					listeners = append(listeners, l)
				}
			}
			e.mu.Unlock()

			for _, l := range listeners {
				l(ev)
			}
		}
	}
}
