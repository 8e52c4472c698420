// Package notify fans session notifications out to host-side sinks.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/collabsync/internal/domain"
)

const (
	defaultQueueSize = 256
	slowSinkWarning  = 100 * time.Millisecond
	closeTimeout     = 5 * time.Second
)

// Sink consumes notifications. Sinks are called from a single goroutine in
// the order notifications were accepted.
type Sink interface {
	Consume(ctx context.Context, n domain.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n domain.Notification) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, n domain.Notification) error { return f(ctx, n) }

// Dispatcher queues notifications and hands them to sinks asynchronously so a
// slow sink never blocks the session.
type Dispatcher struct {
	sinks  []Sink
	queue  chan domain.Notification
	logger *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closing   chan struct{}
	once      sync.Once
	wg        sync.WaitGroup
	closeWait time.Duration
	closeErr  error

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewDispatcher starts a dispatcher with the given queue size.
func NewDispatcher(queueSize int, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sinks:     sinks,
		queue:     make(chan domain.Notification, queueSize),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		closing:   make(chan struct{}),
		closeWait: closeTimeout,
	}

	d.wg.Add(1)
	go d.process()

	return d
}

// Notify queues n. When the queue is full the oldest notification is dropped.
func (d *Dispatcher) Notify(n domain.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Debug("Dispatcher closed, dropping notification", "name", n.Name)
		return
	}

	select {
	case d.queue <- n:
		return
	default:
	}

	d.logger.Warn("Notification queue full, applying backpressure",
		"name", n.Name,
		"queue_len", len(d.queue),
	)
	select {
	case <-d.queue:
		d.dropped++
	default:
	}
	select {
	case d.queue <- n:
	default:
		d.dropped++
		d.logger.Warn("Failed to queue notification after backpressure", "name", n.Name)
	}
}

func (d *Dispatcher) process() {
	defer d.wg.Done()

	for {
		select {
		case n := <-d.queue:
			d.dispatch(n)
		case <-d.closing:
			for {
				select {
				case n := <-d.queue:
					d.dispatch(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) dispatch(n domain.Notification) {
	for _, s := range d.sinks {
		start := time.Now()
		if err := s.Consume(d.ctx, n); err != nil {
			d.logger.Warn("Notification sink failed", "name", n.Name, "error", err)
		}
		if took := time.Since(start); took > slowSinkWarning {
			d.logger.Warn("Slow notification sink", "name", n.Name, "duration_ms", took.Milliseconds())
		}
	}
}

// ErrCloseTimeout is returned by Close when queued notifications were not
// delivered in time.
var ErrCloseTimeout = errors.New("dispatcher close timeout")

// Close stops accepting notifications, delivers what is queued, and waits for
// the worker with a timeout.
func (d *Dispatcher) Close() error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		remaining := len(d.queue)
		d.mu.Unlock()

		d.logger.Info("Closing notification dispatcher", "queue_remaining", remaining)
		close(d.closing)

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(d.closeWait):
			d.logger.Warn("Notification dispatcher shutdown timeout")
			d.closeErr = ErrCloseTimeout
		}
		d.cancel()
	})
	return d.closeErr
}

// Stats returns dispatcher statistics.
func (d *Dispatcher) Stats() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]any{
		"queue_len":      len(d.queue),
		"queue_capacity": cap(d.queue),
		"dropped":        d.dropped,
		"sinks":          len(d.sinks),
	}
}
