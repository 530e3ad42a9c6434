// Package messaging fans domain events out to in-process subscribers after a
// flow has committed.
package messaging

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus dispatches events to handlers registered per type and to
// catch-all handlers. In async mode each handler runs on a bounded worker
// pool; Close waits for the pending ones.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workers     chan struct{}
	log         *logger.Logger
	metrics     *Metrics
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// Config configures an InMemoryEventBus.
type Config struct {
	// AsyncMode runs handlers off the publisher's goroutine.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent async handlers.
	WorkerPoolSize int

	Logger *logger.Logger
}

// DefaultConfig returns a synchronous bus.
func DefaultConfig() Config {
	return Config{WorkerPoolSize: 8}
}

// NewInMemoryEventBus creates a bus.
func NewInMemoryEventBus(cfg Config) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 8
	}
	return &InMemoryEventBus{
		handlers:  make(map[shared.EventType][]shared.EventHandler),
		asyncMode: cfg.AsyncMode,
		workers:   make(chan struct{}, cfg.WorkerPoolSize),
		log:       cfg.Logger.With(logger.Component("eventbus")),
		metrics:   newMetrics(),
		closeCh:   make(chan struct{}),
	}
}

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for every event.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish delivers the event. Handler errors are logged, never returned: the
// flow that produced the event has already committed.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	b.metrics.recordPublish(event.EventType())

	for _, h := range handlers {
		if b.asyncMode {
			b.runAsync(event, h)
			continue
		}
		if err := b.run(event, h); err != nil {
			b.log.Error("event handler failed",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}
	return nil
}

func (b *InMemoryEventBus) runAsync(event shared.Event, h shared.EventHandler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		select {
		case b.workers <- struct{}{}:
			defer func() { <-b.workers }()
		case <-b.closeCh:
			return
		}

		if err := b.run(event, h); err != nil {
			b.log.Error("async event handler failed",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}()
}

func (b *InMemoryEventBus) run(event shared.Event, h shared.EventHandler) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
		b.metrics.recordHandler(time.Since(start), err == nil)
	}()
	return h(event)
}

// Close stops accepting events and waits for running handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Metrics returns a snapshot of the bus counters.
func (b *InMemoryEventBus) Metrics() MetricsSnapshot {
	return b.metrics.snapshot()
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics counts published events and handler runs.
type Metrics struct {
	mu            sync.Mutex
	published     map[shared.EventType]int64
	executions    int64
	failures      int64
	totalDuration time.Duration
}

func newMetrics() *Metrics {
	return &Metrics{published: make(map[shared.EventType]int64)}
}

func (m *Metrics) recordPublish(t shared.EventType) {
	m.mu.Lock()
	m.published[t]++
	m.mu.Unlock()
}

func (m *Metrics) recordHandler(d time.Duration, ok bool) {
	m.mu.Lock()
	m.executions++
	m.totalDuration += d
	if !ok {
		m.failures++
	}
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Published       map[shared.EventType]int64
	TotalPublished  int64
	HandlerRuns     int64
	HandlerFailures int64
	AverageDuration time.Duration
}

func (m *Metrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MetricsSnapshot{
		Published:       make(map[shared.EventType]int64, len(m.published)),
		HandlerRuns:     m.executions,
		HandlerFailures: m.failures,
	}
	for t, n := range m.published {
		s.Published[t] = n
		s.TotalPublished += n
	}
	if m.executions > 0 {
		s.AverageDuration = m.totalDuration / time.Duration(m.executions)
	}
	return s
}
