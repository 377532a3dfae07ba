package audit

import (
	"context"
	"sync"
	"time"

	"antrian-klinik/internal/models"

	"go.uber.org/zap"
)

// Async moves audit writes off the mutation path. Events are dropped with a
// warning when the buffer is full.
type Async struct {
	next    Sink
	log     *zap.Logger
	events  chan models.AuditEvent
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsync(next Sink, buffer int, log *zap.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		next:    next,
		log:     log,
		events:  make(chan models.AuditEvent, buffer),
		timeout: 5 * time.Second,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Record queues ev. Events recorded after Close are dropped.
func (a *Async) Record(_ context.Context, ev models.AuditEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.log.Warn("audit sudah ditutup, event dibuang",
			zap.String("queue", ev.Key.String()),
			zap.String("event", string(ev.Operation)),
		)
		return
	}
	select {
	case a.events <- ev:
	default:
		a.log.Warn("audit buffer penuh, event dibuang",
			zap.String("queue", ev.Key.String()),
			zap.String("event", string(ev.Operation)),
			zap.Int64("version", ev.Version),
		)
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for ev := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		a.next.Record(ctx, ev)
		cancel()
	}
}

// Close drains pending events.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

// Multi fans one event out to several sinks in order.
type Multi []Sink

func (m Multi) Record(ctx context.Context, ev models.AuditEvent) {
	for _, s := range m {
		s.Record(ctx, ev)
	}
}
