package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"antrian-klinik/internal/models"
	"antrian-klinik/internal/queue"

	"go.uber.org/atomic"
)

var testKey = models.QueueKey{SpecialistID: "dr-ani", Day: "2026-03-02", Department: "gigi"}

var desk = models.Actor{ID: "desk-1", Role: models.RoleDesk}

func newTestEngine() *queue.Engine {
	return queue.NewEngine(queue.Options{
		Location:      time.UTC,
		IntakeDefault: true,
		Clock: func() time.Time {
			return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		},
	})
}

// engineAPI runs operations straight against an in-process engine.
type engineAPI struct {
	engine *queue.Engine
	actor  models.Actor

	pulls atomic.Int64

	mu sync.Mutex
	// gate, when set, blocks the next mutation until closed.
	gate chan struct{}
	// failNext makes the next mutation return this error after applying it
	// (applied=true) or without applying (applied=false).
	failNext error
	applied  bool
	// pullGate delays Snapshot answers until closed.
	pullGate chan struct{}
}

func newEngineAPI(engine *queue.Engine) *engineAPI {
	return &engineAPI{engine: engine, actor: desk}
}

func (a *engineAPI) before(ctx context.Context) (bool, error) {
	a.mu.Lock()
	gate := a.gate
	a.gate = nil
	fail, applied := a.failNext, a.applied
	a.failNext = nil
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return applied, fail
}

func (a *engineAPI) Snapshot(ctx context.Context, key models.QueueKey) (models.Snapshot, error) {
	a.pulls.Inc()
	snap, err := a.engine.Snapshot(ctx, key)

	// state is read first so tests can advance the server while the
	// answer is still in flight
	a.mu.Lock()
	gate := a.pullGate
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return snap, err
}

func (a *engineAPI) Enqueue(ctx context.Context, key models.QueueKey, draft models.EntryDraft) (models.EntryResult, error) {
	applied, fail := a.before(ctx)
	if fail != nil && !applied {
		return models.EntryResult{}, fail
	}
	e, snap, err := a.engine.Enqueue(ctx, key, a.actor, draft)
	if fail != nil {
		return models.EntryResult{}, fail
	}
	return models.EntryResult{Entry: e, Snapshot: snap}, err
}

func (a *engineAPI) CallNext(ctx context.Context, key models.QueueKey) (models.EntryResult, error) {
	applied, fail := a.before(ctx)
	if fail != nil && !applied {
		return models.EntryResult{}, fail
	}
	e, snap, err := a.engine.CallNext(ctx, key, a.actor)
	if fail != nil {
		return models.EntryResult{}, fail
	}
	return models.EntryResult{Entry: e, Snapshot: snap}, err
}

func (a *engineAPI) wrap(ctx context.Context, fn func() (models.Snapshot, error)) (models.Snapshot, error) {
	applied, fail := a.before(ctx)
	if fail != nil && !applied {
		return models.Snapshot{}, fail
	}
	snap, err := fn()
	if fail != nil {
		return models.Snapshot{}, fail
	}
	return snap, err
}

func (a *engineAPI) Move(ctx context.Context, key models.QueueKey, entryID string, req models.MoveRequest) (models.Snapshot, error) {
	return a.wrap(ctx, func() (models.Snapshot, error) {
		return a.engine.Move(ctx, key, a.actor, entryID, req.Position, req.IfVersion)
	})
}

func (a *engineAPI) BulkReorder(ctx context.Context, key models.QueueKey, req models.ReorderRequest) (models.Snapshot, error) {
	return a.wrap(ctx, func() (models.Snapshot, error) {
		return a.engine.BulkReorder(ctx, key, a.actor, req.Positions, req.IfVersion)
	})
}

func (a *engineAPI) ToggleIntake(ctx context.Context, key models.QueueKey, open bool) (models.Snapshot, error) {
	return a.wrap(ctx, func() (models.Snapshot, error) {
		return a.engine.ToggleIntake(ctx, key, a.actor, open)
	})
}

func (a *engineAPI) MarkStatus(ctx context.Context, key models.QueueKey, entryID string, status models.Status) (models.Snapshot, error) {
	return a.wrap(ctx, func() (models.Snapshot, error) {
		return a.engine.MarkStatus(ctx, key, a.actor, entryID, status)
	})
}

/*
|--------------------------------------------------------------------------
| Push fakes
|--------------------------------------------------------------------------
*/

type fakeConn struct {
	in     chan models.ServerMessage
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent []models.ClientMessage
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan models.ServerMessage, 32), closed: make(chan struct{})}
}

func (c *fakeConn) Send(msg models.ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Receive() (models.ServerMessage, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return models.ServerMessage{}, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) subscribes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.sent {
		if m.Type == models.MessageSubscribe {
			n++
		}
	}
	return n
}

// fakeDialer fails the first failures dials, then hands out conns in order.
type fakeDialer struct {
	failures int
	conns    chan *fakeConn

	attempts atomic.Int64
}

func (d *fakeDialer) Dial(ctx context.Context) (PushConn, error) {
	n := d.attempts.Inc()
	if int(n) <= d.failures {
		return nil, errors.New("connection refused")
	}
	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func update(snap models.Snapshot) models.ServerMessage {
	key := snap.Key
	return models.ServerMessage{Type: models.MessageUpdate, Key: &key, Version: snap.Version, Snapshot: &snap}
}

func fullSnapshot(snap models.Snapshot) models.ServerMessage {
	key := snap.Key
	return models.ServerMessage{Type: models.MessageSnapshot, Key: &key, Version: snap.Version, Snapshot: &snap}
}
