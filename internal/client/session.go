package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"antrian-klinik/internal/models"

	"go.uber.org/zap"
)

type SessionOptions struct {
	Backoff    *Backoff
	Logger     *zap.Logger
	Reconciler ReconcilerOptions
	// OnStatus is told about connection changes.
	OnStatus func(connected bool)
	// Sleep waits between dial attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// StableAfter is how long a connection must stay up before the
	// backoff starts over. Default 30s.
	StableAfter time.Duration
}

// Session keeps one push connection alive and the reconcilers of every
// watched key in step with the server across reconnects.
type Session struct {
	dialer Dialer
	api    API
	opts   SessionOptions
	log    *zap.Logger

	mu   sync.Mutex
	recs map[models.QueueKey]*Reconciler
	conn PushConn
	ctx  context.Context
}

func NewSession(dialer Dialer, api API, opts SessionOptions) *Session {
	if opts.Backoff == nil {
		opts.Backoff = NewBackoff()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = 30 * time.Second
	}
	if opts.Reconciler.Logger == nil {
		opts.Reconciler.Logger = opts.Logger
	}
	return &Session{
		dialer: dialer,
		api:    api,
		opts:   opts,
		log:    opts.Logger.Named("session"),
		recs:   make(map[models.QueueKey]*Reconciler),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Watch returns the reconciler for key, subscribing to it if the session
// is already connected.
func (s *Session) Watch(key models.QueueKey) *Reconciler {
	s.mu.Lock()
	if rec, ok := s.recs[key]; ok {
		s.mu.Unlock()
		return rec
	}
	rec := NewReconciler(key, s.api, s.opts.Reconciler)
	s.recs[key] = rec
	conn, ctx := s.conn, s.ctx
	s.mu.Unlock()

	if conn != nil {
		go s.syncKeys(ctx, conn, []*Reconciler{rec})
	}
	return rec
}

func (s *Session) Reconciler(key models.QueueKey) (*Reconciler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[key]
	return rec, ok
}

func (s *Session) watched() []*Reconciler {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Reconciler, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, rec)
	}
	return out
}

/*
|--------------------------------------------------------------------------
| Connection Loop
|--------------------------------------------------------------------------
*/

// Run dials, syncs and reads until ctx ends, reconnecting with backoff.
// A connection that drops soon after it opened does not reset the backoff.
func (s *Session) Run(ctx context.Context) error {
	for {
		conn, err := s.dial(ctx)
		if err != nil {
			return err
		}
		connectedAt := time.Now()

		s.mu.Lock()
		s.conn, s.ctx = conn, ctx
		s.mu.Unlock()
		s.status(true)

		readErr := make(chan error, 1)
		go func() { readErr <- s.readLoop(ctx, conn) }()

		s.syncKeys(ctx, conn, s.watched())

		select {
		case err = <-readErr:
		case <-ctx.Done():
			err = ctx.Err()
		}

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
		s.status(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(connectedAt) >= s.opts.StableAfter {
			s.opts.Backoff.Reset()
		}
		wait := s.opts.Backoff.Next()
		s.log.Warn("koneksi push terputus", zap.Duration("retry_in", wait), zap.Error(err))
		if err := s.opts.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Session) dial(ctx context.Context) (PushConn, error) {
	for attempt := 1; ; attempt++ {
		conn, err := s.dialer.Dial(ctx)
		if err == nil {
			s.log.Info("push tersambung", zap.Int("attempt", attempt))
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		wait := s.opts.Backoff.Next()
		s.log.Warn("dial gagal", zap.Int("attempt", attempt), zap.Duration("retry_in", wait), zap.Error(err))
		if err := s.opts.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// syncKeys marks each reconciler syncing, sends its handshake, then pulls
// one snapshot per key. Pushes arriving meanwhile are held by the
// reconciler and replayed on top of the pulled state.
func (s *Session) syncKeys(ctx context.Context, conn PushConn, recs []*Reconciler) {
	gens := make([]uint64, len(recs))
	for i, rec := range recs {
		gens[i] = rec.BeginResync()
		msg := models.ClientMessage{Type: models.MessageSubscribe, Key: rec.Key()}
		if v := rec.Confirmed().Version; v > 0 {
			msg.LastKnownVersion = &v
		}
		if err := conn.Send(msg); err != nil {
			s.log.Warn("subscribe gagal", zap.String("key", rec.Key().String()), zap.Error(err))
		}
	}

	for i, rec := range recs {
		pullCtx, cancel := context.WithTimeout(ctx, rec.opts.Timeout)
		snap, err := s.api.Snapshot(pullCtx, rec.Key())
		cancel()

		var gap bool
		if err != nil {
			s.log.Warn("pull snapshot gagal", zap.String("key", rec.Key().String()), zap.Error(err))
			gap = rec.AbortResync(gens[i])
		} else {
			gap = rec.EndResync(gens[i], snap)
		}
		if gap {
			go s.resync(ctx, rec)
		}
	}
}

func (s *Session) resync(ctx context.Context, rec *Reconciler) {
	if err := rec.Resync(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("resync gagal", zap.String("key", rec.Key().String()), zap.Error(err))
	}
}

func (s *Session) readLoop(ctx context.Context, conn PushConn) error {
	for {
		msg, err := conn.Receive()
		if err != nil {
			return err
		}
		if msg.Key == nil {
			if msg.Type == models.MessageError {
				s.log.Warn("server error", zap.String("error", msg.Error))
			}
			continue
		}
		rec, ok := s.Reconciler(*msg.Key)
		if !ok {
			continue
		}

		switch msg.Type {
		case models.MessageSnapshot:
			if msg.Snapshot != nil {
				rec.HandleSnapshot(*msg.Snapshot)
			}
		case models.MessageUpdate:
			if msg.Snapshot == nil {
				continue
			}
			if rec.HandleUpdate(*msg.Snapshot) {
				go s.resync(ctx, rec)
				continue
			}
			_ = conn.Send(models.ClientMessage{Type: models.MessageAck, Key: *msg.Key, Version: msg.Snapshot.Version})
		case models.MessageInSync:
		}
	}
}

func (s *Session) status(connected bool) {
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(connected)
	}
}
