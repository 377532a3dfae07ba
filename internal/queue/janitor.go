package queue

import (
	"context"
	"time"

	"antrian-klinik/internal/models"

	"go.uber.org/zap"
)

// Sweep closes intake on queues whose day is over and evicts archived
// queues from memory. It returns how many keys were closed and evicted.
func (e *Engine) Sweep(ctx context.Context) (closed, evicted int) {
	now := e.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.opts.Location)

	for _, key := range e.Keys() {
		day, err := key.Date(e.opts.Location)
		if err != nil || !day.Before(today) {
			continue
		}

		cur, err := e.Snapshot(ctx, key)
		if err != nil {
			e.log.Warn("sweep snapshot failed", zap.String("key", key.String()), zap.Error(err))
			continue
		}

		// Key yang cuma pernah dibaca tidak perlu ditutup.
		if cur.Version == 0 || e.archived(key, now) {
			e.Evict(key)
			evicted++
			continue
		}
		if !cur.IntakeOpen {
			continue
		}

		if _, err := e.ToggleIntake(ctx, key, models.SystemActor, false); err != nil {
			e.log.Warn("close day failed", zap.String("key", key.String()), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, evicted
}

// RunJanitor sweeps every interval until ctx is done.
func (e *Engine) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			closed, evicted := e.Sweep(ctx)
			if closed > 0 || evicted > 0 {
				e.log.Info("janitor sweep", zap.Int("closed", closed), zap.Int("evicted", evicted))
			}
		}
	}
}
