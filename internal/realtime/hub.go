package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"antrian-klinik/internal/models"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Observer gives access to a key's snapshot under the key's writer lock.
type Observer interface {
	Observe(ctx context.Context, key models.QueueKey, fn func(models.Snapshot)) error
}

type Recorder interface {
	BroadcastDelivered(n int)
	BroadcastDropped()
	SubscriptionsChanged(delta int)
}

/*
|--------------------------------------------------------------------------
| Hub
|--------------------------------------------------------------------------
| Registry QueueKey -> subscriber, sekaligus broadcaster. Publish dipanggil
| dari jalur writer engine (key masih terkunci), jadi urutan versi per key
| sudah terjamin; hub tidak perlu mengurutkan sendiri.
*/
type Hub struct {
	mu   sync.RWMutex
	subs map[models.QueueKey]map[*Subscriber]struct{}

	delivered atomic.Int64
	dropped   atomic.Int64

	metrics Recorder
	log     *zap.Logger
}

func NewHub(log *zap.Logger, metrics Recorder) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subs:    make(map[models.QueueKey]map[*Subscriber]struct{}),
		metrics: metrics,
		log:     log.Named("realtime"),
	}
}

type Stats struct {
	Keys          int   `json:"keys"`
	Subscriptions int   `json:"subscriptions"`
	Delivered     int64 `json:"delivered"`
	Dropped       int64 `json:"dropped"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := Stats{
		Keys:      len(h.subs),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
	for _, set := range h.subs {
		st.Subscriptions += len(set)
	}
	return st
}

func (h *Hub) Count(key models.QueueKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

// Attach registers sub for key and queues the handshake reply. Both happen
// inside obs.Observe, so the reply is ordered before any later update.
// If lastKnown matches the current version the reply is a short in_sync
// message, otherwise it carries the full snapshot.
func (h *Hub) Attach(ctx context.Context, obs Observer, sub *Subscriber, key models.QueueKey, lastKnown *int64) error {
	return obs.Observe(ctx, key, func(snap models.Snapshot) {
		var msg []byte
		if lastKnown != nil && *lastKnown == snap.Version {
			msg = encode(models.ServerMessage{Type: models.MessageInSync, Key: &key, Version: snap.Version})
			sub.Ack(key, snap.Version)
		} else {
			msg = encode(snapshotMessage(models.MessageSnapshot, snap))
		}

		h.add(sub, key)
		if !sub.offer(msg) {
			h.log.Warn("handshake dropped", zap.String("subscriber", sub.ID), zap.String("key", key.String()))
		}
	})
}

func (h *Hub) add(sub *Subscriber, key models.QueueKey) {
	h.mu.Lock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[key] = set
	}
	_, existed := set[sub]
	set[sub] = struct{}{}
	h.mu.Unlock()

	if !existed && h.metrics != nil {
		h.metrics.SubscriptionsChanged(1)
	}
}

func (h *Hub) Detach(sub *Subscriber, key models.QueueKey) {
	h.mu.Lock()
	removed := h.removeLocked(sub, key)
	h.mu.Unlock()

	sub.forget(key)
	if removed && h.metrics != nil {
		h.metrics.SubscriptionsChanged(-1)
	}
}

// Remove drops every subscription of sub and closes it. Used on disconnect.
func (h *Hub) Remove(sub *Subscriber) {
	removed := 0
	h.mu.Lock()
	for key := range h.subs {
		if h.removeLocked(sub, key) {
			removed++
		}
	}
	h.mu.Unlock()

	sub.Close()
	if removed > 0 && h.metrics != nil {
		h.metrics.SubscriptionsChanged(-removed)
	}
}

func (h *Hub) removeLocked(sub *Subscriber, key models.QueueKey) bool {
	set, ok := h.subs[key]
	if !ok {
		return false
	}
	if _, ok := set[sub]; !ok {
		return false
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, key)
	}
	return true
}

// Publish fans snap out to every subscriber of its key. Slow subscribers
// lose the message; they notice the version gap and resync.
func (h *Hub) Publish(snap models.Snapshot) {
	h.mu.RLock()
	set := h.subs[snap.Key]
	targets := make([]*Subscriber, 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	msg := encode(snapshotMessage(models.MessageUpdate, snap))
	sent := 0
	for _, sub := range targets {
		if sub.offer(msg) {
			sent++
			continue
		}
		h.dropped.Inc()
		if h.metrics != nil {
			h.metrics.BroadcastDropped()
		}
		h.log.Warn("update dropped",
			zap.String("subscriber", sub.ID),
			zap.String("key", snap.Key.String()),
			zap.Int64("version", snap.Version),
		)
	}

	h.delivered.Add(int64(sent))
	if h.metrics != nil {
		h.metrics.BroadcastDelivered(sent)
	}
}

func snapshotMessage(kind string, snap models.Snapshot) models.ServerMessage {
	key := snap.Key
	return models.ServerMessage{
		Type:      kind,
		Key:       &key,
		Version:   snap.Version,
		Snapshot:  &snap,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func encode(msg models.ServerMessage) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		// ServerMessage hanya berisi tipe sederhana
		panic(err)
	}
	return b
}

// EncodeError builds an error frame for the push channel.
func EncodeError(text string) []byte {
	return encode(models.ServerMessage{Type: models.MessageError, Error: text})
}

func EncodePong() []byte {
	return encode(models.ServerMessage{Type: models.MessagePong, Timestamp: time.Now().Format(time.RFC3339)})
}
