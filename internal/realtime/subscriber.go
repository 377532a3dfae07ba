package realtime

import (
	"sync"

	"antrian-klinik/internal/models"

	"github.com/google/uuid"
)

// Subscriber is one live connection. A connection may watch several keys;
// each key it watches is one subscription.
type Subscriber struct {
	ID    string
	Actor models.Actor

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
	acked  map[models.QueueKey]int64
}

func NewSubscriber(actor models.Actor, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 64
	}
	return &Subscriber{
		ID:    uuid.NewString(),
		Actor: actor,
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
		acked: make(map[models.QueueKey]int64),
	}
}

// Send is drained by the connection's write loop.
func (s *Subscriber) Send() <-chan []byte {
	return s.send
}

// Done is closed once the subscriber is closed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// offer queues msg without blocking. It reports false when the buffer is
// full or the subscriber is gone.
func (s *Subscriber) offer(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// Reply queues a direct answer (pong, error) for this connection only.
func (s *Subscriber) Reply(msg []byte) bool {
	return s.offer(msg)
}

func (s *Subscriber) Ack(key models.QueueKey, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version > s.acked[key] {
		s.acked[key] = version
	}
}

func (s *Subscriber) Acked(key models.QueueKey) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked[key]
}

func (s *Subscriber) forget(key models.QueueKey) {
	s.mu.Lock()
	delete(s.acked, key)
	s.mu.Unlock()
}

func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
