package client

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff yields exponentially growing reconnect delays with jitter.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	// Jitter is the fraction of the delay that is randomized, 0..1.
	Jitter float64

	mu      sync.Mutex
	current time.Duration
	rnd     *rand.Rand
}

func NewBackoff() *Backoff {
	return &Backoff{
		Initial: 500 * time.Millisecond,
		Max:     15 * time.Second,
		Factor:  2,
		Jitter:  0.2,
	}
}

func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == 0 {
		b.current = b.Initial
	} else {
		b.current = time.Duration(float64(b.current) * b.Factor)
	}
	if b.current > b.Max {
		b.current = b.Max
	}

	d := b.current
	if b.Jitter > 0 {
		if b.rnd == nil {
			b.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		spread := float64(d) * b.Jitter
		d = time.Duration(float64(d) - spread + b.rnd.Float64()*2*spread)
	}
	return d
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	b.current = 0
	b.mu.Unlock()
}
