package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"antrian-klinik/internal/models"
)

type fakePublisher struct {
	mu    sync.Mutex
	snaps []models.Snapshot
}

func (p *fakePublisher) Publish(snap models.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
}

func (p *fakePublisher) versions(key models.QueueKey) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int64
	for _, s := range p.snaps {
		if s.Key == key {
			out = append(out, s.Version)
		}
	}
	return out
}

type fakePersister struct {
	mu      sync.Mutex
	data    map[models.QueueKey]models.Snapshot
	failing bool
}

func newFakePersister() *fakePersister {
	return &fakePersister{data: make(map[models.QueueKey]models.Snapshot)}
}

func (p *fakePersister) Load(ctx context.Context, key models.QueueKey) (models.Snapshot, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap, ok := p.data[key]
	return snap, ok, nil
}

func (p *fakePersister) Save(ctx context.Context, snap models.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return errors.New("redis down")
	}
	p.data[snap.Key] = snap
	return nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (a *fakeAudit) Record(ctx context.Context, ev models.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

type fakeTickets struct {
	mu      sync.Mutex
	entries []models.Entry
}

func (f *fakeTickets) TicketIssued(ctx context.Context, key models.QueueKey, entry models.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

var (
	desk       = models.Actor{ID: "desk-1", Role: models.RoleDesk}
	specialist = models.Actor{ID: "dr-ani", Role: models.RoleSpecialist}
	patient    = models.Actor{ID: "pasien-9", Role: models.RolePatient}
	display    = models.Actor{ID: "tv-lobby", Role: models.RoleDisplay}

	testKey = models.QueueKey{SpecialistID: "dr-ani", Day: "2026-03-02", Department: "gigi"}
)

type harness struct {
	engine    *Engine
	publisher *fakePublisher
	persister *fakePersister
	audit     *fakeAudit
	tickets   *fakeTickets
	clock     *fixedClock
}

func newHarness(mods ...func(*Options)) *harness {
	h := &harness{
		publisher: &fakePublisher{},
		persister: newFakePersister(),
		audit:     &fakeAudit{},
		tickets:   &fakeTickets{},
		clock:     &fixedClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
	}
	opts := Options{
		Persister:     h.persister,
		Publisher:     h.publisher,
		Audit:         h.audit,
		Tickets:       h.tickets,
		Location:      time.UTC,
		IntakeDefault: true,
		Clock:         h.clock.Now,
	}
	for _, m := range mods {
		m(&opts)
	}
	h.engine = NewEngine(opts)
	return h
}

func (h *harness) enqueue(names ...string) []models.Entry {
	var out []models.Entry
	for _, n := range names {
		e, _, err := h.engine.Enqueue(context.Background(), testKey, desk, models.EntryDraft{
			PatientRef: models.PatientRef{Name: n},
		})
		if err != nil {
			panic(err)
		}
		out = append(out, e)
	}
	return out
}

func names(snap models.Snapshot) []string {
	var out []string
	for _, e := range snap.Active() {
		out = append(out, e.PatientRef.Name)
	}
	return out
}

func positions(snap models.Snapshot) []int {
	var out []int
	for _, e := range snap.Entries {
		out = append(out, e.Position)
	}
	return out
}
