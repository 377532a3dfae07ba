package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"antrian-klinik/internal/helper"
	"antrian-klinik/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

/*
|--------------------------------------------------------------------------
| Collaborators
|--------------------------------------------------------------------------
*/

// Publisher receives every committed snapshot, in version order per key.
// Publish is called while the key is locked and must not block.
type Publisher interface {
	Publish(snap models.Snapshot)
}

// Persister stores snapshots so a restart can pick the day back up.
type Persister interface {
	Load(ctx context.Context, key models.QueueKey) (models.Snapshot, bool, error)
	Save(ctx context.Context, snap models.Snapshot) error
}

type AuditSink interface {
	Record(ctx context.Context, ev models.AuditEvent)
}

// TicketSink is told about every new entry so a print service can render it.
type TicketSink interface {
	TicketIssued(ctx context.Context, key models.QueueKey, entry models.Entry)
}

type Recorder interface {
	ObserveOperation(op models.Operation, result string, elapsed time.Duration)
}

type OpeningHours struct {
	Open  string // "07:30"
	Close string // "16:00"
}

type Options struct {
	Persister     Persister
	Publisher     Publisher
	Audit         AuditSink
	Tickets       TicketSink
	Metrics       Recorder
	Hours         *OpeningHours
	Location      *time.Location
	IntakeDefault bool
	// Retention is how long a past day stays mutable and in memory.
	// Zero keeps past days forever.
	Retention     time.Duration
	Clock         func() time.Time
	Logger        *zap.Logger
}

/*
|--------------------------------------------------------------------------
| Engine
|--------------------------------------------------------------------------
*/

type slot struct {
	mu     sync.Mutex
	st     *state
	loaded bool
}

type Engine struct {
	mu    sync.Mutex
	slots map[models.QueueKey]*slot

	opts Options
	log  *zap.Logger
}

func NewEngine(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		slots: make(map[models.QueueKey]*slot),
		opts:  opts,
		log:   opts.Logger.Named("queue"),
	}
}

func (e *Engine) now() time.Time {
	return e.opts.Clock().In(e.opts.Location)
}

// archived reports whether key's day is past retention. Such keys are
// evicted by the janitor and refuse further mutations, so their numbers and
// versions never restart.
func (e *Engine) archived(key models.QueueKey, now time.Time) bool {
	if e.opts.Retention <= 0 {
		return false
	}
	day, err := key.Date(e.opts.Location)
	if err != nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.opts.Location)
	return day.Before(today) && today.Sub(day) > e.opts.Retention
}

func (e *Engine) slotFor(key models.QueueKey) *slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	sl, ok := e.slots[key]
	if !ok {
		sl = &slot{}
		e.slots[key] = sl
	}
	return sl
}

// load fills the slot from the persister on first touch. Caller holds sl.mu.
func (e *Engine) load(ctx context.Context, key models.QueueKey, sl *slot) error {
	if sl.loaded {
		return nil
	}
	if e.opts.Persister != nil {
		snap, ok, err := e.opts.Persister.Load(ctx, key)
		if err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
		if ok {
			sl.st = stateFromSnapshot(snap)
			sl.loaded = true
			e.log.Info("queue restored", zap.String("key", key.String()), zap.Int64("version", snap.Version))
			return nil
		}
	}
	sl.st = newState(key, e.opts.IntakeDefault)
	sl.loaded = true
	return nil
}

// change describes what a mutation did, for audit and for the return value.
type change struct {
	noop    bool
	entry   models.Entry
	entryID string
	detail  string
}

type mutation func(st *state, now time.Time) (change, error)

func (e *Engine) mutate(ctx context.Context, key models.QueueKey, actor models.Actor, op models.Operation, fn mutation) (change, models.Snapshot, error) {
	started := time.Now()
	ch, snap, err := e.apply(ctx, key, actor, op, fn)

	result := "ok"
	switch {
	case err != nil:
		result = ErrorCode(err)
		e.log.Debug("operation rejected",
			zap.String("op", string(op)),
			zap.String("key", key.String()),
			zap.String("actor", actor.ID),
			zap.Error(err),
		)
	case ch.noop:
		result = "noop"
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveOperation(op, result, time.Since(started))
	}
	return ch, snap, err
}

func (e *Engine) apply(ctx context.Context, key models.QueueKey, actor models.Actor, op models.Operation, fn mutation) (change, models.Snapshot, error) {
	if err := key.Validate(); err != nil {
		return change{}, models.Snapshot{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := Authorize(actor, op); err != nil {
		return change{}, models.Snapshot{}, err
	}
	if e.archived(key, e.now()) {
		return change{}, models.Snapshot{}, fmt.Errorf("%w: antrian %s sudah diarsipkan", ErrConflict, key)
	}

	sl := e.slotFor(key)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if err := e.load(ctx, key, sl); err != nil {
		return change{}, models.Snapshot{}, err
	}

	// Mutasi dikerjakan di salinan, baru di-commit kalau semua lolos.
	next := sl.st.clone()
	now := e.now()
	ch, err := fn(next, now)
	if err != nil {
		return change{}, sl.st.snapshot(), err
	}
	if ch.noop {
		return ch, sl.st.snapshot(), nil
	}

	next.version++
	snap := next.snapshot()
	if e.opts.Persister != nil {
		if err := e.opts.Persister.Save(ctx, snap); err != nil {
			return change{}, sl.st.snapshot(), fmt.Errorf("save %s: %w", key, err)
		}
	}
	sl.st = next

	if e.opts.Publisher != nil {
		e.opts.Publisher.Publish(snap)
	}
	if e.opts.Audit != nil {
		e.opts.Audit.Record(ctx, models.AuditEvent{
			Operation: op,
			Key:       key,
			EntryID:   ch.entryID,
			ActorID:   actor.ID,
			Version:   snap.Version,
			Detail:    ch.detail,
			Timestamp: now,
		})
	}

	if ch.entryID != "" {
		if e2, ok := snap.Find(ch.entryID); ok {
			ch.entry = e2
		}
	}
	return ch, snap, nil
}

/*
|--------------------------------------------------------------------------
| Reads
|--------------------------------------------------------------------------
*/

// Snapshot returns the current state of a key. A key nobody touched yet
// yields an empty snapshot at version 0.
func (e *Engine) Snapshot(ctx context.Context, key models.QueueKey) (models.Snapshot, error) {
	var out models.Snapshot
	err := e.Observe(ctx, key, func(snap models.Snapshot) {
		out = snap
	})
	return out, err
}

// Observe runs fn with the current snapshot while the key is locked, so no
// mutation (and no publish) can slip in between. Subscription handshakes
// rely on this to order their reply before any later update.
//
// A key with no state anywhere is not kept in memory: fn sees an empty
// version-0 snapshot while the engine map is locked, which also holds off
// the first mutation of that key until fn returns.
func (e *Engine) Observe(ctx context.Context, key models.QueueKey, fn func(models.Snapshot)) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	sl, err := e.existingSlot(ctx, key)
	if err != nil {
		return err
	}
	if sl == nil {
		e.mu.Lock()
		if _, ok := e.slots[key]; !ok {
			fn(newState(key, e.opts.IntakeDefault).snapshot())
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()
		sl = e.slotFor(key)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if err := e.load(ctx, key, sl); err != nil {
		return err
	}
	fn(sl.st.snapshot())
	return nil
}

// existingSlot returns the slot for key if it is in memory or the persister
// has state for it. It returns nil when the key was never written.
func (e *Engine) existingSlot(ctx context.Context, key models.QueueKey) (*slot, error) {
	e.mu.Lock()
	sl, ok := e.slots[key]
	e.mu.Unlock()
	if ok {
		return sl, nil
	}
	if e.opts.Persister == nil {
		return nil, nil
	}

	snap, found, err := e.opts.Persister.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if sl, ok := e.slots[key]; ok {
		return sl, nil
	}
	sl = &slot{st: stateFromSnapshot(snap), loaded: true}
	e.slots[key] = sl
	e.log.Info("queue restored", zap.String("key", key.String()), zap.Int64("version", snap.Version))
	return sl, nil
}

func (e *Engine) Keys() []models.QueueKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]models.QueueKey, 0, len(e.slots))
	for k := range e.slots {
		keys = append(keys, k)
	}
	return keys
}

// Evict drops a key from memory. Persisted state, if any, is left alone.
func (e *Engine) Evict(key models.QueueKey) {
	e.mu.Lock()
	delete(e.slots, key)
	e.mu.Unlock()
}

/*
|--------------------------------------------------------------------------
| Operations
|--------------------------------------------------------------------------
*/

func (e *Engine) Enqueue(ctx context.Context, key models.QueueKey, actor models.Actor, draft models.EntryDraft) (models.Entry, models.Snapshot, error) {
	if actor.Role == models.RolePatient {
		draft.Source = models.SourceOnline
	}
	if draft.Source == "" {
		draft.Source = models.SourceDesk
	}
	if err := validateDraft(draft); err != nil {
		return models.Entry{}, models.Snapshot{}, err
	}

	ch, snap, err := e.mutate(ctx, key, actor, models.OpEnqueue, func(st *state, now time.Time) (change, error) {
		if draft.Source == models.SourceOnline && !e.intakeAccepting(st, now) {
			return change{}, fmt.Errorf("%w: pendaftaran online sedang ditutup", ErrConflict)
		}
		entry := models.Entry{
			ID:     uuid.NewString(),
			Number: st.nextNumber,
			PatientRef: models.PatientRef{
				Name:  strings.TrimSpace(draft.PatientRef.Name),
				Phone: strings.TrimSpace(draft.PatientRef.Phone),
			},
			Source:    draft.Source,
			Status:    models.StatusWaiting,
			CreatedAt: now,
		}
		st.nextNumber++
		st.active = append(st.active, entry)
		return change{entryID: entry.ID, detail: fmt.Sprintf("number=%d source=%s", entry.Number, entry.Source)}, nil
	})
	if err != nil {
		return models.Entry{}, snap, err
	}

	if e.opts.Tickets != nil {
		e.opts.Tickets.TicketIssued(ctx, key, ch.entry)
	}
	return ch.entry, snap, nil
}

func (e *Engine) intakeAccepting(st *state, now time.Time) bool {
	if !st.intakeOpen {
		return false
	}
	if e.opts.Hours == nil {
		return true
	}
	return helper.IsOpenAt(now, e.opts.Hours.Open, e.opts.Hours.Close)
}

func (e *Engine) CallNext(ctx context.Context, key models.QueueKey, actor models.Actor) (models.Entry, models.Snapshot, error) {
	ch, snap, err := e.mutate(ctx, key, actor, models.OpCallNext, func(st *state, now time.Time) (change, error) {
		if cur, ok := st.serving(); ok {
			return change{}, fmt.Errorf("%w: nomor %d masih %s, selesaikan dulu", ErrConflict, cur.Number, cur.Status)
		}
		for i := range st.active {
			if st.active[i].Status != models.StatusWaiting {
				continue
			}
			calledAt := now
			st.active[i].Status = models.StatusCalled
			st.active[i].CalledAt = &calledAt
			return change{entryID: st.active[i].ID, detail: fmt.Sprintf("number=%d", st.active[i].Number)}, nil
		}
		return change{}, fmt.Errorf("%w: tidak ada antrian yang menunggu", ErrNotFound)
	})
	if err != nil {
		return models.Entry{}, snap, err
	}
	return ch.entry, snap, nil
}

// Move puts one entry at target (1-based, clamped). Moving an entry to where
// it already is does nothing, which keeps replayed moves harmless. A non-zero
// ifVersion must match the current version for a real move to go through.
func (e *Engine) Move(ctx context.Context, key models.QueueKey, actor models.Actor, entryID string, target int, ifVersion int64) (models.Snapshot, error) {
	if entryID == "" {
		return models.Snapshot{}, fmt.Errorf("%w: entry_id wajib diisi", ErrValidation)
	}
	_, snap, err := e.mutate(ctx, key, actor, models.OpMove, func(st *state, now time.Time) (change, error) {
		idx := st.activeIndex(entryID)
		if idx < 0 {
			return change{}, fmt.Errorf("%w: entry %s tidak ada di antrian aktif", ErrNotFound, entryID)
		}
		status := st.active[idx].Status
		if status != models.StatusWaiting && status != models.StatusCalled {
			return change{}, fmt.Errorf("%w: entry %s berstatus %s", ErrNotFound, entryID, status)
		}

		if target < 1 {
			target = 1
		}
		if target > len(st.active) {
			target = len(st.active)
		}
		if idx+1 == target {
			return change{noop: true}, nil
		}
		if ifVersion > 0 && ifVersion != st.version {
			return change{}, fmt.Errorf("%w: versi %d sudah usang (sekarang %d)", ErrConflict, ifVersion, st.version)
		}

		st.moveTo(idx, target)
		return change{entryID: entryID, detail: fmt.Sprintf("from=%d to=%d", idx+1, target)}, nil
	})
	return snap, err
}

// BulkReorder applies a complete target ordering of the active entries in one
// step. Nothing is applied unless the whole set checks out.
func (e *Engine) BulkReorder(ctx context.Context, key models.QueueKey, actor models.Actor, pairs []models.PositionPair, ifVersion int64) (models.Snapshot, error) {
	if err := validatePairs(pairs); err != nil {
		return models.Snapshot{}, err
	}
	_, snap, err := e.mutate(ctx, key, actor, models.OpBulkReorder, func(st *state, now time.Time) (change, error) {
		order := make([]models.Entry, len(pairs))
		var terminal []string
		for _, p := range pairs {
			if idx := st.activeIndex(p.EntryID); idx >= 0 {
				order[p.Position-1] = st.active[idx]
				continue
			}
			if st.closedIndex(p.EntryID) >= 0 {
				terminal = append(terminal, p.EntryID)
				continue
			}
			return change{}, fmt.Errorf("%w: entry %s tidak dikenal", ErrValidation, p.EntryID)
		}
		if len(terminal) > 0 {
			return change{}, fmt.Errorf("%w: entry %s sudah selesai", ErrConflict, strings.Join(terminal, ", "))
		}
		if len(pairs) != len(st.active) {
			return change{}, fmt.Errorf("%w: urutan tidak mencakup %d entry aktif", ErrConflict, len(st.active))
		}

		same := true
		for i := range order {
			if order[i].ID != st.active[i].ID {
				same = false
				break
			}
		}
		if same {
			return change{noop: true}, nil
		}
		if ifVersion > 0 && ifVersion != st.version {
			return change{}, fmt.Errorf("%w: versi %d sudah usang (sekarang %d)", ErrConflict, ifVersion, st.version)
		}

		st.active = order
		return change{detail: fmt.Sprintf("entries=%d", len(order))}, nil
	})
	return snap, err
}

func (e *Engine) ToggleIntake(ctx context.Context, key models.QueueKey, actor models.Actor, open bool) (models.Snapshot, error) {
	op := models.OpToggleIntake
	if actor.Role == models.RoleSystem && !open {
		op = models.OpCloseDay
	}
	_, snap, err := e.mutate(ctx, key, actor, op, func(st *state, now time.Time) (change, error) {
		if st.intakeOpen == open {
			return change{noop: true}, nil
		}
		st.intakeOpen = open
		return change{detail: fmt.Sprintf("open=%t", open)}, nil
	})
	return snap, err
}

func (e *Engine) MarkStatus(ctx context.Context, key models.QueueKey, actor models.Actor, entryID string, status models.Status) (models.Snapshot, error) {
	if entryID == "" {
		return models.Snapshot{}, fmt.Errorf("%w: entry_id wajib diisi", ErrValidation)
	}
	if !status.Valid() {
		return models.Snapshot{}, fmt.Errorf("%w: status %q tidak dikenal", ErrValidation, status)
	}
	_, snap, err := e.mutate(ctx, key, actor, models.OpMarkStatus, func(st *state, now time.Time) (change, error) {
		idx := st.activeIndex(entryID)
		if idx < 0 {
			if c := st.closedIndex(entryID); c >= 0 {
				if st.closed[c].Status == status {
					return change{noop: true}, nil
				}
				return change{}, fmt.Errorf("%w: entry %s sudah %s", ErrInvalidTransition, entryID, st.closed[c].Status)
			}
			return change{}, fmt.Errorf("%w: entry %s tidak ditemukan", ErrNotFound, entryID)
		}

		from := st.active[idx].Status
		if from == status {
			return change{noop: true}, nil
		}
		if !ValidTransition(from, status) {
			return change{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
		}

		st.active[idx].Status = status
		if status.Terminal() {
			st.retire(idx)
		}
		return change{entryID: entryID, detail: fmt.Sprintf("%s->%s", from, status)}, nil
	})
	return snap, err
}

/*
|--------------------------------------------------------------------------
| Input validation
|--------------------------------------------------------------------------
*/

func validateDraft(d models.EntryDraft) error {
	name := strings.TrimSpace(d.PatientRef.Name)
	if name == "" {
		return fmt.Errorf("%w: nama pasien wajib diisi", ErrValidation)
	}
	if len(name) > 100 {
		return fmt.Errorf("%w: nama pasien terlalu panjang", ErrValidation)
	}
	if !d.Source.Valid() {
		return fmt.Errorf("%w: source %q tidak dikenal", ErrValidation, d.Source)
	}
	phone := strings.TrimSpace(d.PatientRef.Phone)
	if len(phone) > 20 {
		return fmt.Errorf("%w: nomor telepon terlalu panjang", ErrValidation)
	}
	for _, r := range phone {
		if !unicode.IsDigit(r) && r != '+' && r != '-' && r != ' ' {
			return fmt.Errorf("%w: nomor telepon tidak valid", ErrValidation)
		}
	}
	return nil
}

func validatePairs(pairs []models.PositionPair) error {
	if len(pairs) == 0 {
		return fmt.Errorf("%w: urutan kosong", ErrValidation)
	}
	ids := make(map[string]bool, len(pairs))
	positions := make(map[int]bool, len(pairs))
	for _, p := range pairs {
		if p.EntryID == "" {
			return fmt.Errorf("%w: entry_id wajib diisi", ErrValidation)
		}
		if ids[p.EntryID] {
			return fmt.Errorf("%w: entry %s muncul lebih dari sekali", ErrValidation, p.EntryID)
		}
		if p.Position < 1 || p.Position > len(pairs) {
			return fmt.Errorf("%w: posisi %d di luar 1..%d", ErrValidation, p.Position, len(pairs))
		}
		if positions[p.Position] {
			return fmt.Errorf("%w: posisi %d dipakai lebih dari sekali", ErrValidation, p.Position)
		}
		ids[p.EntryID] = true
		positions[p.Position] = true
	}
	return nil
}
