package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"antrian-klinik/internal/models"
	"antrian-klinik/internal/queue"

	"github.com/google/uuid"
)

// Operation is one writer intent. Apply predicts its effect on a local copy;
// Send performs it on the server and returns the authoritative snapshot.
type Operation interface {
	Name() models.Operation
	Apply(snap *models.Snapshot) error
	Send(ctx context.Context, api API, key models.QueueKey) (models.Snapshot, error)
}

/*
|--------------------------------------------------------------------------
| Enqueue
|--------------------------------------------------------------------------
*/

type EnqueueOp struct {
	Draft models.EntryDraft

	localID string
	// Issued is filled by Send with the server-assigned entry.
	Issued models.Entry
}

func NewEnqueue(draft models.EntryDraft) *EnqueueOp {
	return &EnqueueOp{Draft: draft, localID: "local-" + uuid.NewString()}
}

func (o *EnqueueOp) Name() models.Operation { return models.OpEnqueue }

// Apply adds a placeholder row without a number; the server assigns it.
func (o *EnqueueOp) Apply(snap *models.Snapshot) error {
	if strings.TrimSpace(o.Draft.PatientRef.Name) == "" {
		return fmt.Errorf("%w: nama pasien wajib diisi", queue.ErrValidation)
	}
	source := o.Draft.Source
	if source == "" {
		source = models.SourceDesk
	}
	snap.Entries = append(snap.Entries, models.Entry{
		ID:         o.localID,
		PatientRef: o.Draft.PatientRef,
		Source:     source,
		Status:     models.StatusWaiting,
		CreatedAt:  time.Now(),
	})
	snap.Normalize()
	return nil
}

func (o *EnqueueOp) Send(ctx context.Context, api API, key models.QueueKey) (models.Snapshot, error) {
	res, err := api.Enqueue(ctx, key, o.Draft)
	if err != nil {
		return models.Snapshot{}, err
	}
	o.Issued = res.Entry
	return res.Snapshot, nil
}

/*
|--------------------------------------------------------------------------
| Call Next
|--------------------------------------------------------------------------
*/

type CallNextOp struct {
	Called models.Entry
}

func (o *CallNextOp) Name() models.Operation { return models.OpCallNext }

func (o *CallNextOp) Apply(snap *models.Snapshot) error {
	if cur, ok := snap.Serving(); ok {
		return fmt.Errorf("%w: nomor %d masih dilayani", queue.ErrConflict, cur.Number)
	}
	for i := range snap.Entries {
		if snap.Entries[i].Status == models.StatusWaiting {
			now := time.Now()
			snap.Entries[i].Status = models.StatusCalled
			snap.Entries[i].CalledAt = &now
			return nil
		}
	}
	return fmt.Errorf("%w: tidak ada pasien menunggu", queue.ErrNotFound)
}

func (o *CallNextOp) Send(ctx context.Context, api API, key models.QueueKey) (models.Snapshot, error) {
	res, err := api.CallNext(ctx, key)
	if err != nil {
		return models.Snapshot{}, err
	}
	o.Called = res.Entry
	return res.Snapshot, nil
}

/*
|--------------------------------------------------------------------------
| Move & Bulk Reorder
|--------------------------------------------------------------------------
*/

type MoveOp struct {
	EntryID string
	Target  int
	// IfVersion, when set, makes the server reject the move if the queue
	// changed since that version.
	IfVersion int64
}

func (o *MoveOp) Name() models.Operation { return models.OpMove }

func (o *MoveOp) Apply(snap *models.Snapshot) error {
	active := snap.Active()
	idx := -1
	for i, e := range active {
		if e.ID == o.EntryID {
			idx = i
			break
		}
	}
	if idx < 0 || (active[idx].Status != models.StatusWaiting && active[idx].Status != models.StatusCalled) {
		return fmt.Errorf("%w: entry %s tidak bisa dipindah", queue.ErrNotFound, o.EntryID)
	}

	target := o.Target
	if target < 1 {
		target = 1
	}
	if target > len(active) {
		target = len(active)
	}
	if target == idx+1 {
		return nil
	}

	moved := active[idx]
	rest := append(active[:idx:idx], active[idx+1:]...)
	order := make([]models.Entry, 0, len(active))
	order = append(order, rest[:target-1]...)
	order = append(order, moved)
	order = append(order, rest[target-1:]...)
	setActiveOrder(snap, order)
	return nil
}

func (o *MoveOp) Send(ctx context.Context, api API, key models.QueueKey) (models.Snapshot, error) {
	return api.Move(ctx, key, o.EntryID, models.MoveRequest{Position: o.Target, IfVersion: o.IfVersion})
}

type BulkReorderOp struct {
	Pairs     []models.PositionPair
	IfVersion int64
}

func (o *BulkReorderOp) Name() models.Operation { return models.OpBulkReorder }

func (o *BulkReorderOp) Apply(snap *models.Snapshot) error {
	active := snap.Active()
	if len(o.Pairs) != len(active) {
		return fmt.Errorf("%w: susunan tidak mencakup semua antrian aktif", queue.ErrConflict)
	}
	byID := make(map[string]models.Entry, len(active))
	for _, e := range active {
		byID[e.ID] = e
	}

	order := make([]models.Entry, len(active))
	filled := make([]bool, len(active))
	for _, p := range o.Pairs {
		e, ok := byID[p.EntryID]
		if !ok {
			return fmt.Errorf("%w: entry %s tidak aktif", queue.ErrConflict, p.EntryID)
		}
		if p.Position < 1 || p.Position > len(active) || filled[p.Position-1] {
			return fmt.Errorf("%w: posisi %d tidak valid", queue.ErrValidation, p.Position)
		}
		order[p.Position-1] = e
		filled[p.Position-1] = true
		delete(byID, p.EntryID)
	}
	setActiveOrder(snap, order)
	return nil
}

func (o *BulkReorderOp) Send(ctx context.Context, api API, key models.QueueKey) (models.Snapshot, error) {
	return api.BulkReorder(ctx, key, models.ReorderRequest{Positions: o.Pairs, IfVersion: o.IfVersion})
}

// setActiveOrder replaces the active part of the list, keeping terminal rows.
func setActiveOrder(snap *models.Snapshot, order []models.Entry) {
	out := append([]models.Entry(nil), order...)
	for _, e := range snap.Entries {
		if e.Status.Terminal() {
			out = append(out, e)
		}
	}
	snap.Entries = out
	snap.Normalize()
}

/*
|--------------------------------------------------------------------------
| Intake & Status
|--------------------------------------------------------------------------
*/

type ToggleIntakeOp struct {
	Open bool
}

func (o *ToggleIntakeOp) Name() models.Operation { return models.OpToggleIntake }

func (o *ToggleIntakeOp) Apply(snap *models.Snapshot) error {
	snap.IntakeOpen = o.Open
	return nil
}

func (o *ToggleIntakeOp) Send(ctx context.Context, api API, key models.QueueKey) (models.Snapshot, error) {
	return api.ToggleIntake(ctx, key, o.Open)
}

type MarkStatusOp struct {
	EntryID string
	Status  models.Status
}

func (o *MarkStatusOp) Name() models.Operation { return models.OpMarkStatus }

func (o *MarkStatusOp) Apply(snap *models.Snapshot) error {
	if !o.Status.Valid() {
		return fmt.Errorf("%w: status %q tidak dikenal", queue.ErrValidation, o.Status)
	}
	for i := range snap.Entries {
		e := &snap.Entries[i]
		if e.ID != o.EntryID {
			continue
		}
		if e.Status == o.Status {
			return nil
		}
		if !queue.ValidTransition(e.Status, o.Status) {
			return fmt.Errorf("%w: %s -> %s", queue.ErrInvalidTransition, e.Status, o.Status)
		}
		e.Status = o.Status
		snap.Normalize()
		return nil
	}
	return fmt.Errorf("%w: entry %s tidak ditemukan", queue.ErrNotFound, o.EntryID)
}

func (o *MarkStatusOp) Send(ctx context.Context, api API, key models.QueueKey) (models.Snapshot, error) {
	return api.MarkStatus(ctx, key, o.EntryID, o.Status)
}
