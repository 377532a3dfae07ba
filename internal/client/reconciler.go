package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"antrian-klinik/internal/models"
	"antrian-klinik/internal/queue"

	"go.uber.org/zap"
)

// Notice tells the user why their change did not stick.
type Notice struct {
	Key     models.QueueKey
	Op      models.Operation
	Code    string
	Message string
}

type ReconcilerOptions struct {
	Timeout  time.Duration
	Logger   *zap.Logger
	OnChange func(models.Snapshot)
	OnNotice func(Notice)
}

type pendingOp struct {
	seq uint64
	op  Operation
}

type heldPush struct {
	snap models.Snapshot
	full bool
}

/*
|--------------------------------------------------------------------------
| Reconciler
|--------------------------------------------------------------------------
| Satu per key. confirmed = snapshot terakhir dari server, view = confirmed
| ditambah operasi yang belum dijawab server (pending).
*/
type Reconciler struct {
	key  models.QueueKey
	api  API
	opts ReconcilerOptions
	log  *zap.Logger

	mu        sync.Mutex
	confirmed models.Snapshot
	view      models.Snapshot
	pending   []pendingOp
	seq       uint64

	syncing bool
	syncGen uint64
	held    []heldPush
}

func NewReconciler(key models.QueueKey, api API, opts ReconcilerOptions) *Reconciler {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	empty := models.Snapshot{Key: key}
	return &Reconciler{
		key:       key,
		api:       api,
		opts:      opts,
		log:       opts.Logger.Named("reconciler").With(zap.String("key", key.String())),
		confirmed: empty,
		view:      empty.Clone(),
	}
}

func (r *Reconciler) Key() models.QueueKey { return r.key }

// View is what the user should see right now.
func (r *Reconciler) View() models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view.Clone()
}

func (r *Reconciler) Confirmed() models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.confirmed.Clone()
}

func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Reconciler) Syncing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncing
}

// Do applies op optimistically, sends it, and settles the view on the
// server's answer. When the local view rejects op as a conflict or a
// missing entry, the view may be stale: the key is resynced and op is
// tried once more before giving up without contacting the server.
func (r *Reconciler) Do(ctx context.Context, op Operation) (models.Snapshot, error) {
	p, view, err := r.stage(op)
	if err != nil && (errors.Is(err, queue.ErrConflict) || errors.Is(err, queue.ErrNotFound)) {
		if rerr := r.Resync(ctx); rerr != nil {
			r.log.Warn("resync sebelum kirim gagal", zap.Error(rerr))
		} else {
			p, view, err = r.stage(op)
		}
		if err != nil {
			r.notify(op, queue.ErrorCode(err), err.Error())
		}
	}
	if err != nil {
		return models.Snapshot{}, err
	}
	r.emit(view)

	sendCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	snap, err := op.Send(sendCtx, r.api, r.key)
	cancel()

	switch {
	case err == nil:
		r.settle(p.seq, &snap)
		return snap, nil

	case errors.Is(err, queue.ErrConflict):
		r.settle(p.seq, nil)
		r.notify(op, queue.CodeConflict, conflictMessage(op))
		if rerr := r.Resync(ctx); rerr != nil {
			r.log.Warn("resync setelah konflik gagal", zap.Error(rerr))
		}
		return models.Snapshot{}, err

	case errors.Is(err, queue.ErrValidation),
		errors.Is(err, queue.ErrNotFound),
		errors.Is(err, queue.ErrInvalidTransition),
		errors.Is(err, queue.ErrForbidden):
		r.settle(p.seq, nil)
		r.notify(op, queue.ErrorCode(err), err.Error())
		return models.Snapshot{}, err
	}

	// Hasil tidak pasti: op tetap tampil sampai snapshot server datang.
	r.log.Warn("hasil operasi tidak pasti", zap.String("op", string(op.Name())), zap.Error(err))
	r.notify(op, "unknown", "koneksi bermasalah, memuat ulang antrian dari server")
	if rerr := r.Resync(ctx); rerr != nil {
		r.log.Warn("resync gagal", zap.Error(rerr))
	}
	r.settle(p.seq, nil)
	return models.Snapshot{}, err
}

// stage applies op to the view and records it as pending.
func (r *Reconciler) stage(op Operation) (pendingOp, models.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.view.Clone()
	if err := op.Apply(&next); err != nil {
		return pendingOp{}, models.Snapshot{}, err
	}
	r.seq++
	p := pendingOp{seq: r.seq, op: op}
	r.pending = append(r.pending, p)
	r.view = next
	return p, r.view.Clone(), nil
}

// settle drops the pending op and, if the server answered with something
// newer than what we hold, adopts it.
func (r *Reconciler) settle(seq uint64, snap *models.Snapshot) {
	r.mu.Lock()
	for i, p := range r.pending {
		if p.seq == seq {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			break
		}
	}
	if snap != nil && snap.Version > r.confirmed.Version {
		r.confirmed = snap.Clone()
	}
	view := r.rebuildLocked()
	r.mu.Unlock()
	r.emit(view)
}

// rebuildLocked recomputes view = confirmed + pending. Ops that no longer
// apply locally are skipped; the server's answer will settle them.
func (r *Reconciler) rebuildLocked() models.Snapshot {
	view := r.confirmed.Clone()
	for _, p := range r.pending {
		next := view.Clone()
		if err := p.op.Apply(&next); err == nil {
			view = next
		}
	}
	r.view = view
	return view.Clone()
}

func conflictMessage(op Operation) string {
	switch op.Name() {
	case models.OpMove, models.OpBulkReorder:
		return "posisi berubah sebelum perubahan Anda sampai ke server"
	case models.OpCallNext:
		return "pasien lain sedang dipanggil"
	case models.OpEnqueue:
		return "pendaftaran online sedang ditutup"
	}
	return "antrian berubah, data dimuat ulang"
}

/*
|--------------------------------------------------------------------------
| Push & Resync
|--------------------------------------------------------------------------
*/

// HandleUpdate processes an update push. It reports true when a version
// gap means the caller must resync.
func (r *Reconciler) HandleUpdate(snap models.Snapshot) bool {
	return r.handlePush(heldPush{snap: snap})
}

// HandleSnapshot processes a full-state handshake reply.
func (r *Reconciler) HandleSnapshot(snap models.Snapshot) {
	r.handlePush(heldPush{snap: snap, full: true})
}

func (r *Reconciler) handlePush(h heldPush) bool {
	r.mu.Lock()
	if r.syncing {
		r.held = append(r.held, h)
		r.mu.Unlock()
		return false
	}
	changed, gap := r.applyPushLocked(h)
	var view models.Snapshot
	if changed {
		view = r.rebuildLocked()
	}
	r.mu.Unlock()

	if changed {
		r.emit(view)
	}
	return gap
}

func (r *Reconciler) applyPushLocked(h heldPush) (changed, gap bool) {
	if h.snap.Version <= r.confirmed.Version {
		return false, false
	}
	if !h.full && h.snap.Version != r.confirmed.Version+1 {
		r.log.Info("version gap", zap.Int64("have", r.confirmed.Version), zap.Int64("got", h.snap.Version))
		return false, true
	}
	r.confirmed = h.snap.Clone()
	return true, false
}

// BeginResync holds back pushes until the matching EndResync or AbortResync.
func (r *Reconciler) BeginResync() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncing = true
	r.syncGen++
	return r.syncGen
}

// EndResync replaces the confirmed state with a pulled snapshot, whatever its
// version, then replays held pushes that are newer. Results of a superseded
// resync are ignored. It reports true if the replay found a gap.
func (r *Reconciler) EndResync(gen uint64, snap models.Snapshot) bool {
	r.mu.Lock()
	if gen != r.syncGen {
		r.mu.Unlock()
		return false
	}
	r.confirmed = snap.Clone()
	gap := r.finishLocked()
	view := r.rebuildLocked()
	r.mu.Unlock()

	r.emit(view)
	return gap
}

// AbortResync ends a failed pull; held pushes are processed normally.
func (r *Reconciler) AbortResync(gen uint64) bool {
	r.mu.Lock()
	if gen != r.syncGen {
		r.mu.Unlock()
		return false
	}
	gap := r.finishLocked()
	view := r.rebuildLocked()
	r.mu.Unlock()

	r.emit(view)
	return gap
}

func (r *Reconciler) finishLocked() bool {
	held := r.held
	r.held = nil
	r.syncing = false

	// urutkan versi, pesan bisa datang tidak berurutan
	for i := 1; i < len(held); i++ {
		for j := i; j > 0 && held[j].snap.Version < held[j-1].snap.Version; j-- {
			held[j], held[j-1] = held[j-1], held[j]
		}
	}
	gap := false
	for _, h := range held {
		_, g := r.applyPushLocked(h)
		gap = gap || g
	}
	return gap
}

// Resync pulls one full snapshot. A gap found while replaying held pushes
// triggers one more pull.
func (r *Reconciler) Resync(ctx context.Context) error {
	for attempt := 0; attempt < 2; attempt++ {
		gen := r.BeginResync()
		pullCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		snap, err := r.api.Snapshot(pullCtx, r.key)
		cancel()
		if err != nil {
			r.AbortResync(gen)
			return err
		}
		if !r.EndResync(gen, snap) {
			return nil
		}
	}
	return nil
}

func (r *Reconciler) emit(view models.Snapshot) {
	if r.opts.OnChange != nil {
		r.opts.OnChange(view)
	}
}

func (r *Reconciler) notify(op Operation, code, msg string) {
	r.log.Info("perubahan dibatalkan", zap.String("op", string(op.Name())), zap.String("code", code), zap.String("message", msg))
	if r.opts.OnNotice != nil {
		r.opts.OnNotice(Notice{Key: r.key, Op: op.Name(), Code: code, Message: msg})
	}
}
