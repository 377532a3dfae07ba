package queue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"antrian-klinik/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func TestEnqueue_NumbersStrictlyIncreasing(t *testing.T) {
	h := newHarness()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := h.engine.Enqueue(ctx, testKey, desk, models.EntryDraft{
				PatientRef: models.PatientRef{Name: fmt.Sprintf("pasien-%d", i)},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := h.engine.Snapshot(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 40)
	assert.Equal(t, int64(40), snap.Version)

	seen := make(map[int64]bool)
	for i, e := range snap.Entries {
		assert.False(t, seen[e.Number], "duplicate number %d", e.Number)
		seen[e.Number] = true
		if i > 0 {
			assert.Greater(t, e.Number, snap.Entries[i-1].Number)
		}
		assert.Equal(t, i+1, e.Position)
		assert.Equal(t, models.StatusWaiting, e.Status)
	}
}

func TestEnqueue_NumberNeverReusedAfterCancel(t *testing.T) {
	h := newHarness()
	entries := h.enqueue("A", "B")

	_, err := h.engine.MarkStatus(ctx, testKey, desk, entries[1].ID, models.StatusCanceled)
	require.NoError(t, err)

	c := h.enqueue("C")[0]
	assert.Equal(t, int64(3), c.Number)
	assert.Equal(t, 2, c.Position)
}

func TestEnqueue_Validation(t *testing.T) {
	h := newHarness()

	_, _, err := h.engine.Enqueue(ctx, testKey, desk, models.EntryDraft{})
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = h.engine.Enqueue(ctx, testKey, desk, models.EntryDraft{
		PatientRef: models.PatientRef{Name: "Budi", Phone: "08xx-abc"},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = h.engine.Enqueue(ctx, testKey, desk, models.EntryDraft{
		PatientRef: models.PatientRef{Name: "Budi"},
		Source:     "walk-in",
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = h.engine.Enqueue(ctx, models.QueueKey{SpecialistID: "dr-ani", Day: "besok", Department: "gigi"}, desk, models.EntryDraft{
		PatientRef: models.PatientRef{Name: "Budi"},
	})
	assert.ErrorIs(t, err, ErrValidation)

	snap, _ := h.engine.Snapshot(ctx, testKey)
	assert.Equal(t, int64(0), snap.Version)
}

func TestEnqueue_NotifiesTicketSink(t *testing.T) {
	h := newHarness()
	e := h.enqueue("Siti")[0]

	require.Len(t, h.tickets.entries, 1)
	assert.Equal(t, e.ID, h.tickets.entries[0].ID)
	assert.Equal(t, int64(1), h.tickets.entries[0].Number)
}

func TestEnqueue_PatientForcedOnline(t *testing.T) {
	h := newHarness()
	e, _, err := h.engine.Enqueue(ctx, testKey, patient, models.EntryDraft{
		PatientRef: models.PatientRef{Name: "Rina", Phone: "+62 812-3456"},
		Source:     models.SourceDesk,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SourceOnline, e.Source)
}

func TestToggleIntake_GatesOnlineOnly(t *testing.T) {
	h := newHarness()

	snap, err := h.engine.ToggleIntake(ctx, testKey, desk, false)
	require.NoError(t, err)
	assert.False(t, snap.IntakeOpen)
	assert.Equal(t, int64(1), snap.Version)

	_, _, err = h.engine.Enqueue(ctx, testKey, patient, models.EntryDraft{PatientRef: models.PatientRef{Name: "Rina"}})
	assert.ErrorIs(t, err, ErrConflict)

	// loket tetap bisa mendaftarkan pasien
	h.enqueue("Budi")

	// idempotent
	snap, err = h.engine.ToggleIntake(ctx, testKey, desk, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)

	_, err = h.engine.ToggleIntake(ctx, testKey, desk, true)
	require.NoError(t, err)
	_, _, err = h.engine.Enqueue(ctx, testKey, patient, models.EntryDraft{PatientRef: models.PatientRef{Name: "Rina"}})
	assert.NoError(t, err)
}

func TestEnqueue_OutsideOpeningHours(t *testing.T) {
	at := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	h := newHarness(func(o *Options) {
		o.Hours = &OpeningHours{Open: "07:00", Close: "16:00"}
		o.Clock = func() time.Time { return at }
	})

	_, _, err := h.engine.Enqueue(ctx, testKey, patient, models.EntryDraft{PatientRef: models.PatientRef{Name: "Rina"}})
	assert.ErrorIs(t, err, ErrConflict)

	h.enqueue("Budi")
}

func TestMove_Scenario(t *testing.T) {
	h := newHarness()
	entries := h.enqueue("A", "B", "C")

	before, _ := h.engine.Snapshot(ctx, testKey)
	snap, err := h.engine.Move(ctx, testKey, desk, entries[2].ID, 1, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "A", "B"}, names(snap))
	assert.Equal(t, []int{1, 2, 3}, positions(snap))
	assert.Equal(t, before.Version+1, snap.Version)
}

func TestMove_ClampsTarget(t *testing.T) {
	h := newHarness()
	entries := h.enqueue("A", "B", "C")

	snap, err := h.engine.Move(ctx, testKey, desk, entries[0].ID, 99, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, names(snap))

	snap, err = h.engine.Move(ctx, testKey, desk, entries[0].ID, -4, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, names(snap))
}

func TestMove_SameTargetIsNoop(t *testing.T) {
	h := newHarness()
	entries := h.enqueue("A", "B", "C")

	first, err := h.engine.Move(ctx, testKey, desk, entries[2].ID, 1, 0)
	require.NoError(t, err)
	published := len(h.publisher.versions(testKey))

	// replay dari offline queue
	second, err := h.engine.Move(ctx, testKey, desk, entries[2].ID, 1, first.Version-1)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, names(first), names(second))
	assert.Len(t, h.publisher.versions(testKey), published)
}

func TestMove_StaleVersionConflict(t *testing.T) {
	h := newHarness()
	entries := h.enqueue("A", "B", "C")

	_, err := h.engine.Move(ctx, testKey, desk, entries[2].ID, 1, 1)
	assert.ErrorIs(t, err, ErrConflict)

	snap, err := h.engine.Move(ctx, testKey, desk, entries[2].ID, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), snap.Version)
}

func TestMove_RejectsTerminalAndInService(t *testing.T) {
	h := newHarness()
	entries := h.enqueue("A", "B", "C")

	_, err := h.engine.MarkStatus(ctx, testKey, desk, entries[2].ID, models.StatusCanceled)
	require.NoError(t, err)
	_, err = h.engine.Move(ctx, testKey, desk, entries[2].ID, 1, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = h.engine.CallNext(ctx, testKey, specialist)
	require.NoError(t, err)
	_, err = h.engine.MarkStatus(ctx, testKey, specialist, entries[0].ID, models.StatusInService)
	require.NoError(t, err)
	_, err = h.engine.Move(ctx, testKey, desk, entries[0].ID, 2, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.engine.Move(ctx, testKey, desk, "tidak-ada", 1, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMove_CalledEntryCanMove(t *testing.T) {
	h := newHarness()
	entries := h.enqueue("A", "B")

	_, _, err := h.engine.CallNext(ctx, testKey, desk)
	require.NoError(t, err)

	snap, err := h.engine.Move(ctx, testKey, desk, entries[0].ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, names(snap))
}

func TestMove_PositionsStayContiguous(t *testing.T) {
	h := newHarness()
	entries := h.enqueue("A", "B", "C", "D", "E", "F", "G")
	_, err := h.engine.MarkStatus(ctx, testKey, desk, entries[3].ID, models.StatusCanceled)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		e := entries[rng.Intn(len(entries))]
		snap, err := h.engine.Move(ctx, testKey, desk, e.ID, rng.Intn(9)-1, 0)
		if e.ID == entries[3].ID {
			require.ErrorIs(t, err, ErrNotFound)
			continue
		}
		require.NoError(t, err)

		active := snap.Active()
		require.Len(t, active, 6)
		for j, a := range active {
			assert.Equal(t, j+1, a.Position)
		}
		for _, x := range snap.Entries {
			if x.Status.Terminal() {
				assert.Zero(t, x.Position)
			}
		}
	}
}

func TestCallNext_SecondCallConflicts(t *testing.T) {
	h := newHarness()
	a := h.enqueue("A")[0]

	called, snap, err := h.engine.CallNext(ctx, testKey, specialist)
	require.NoError(t, err)
	assert.Equal(t, a.ID, called.ID)
	assert.Equal(t, models.StatusCalled, called.Status)
	require.NotNil(t, called.CalledAt)

	_, again, err := h.engine.CallNext(ctx, testKey, specialist)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, snap.Version, again.Version)

	h.enqueue("B")
	_, _, err = h.engine.CallNext(ctx, testKey, specialist)
	assert.ErrorIs(t, err, ErrConflict, "only one entry may be called or in service")
}

func TestCallNext_PicksLowestWaitingPosition(t *testing.T) {
	h := newHarness()
	entries := h.enqueue("A", "B", "C")

	_, err := h.engine.Move(ctx, testKey, desk, entries[1].ID, 1, 0)
	require.NoError(t, err)

	called, _, err := h.engine.CallNext(ctx, testKey, desk)
	require.NoError(t, err)
	assert.Equal(t, "B", called.PatientRef.Name)
}

func TestCallNext_EmptyQueue(t *testing.T) {
	h := newHarness()
	_, _, err := h.engine.CallNext(ctx, testKey, desk)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCallNext_FullVisit(t *testing.T) {
	h := newHarness()
	entries := h.enqueue("A", "B")

	_, _, err := h.engine.CallNext(ctx, testKey, specialist)
	require.NoError(t, err)
	_, err = h.engine.MarkStatus(ctx, testKey, specialist, entries[0].ID, models.StatusInService)
	require.NoError(t, err)
	snap, err := h.engine.MarkStatus(ctx, testKey, specialist, entries[0].ID, models.StatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, []string{"B"}, names(snap))
	done, ok := snap.Find(entries[0].ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Zero(t, done.Position)
	require.NotNil(t, done.CalledAt)

	next, _, err := h.engine.CallNext(ctx, testKey, specialist)
	require.NoError(t, err)
	assert.Equal(t, entries[1].ID, next.ID)
}

func TestMarkStatus_Transitions(t *testing.T) {
	h := newHarness()
	entries := h.enqueue("A", "B")

	_, err := h.engine.MarkStatus(ctx, testKey, desk, entries[0].ID, models.StatusCalled)
	assert.ErrorIs(t, err, ErrInvalidTransition, "waiting -> called only via CallNext")

	_, err = h.engine.MarkStatus(ctx, testKey, desk, entries[0].ID, models.StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, _, err = h.engine.CallNext(ctx, testKey, desk)
	require.NoError(t, err)
	snap, err := h.engine.MarkStatus(ctx, testKey, desk, entries[0].ID, models.StatusNoShow)
	require.NoError(t, err)
	v := snap.Version

	// replay of the same transition changes nothing
	snap, err = h.engine.MarkStatus(ctx, testKey, desk, entries[0].ID, models.StatusNoShow)
	require.NoError(t, err)
	assert.Equal(t, v, snap.Version)

	_, err = h.engine.MarkStatus(ctx, testKey, desk, entries[0].ID, models.StatusWaiting)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.engine.MarkStatus(ctx, testKey, desk, entries[1].ID, "antri")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.engine.MarkStatus(ctx, testKey, desk, "hilang", models.StatusCanceled)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBulkReorder_Applies(t *testing.T) {
	h := newHarness()
	e := h.enqueue("A", "B", "C")

	snap, err := h.engine.BulkReorder(ctx, testKey, desk, []models.PositionPair{
		{EntryID: e[1].ID, Position: 1},
		{EntryID: e[0].ID, Position: 2},
		{EntryID: e[2].ID, Position: 3},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, names(snap))
	assert.Equal(t, int64(4), snap.Version)

	again, err := h.engine.BulkReorder(ctx, testKey, desk, []models.PositionPair{
		{EntryID: e[1].ID, Position: 1},
		{EntryID: e[0].ID, Position: 2},
		{EntryID: e[2].ID, Position: 3},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, again.Version)
}

func TestBulkReorder_AllOrNothing(t *testing.T) {
	h := newHarness()
	e := h.enqueue("A", "B", "C")
	before, _ := h.engine.Snapshot(ctx, testKey)

	cases := map[string][]models.PositionPair{
		"empty": {},
		"duplicate id": {
			{EntryID: e[0].ID, Position: 1}, {EntryID: e[0].ID, Position: 2}, {EntryID: e[2].ID, Position: 3},
		},
		"duplicate position": {
			{EntryID: e[0].ID, Position: 1}, {EntryID: e[1].ID, Position: 1}, {EntryID: e[2].ID, Position: 3},
		},
		"out of range": {
			{EntryID: e[0].ID, Position: 1}, {EntryID: e[1].ID, Position: 2}, {EntryID: e[2].ID, Position: 4},
		},
		"unknown id": {
			{EntryID: e[0].ID, Position: 1}, {EntryID: e[1].ID, Position: 2}, {EntryID: "x", Position: 3},
		},
	}
	for name, pairs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.engine.BulkReorder(ctx, testKey, desk, pairs, 0)
			assert.ErrorIs(t, err, ErrValidation)

			snap, _ := h.engine.Snapshot(ctx, testKey)
			assert.Equal(t, before.Version, snap.Version)
			assert.Equal(t, names(before), names(snap))
		})
	}
}

func TestBulkReorder_StaleSetConflicts(t *testing.T) {
	h := newHarness()
	e := h.enqueue("A", "B", "C")

	// subset of the active entries
	_, err := h.engine.BulkReorder(ctx, testKey, desk, []models.PositionPair{
		{EntryID: e[1].ID, Position: 1}, {EntryID: e[0].ID, Position: 2},
	}, 0)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = h.engine.MarkStatus(ctx, testKey, desk, e[2].ID, models.StatusCanceled)
	require.NoError(t, err)
	_, err = h.engine.BulkReorder(ctx, testKey, desk, []models.PositionPair{
		{EntryID: e[2].ID, Position: 1}, {EntryID: e[1].ID, Position: 2}, {EntryID: e[0].ID, Position: 3},
	}, 0)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = h.engine.BulkReorder(ctx, testKey, desk, []models.PositionPair{
		{EntryID: e[1].ID, Position: 1}, {EntryID: e[0].ID, Position: 2},
	}, 2)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAuthorization(t *testing.T) {
	h := newHarness()
	e := h.enqueue("A")

	_, _, err := h.engine.CallNext(ctx, testKey, patient)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.engine.Move(ctx, testKey, display, e[0].ID, 1, 0)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.engine.ToggleIntake(ctx, testKey, models.Actor{Role: models.RoleDesk}, false)
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = h.engine.Enqueue(ctx, testKey, display, models.EntryDraft{PatientRef: models.PatientRef{Name: "X"}})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPublish_InVersionOrderPerKey(t *testing.T) {
	h := newHarness()
	other := models.QueueKey{SpecialistID: "dr-budi", Day: "2026-03-02", Department: "umum"}

	var wg sync.WaitGroup
	for _, key := range []models.QueueKey{testKey, other} {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(key models.QueueKey, i int) {
				defer wg.Done()
				_, _, err := h.engine.Enqueue(ctx, key, desk, models.EntryDraft{
					PatientRef: models.PatientRef{Name: fmt.Sprintf("p%d", i)},
				})
				assert.NoError(t, err)
			}(key, i)
		}
	}
	wg.Wait()

	for _, key := range []models.QueueKey{testKey, other} {
		versions := h.publisher.versions(key)
		require.Len(t, versions, 20)
		for i, v := range versions {
			assert.Equal(t, int64(i+1), v)
		}
	}
}

func TestAudit_RecordsEveryMutation(t *testing.T) {
	h := newHarness()
	e := h.enqueue("A", "B")
	_, err := h.engine.Move(ctx, testKey, desk, e[1].ID, 1, 0)
	require.NoError(t, err)
	_, err = h.engine.Move(ctx, testKey, desk, e[1].ID, 1, 0) // noop
	require.NoError(t, err)

	require.Len(t, h.audit.events, 3)
	last := h.audit.events[2]
	assert.Equal(t, models.OpMove, last.Operation)
	assert.Equal(t, e[1].ID, last.EntryID)
	assert.Equal(t, desk.ID, last.ActorID)
	assert.Equal(t, int64(3), last.Version)
}

func TestPersist_FailureAbortsMutation(t *testing.T) {
	h := newHarness()
	h.enqueue("A")

	h.persister.failing = true
	_, _, err := h.engine.Enqueue(ctx, testKey, desk, models.EntryDraft{PatientRef: models.PatientRef{Name: "B"}})
	require.Error(t, err)
	assert.Equal(t, CodeInternal, ErrorCode(err))

	snap, _ := h.engine.Snapshot(ctx, testKey)
	assert.Equal(t, int64(1), snap.Version)
	assert.Len(t, snap.Entries, 1)
	assert.Equal(t, []int64{1}, h.publisher.versions(testKey))
}

func TestPersist_RestoresAfterRestart(t *testing.T) {
	h := newHarness()
	e := h.enqueue("A", "B")
	_, err := h.engine.MarkStatus(ctx, testKey, desk, e[1].ID, models.StatusCanceled)
	require.NoError(t, err)

	restarted := NewEngine(Options{Persister: h.persister, Location: time.UTC, IntakeDefault: true})
	snap, err := restarted.Snapshot(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Version)

	c, snap, err := restarted.Enqueue(ctx, testKey, desk, models.EntryDraft{PatientRef: models.PatientRef{Name: "C"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.Number)
	assert.Equal(t, []string{"A", "C"}, names(snap))
}

func TestSnapshot_UnknownKeyIsEmpty(t *testing.T) {
	h := newHarness()
	snap, err := h.engine.Snapshot(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Version)
	assert.Empty(t, snap.Entries)
	assert.True(t, snap.IntakeOpen)
}

func TestSnapshot_UnknownKeysAreNotRetained(t *testing.T) {
	h := newHarness()
	for i := 1; i <= 20; i++ {
		key := models.QueueKey{SpecialistID: "dr-ani", Day: fmt.Sprintf("2027-01-%02d", i), Department: "gigi"}
		snap, err := h.engine.Snapshot(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(0), snap.Version)
		assert.True(t, snap.IntakeOpen)
	}
	assert.Empty(t, h.engine.Keys())

	h.enqueue("A")
	assert.Equal(t, []models.QueueKey{testKey}, h.engine.Keys())
}

func TestAuthorize_OnlyTheBuiltInSystemActor(t *testing.T) {
	assert.NoError(t, Authorize(models.SystemActor, models.OpMove))
	assert.ErrorIs(t, Authorize(models.Actor{Role: models.RoleSystem}, models.OpMove), ErrForbidden)
	assert.ErrorIs(t, Authorize(models.Actor{ID: "u-1", Role: models.RoleSystem}, models.OpCallNext), ErrForbidden)
}
