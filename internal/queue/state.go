package queue

import "antrian-klinik/internal/models"

// state is the authoritative list for one key. It is only touched while the
// owning slot's lock is held.
type state struct {
	key        models.QueueKey
	version    int64
	nextNumber int64
	intakeOpen bool
	active     []models.Entry // urutan antrian, sumber kebenaran posisi
	closed     []models.Entry // entry terminal, disimpan untuk audit
}

func newState(key models.QueueKey, intakeOpen bool) *state {
	return &state{
		key:        key,
		nextNumber: 1,
		intakeOpen: intakeOpen,
	}
}

// stateFromSnapshot rebuilds a state from a persisted snapshot.
func stateFromSnapshot(snap models.Snapshot) *state {
	st := newState(snap.Key, snap.IntakeOpen)
	st.version = snap.Version
	for _, e := range snap.Entries {
		if e.Number >= st.nextNumber {
			st.nextNumber = e.Number + 1
		}
		if e.Status.Terminal() {
			st.closed = append(st.closed, e)
		} else {
			st.active = append(st.active, e)
		}
	}
	return st
}

func (s *state) clone() *state {
	out := *s
	out.active = append([]models.Entry(nil), s.active...)
	out.closed = append([]models.Entry(nil), s.closed...)
	return &out
}

func (s *state) snapshot() models.Snapshot {
	snap := models.Snapshot{
		Key:        s.key,
		Version:    s.version,
		IntakeOpen: s.intakeOpen,
		Entries:    make([]models.Entry, 0, len(s.active)+len(s.closed)),
	}
	snap.Entries = append(snap.Entries, s.active...)
	snap.Entries = append(snap.Entries, s.closed...)
	snap.Normalize()
	return snap.Clone()
}

func (s *state) activeIndex(id string) int {
	for i := range s.active {
		if s.active[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *state) closedIndex(id string) int {
	for i := range s.closed {
		if s.closed[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *state) serving() (models.Entry, bool) {
	for _, e := range s.active {
		if e.Status.Serving() {
			return e, true
		}
	}
	return models.Entry{}, false
}

// retire moves the active entry at idx into the closed list.
func (s *state) retire(idx int) {
	e := s.active[idx]
	e.Position = 0
	s.active = append(s.active[:idx], s.active[idx+1:]...)
	s.closed = append(s.closed, e)
}

// moveTo reinserts the active entry at idx so it ends up at 1-based target.
func (s *state) moveTo(idx, target int) {
	e := s.active[idx]
	rest := append(s.active[:idx:idx], s.active[idx+1:]...)
	out := make([]models.Entry, 0, len(s.active))
	out = append(out, rest[:target-1]...)
	out = append(out, e)
	out = append(out, rest[target-1:]...)
	s.active = out
}
