package models

import (
	"fmt"
	"strings"
	"time"
)

const DayLayout = "2006-01-02"

/*
|--------------------------------------------------------------------------
| Queue Key
|--------------------------------------------------------------------------
| Satu antrian independen per dokter spesialis, per hari, per poli.
*/
type QueueKey struct {
	SpecialistID string `json:"specialist_id"`
	Day          string `json:"day"` // format: "YYYY-MM-DD"
	Department   string `json:"department"`
}

func (k QueueKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.SpecialistID, k.Day, k.Department)
}

func (k QueueKey) Validate() error {
	if strings.TrimSpace(k.SpecialistID) == "" {
		return fmt.Errorf("specialist_id wajib diisi")
	}
	if strings.TrimSpace(k.Department) == "" {
		return fmt.Errorf("department wajib diisi")
	}
	if _, err := time.Parse(DayLayout, k.Day); err != nil {
		return fmt.Errorf("day harus berformat YYYY-MM-DD")
	}
	return nil
}

// Date returns the key's calendar day at midnight in loc.
func (k QueueKey) Date(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DayLayout, k.Day, loc)
}

/*
|--------------------------------------------------------------------------
| Entry
|--------------------------------------------------------------------------
*/

type Source string

const (
	SourceDesk   Source = "desk"
	SourceOnline Source = "online"
)

func (s Source) Valid() bool {
	return s == SourceDesk || s == SourceOnline
}

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCalled    Status = "called"
	StatusInService Status = "in_service"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusInService,
		StatusCompleted, StatusCanceled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusNoShow
}

// Serving reports whether the entry occupies the specialist's room slot.
func (s Status) Serving() bool {
	return s == StatusCalled || s == StatusInService
}

type PatientRef struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type Entry struct {
	ID         string     `json:"id"`
	Number     int64      `json:"number"`
	Position   int        `json:"position,omitempty"` // 0 untuk entry terminal
	PatientRef PatientRef `json:"patient_ref"`
	Source     Source     `json:"source"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	CalledAt   *time.Time `json:"called_at,omitempty"`
}

type EntryDraft struct {
	PatientRef PatientRef `json:"patient_ref"`
	Source     Source     `json:"source"`
}

/*
|--------------------------------------------------------------------------
| Snapshot
|--------------------------------------------------------------------------
| Entry aktif dulu sesuai urutan (position 1..n), lalu entry terminal
| urut nomor tiket.
*/
type Snapshot struct {
	Key        QueueKey `json:"key"`
	Version    int64    `json:"version"`
	IntakeOpen bool     `json:"intake_open"`
	Entries    []Entry  `json:"entries"`
}

// Clone returns a deep copy so callers can mutate it freely.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Entries = make([]Entry, len(s.Entries))
	for i, e := range s.Entries {
		if e.CalledAt != nil {
			t := *e.CalledAt
			e.CalledAt = &t
		}
		out.Entries[i] = e
	}
	return out
}

func (s Snapshot) Active() []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if !e.Status.Terminal() {
			out = append(out, e)
		}
	}
	return out
}

func (s Snapshot) Find(id string) (Entry, bool) {
	for _, e := range s.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Serving returns the entry currently called or in service, if any.
func (s Snapshot) Serving() (Entry, bool) {
	for _, e := range s.Entries {
		if e.Status.Serving() {
			return e, true
		}
	}
	return Entry{}, false
}

func (s Snapshot) WaitingCount() int {
	n := 0
	for _, e := range s.Entries {
		if e.Status == StatusWaiting {
			n++
		}
	}
	return n
}

// Normalize puts active entries first in their current order followed by
// terminal entries ordered by number, then renumbers positions.
func (s *Snapshot) Normalize() {
	active := make([]Entry, 0, len(s.Entries))
	var closed []Entry
	for _, e := range s.Entries {
		if e.Status.Terminal() {
			e.Position = 0
			closed = append(closed, e)
			continue
		}
		active = append(active, e)
	}
	for i := range active {
		active[i].Position = i + 1
	}
	for i := 1; i < len(closed); i++ {
		for j := i; j > 0 && closed[j].Number < closed[j-1].Number; j-- {
			closed[j], closed[j-1] = closed[j-1], closed[j]
		}
	}
	s.Entries = append(active, closed...)
}

type PositionPair struct {
	EntryID  string `json:"entry_id"`
	Position int    `json:"position"`
}
