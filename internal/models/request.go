package models

// Request and response bodies of the REST operations surface. Shared by the
// fiber handlers and the client transport.

type MoveRequest struct {
	Position  int   `json:"position"`
	IfVersion int64 `json:"if_version,omitempty"`
}

type ReorderRequest struct {
	Positions []PositionPair `json:"positions"`
	IfVersion int64          `json:"if_version,omitempty"`
}

type IntakeRequest struct {
	Open bool `json:"open"`
}

type StatusRequest struct {
	Status Status `json:"status"`
}

type EntryResult struct {
	Entry    Entry    `json:"entry"`
	Snapshot Snapshot `json:"snapshot"`
}

// DisplaySummary is what the waiting-room screen shows.
type DisplaySummary struct {
	Key          QueueKey `json:"key"`
	Version      int64    `json:"version"`
	IntakeOpen   bool     `json:"intake_open"`
	Current      *Entry   `json:"current,omitempty"`
	NextNumbers  []int64  `json:"next_numbers"`
	TotalWaiting int      `json:"total_waiting"`
	TotalServed  int      `json:"total_served"`
	AudioPaths   []string `json:"audio_paths,omitempty"`
}

// Summarize builds the screen view. Patient phone numbers are stripped.
func Summarize(snap Snapshot, next int) DisplaySummary {
	out := DisplaySummary{
		Key:          snap.Key,
		Version:      snap.Version,
		IntakeOpen:   snap.IntakeOpen,
		NextNumbers:  []int64{},
		TotalWaiting: snap.WaitingCount(),
	}
	if cur, ok := snap.Serving(); ok {
		cur.PatientRef.Phone = ""
		out.Current = &cur
	}
	for _, e := range snap.Entries {
		switch {
		case e.Status == StatusWaiting && len(out.NextNumbers) < next:
			out.NextNumbers = append(out.NextNumbers, e.Number)
		case e.Status == StatusCompleted:
			out.TotalServed++
		}
	}
	return out
}
