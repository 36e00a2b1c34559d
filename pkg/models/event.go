package models

// EventKind classifies a status line emitted during a sync run.
type EventKind string

const (
	EventSync        EventKind = "sync"
	EventCopy        EventKind = "copy"
	EventCheckFailed EventKind = "check_failed"
	EventDeclined    EventKind = "declined"
)

// Event is one decision or outcome of a sync run
type Event struct {
	Kind       EventKind
	Mode       Mode
	SourcePath string
	TargetPath string
	Files      int64
	Size       int64
	Message    string
}

// Report collects the events of a run together with their running totals.
type Report struct {
	Events []Event
	Stats  Stats
}

// Add appends an event and updates the totals.
func (r *Report) Add(e Event) {
	r.Events = append(r.Events, e)
	switch e.Kind {
	case EventSync:
		if e.Mode == ModeSkipped {
			r.Stats.SkippedUnits++
		} else {
			r.Stats.CopyUnits++
		}
	case EventCopy:
		r.Stats.CopiedFiles += e.Files
		r.Stats.CopiedSize += e.Size
	case EventCheckFailed:
		r.Stats.FailedChecks++
		if e.Message != "" {
			r.Stats.MissingFiles++
		}
	case EventDeclined:
		r.Stats.DeclinedUnits++
	}
}

// Filter returns the events of the given kind in the order they were added.
func (r *Report) Filter(kind EventKind) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
