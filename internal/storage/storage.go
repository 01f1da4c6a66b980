package storage

import "time"

// Event is one dispatched chat event as seen by the router.
// Events are appended in the order dispatch finished.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	ChatID     int64     `json:"chat_id"`
	Kind       string    `json:"kind"`
	Handler    string    `json:"handler"`
	Outcome    string    `json:"outcome"`
	DurationMs int64     `json:"duration_ms"`
}

// Recorder abstracts persistence of the dispatch journal.
// LoadEvents should return events in the order they were appended.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendEvent(event Event) error
	LoadEvents() ([]Event, error)
}
