package models

import "time"

type EventType string

const (
	EventBulkAdd   EventType = "bulk_add"
	EventUndo      EventType = "undo"
	EventCancel    EventType = "cancel"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// EventMetadata is stored as JSON alongside the event. AddedIDs is the exact
// set of membership rows a bulk mutation created, which is what undo removes.
type EventMetadata struct {
	Strategy           StrategyKind `json:"strategy,omitempty"`
	SourceCollectionID string       `json:"source_collection_id,omitempty"`
	AddedIDs           []int64      `json:"added_ids,omitempty"`
	Done               int          `json:"done"`
	Total              int          `json:"total"`
	DurationMs         int64        `json:"duration_ms"`
	ThroughputPerSec   float64      `json:"throughput_per_second"`
	UndoneEventID      string       `json:"undone_event_id,omitempty"`
	Removed            int64        `json:"removed,omitempty"`
}

// Event is one entry of the append-only event log.
type Event struct {
	ID           string        `json:"id"`
	JobID        string        `json:"job_id,omitempty"`
	Type         EventType     `json:"event_type"`
	CollectionID string        `json:"collection_id"`
	Description  string        `json:"description"`
	Metadata     EventMetadata `json:"metadata"`
	CreatedAt    time.Time     `json:"created_at"`
}

type EventFilter struct {
	Type   EventType
	JobID  string
	Limit  int
	Offset int
}

// EventStat counts events of one type on one UTC day.
type EventStat struct {
	Type  EventType `json:"event_type"`
	Count int       `json:"count"`
	Date  string    `json:"date"`
}
