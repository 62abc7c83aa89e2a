package models

import "time"

// Event types
const (
	EventTypeRecordPut       = "RECORD_PUT"
	EventTypeImportRow       = "IMPORT_ROW"
	EventTypeImportCompleted = "IMPORT_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordPutEvent published after a record (and its index entries) is written
type RecordPutEvent struct {
	BaseEvent
	Collection string `json:"collection"`
	Key        string `json:"key"`
	Record     Record `json:"record"`
}

// ImportRowEvent carries one flat row to be ingested by the import worker
type ImportRowEvent struct {
	BaseEvent
	Collection string `json:"collection"`
	Row        Record `json:"row"`
}

// ImportCompletedEvent published when a bulk import finishes
type ImportCompletedEvent struct {
	BaseEvent
	Collection string `json:"collection"`
	Source     string `json:"source"`
	Imported   int    `json:"imported"`
	Skipped    int    `json:"skipped"`
}
