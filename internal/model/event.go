package model

import "time"

// EventType identifies a progress event.
type EventType string

// Progress event types.
const (
	EventStart      EventType = "start"
	EventSkipped    EventType = "skipped"
	EventBatchStart EventType = "batch_start"
	EventProgress   EventType = "progress"
	EventResult     EventType = "result"
	EventError      EventType = "error"
	EventComplete   EventType = "complete"
)

// SkippedItem is a product the skip filter excluded, with the category it already holds.
type SkippedItem struct {
	ProductID string `json:"product_id"`
	Category  Tier   `json:"category"`
}

// Counters are the running totals carried by every event.
type Counters struct {
	Total     int `json:"total"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Processed int `json:"processed"`
}

// Event is one entry in a run's progress stream. Seq increases by one per
// event within a run, so observers can order events regardless of arrival.
type Event struct {
	Time        time.Time       `json:"time"`
	NextOffset  *int            `json:"next_offset,omitempty"`
	Vision      *VisionAnalysis `json:"vision,omitempty"`
	Type        EventType       `json:"type"`
	RunID       string          `json:"run_id"`
	ProductID   string          `json:"product_id,omitempty"`
	ProductName string          `json:"product_name,omitempty"`
	Category    Tier            `json:"category,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Cause       string          `json:"cause,omitempty"`
	Message     string          `json:"message"`
	Skipped     []SkippedItem   `json:"skipped,omitempty"`
	Counters    Counters        `json:"counters"`
	Seq         int64           `json:"seq"`
	Confidence  int             `json:"confidence,omitempty"`
	Batch       int             `json:"batch,omitempty"`
	BatchSize   int             `json:"batch_size,omitempty"`
	TotalInDB   int             `json:"total_in_db,omitempty"`
	Offset      int             `json:"offset,omitempty"`
	Limit       int             `json:"limit,omitempty"`
	ElapsedMS   int64           `json:"elapsed_ms,omitempty"`
	Fallback    bool            `json:"fallback,omitempty"`
	Fatal       bool            `json:"fatal,omitempty"`
	Interrupted bool            `json:"interrupted,omitempty"`
}
