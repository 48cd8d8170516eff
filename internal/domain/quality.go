package domain

import "time"

// ProcessingStatus is the tri-state verdict for one source, plus not_started.
// It is always derived from a SourceResult and never stored.
type ProcessingStatus string

const (
	StatusCompleted       ProcessingStatus = "completed"
	StatusCompletedNoData ProcessingStatus = "completed_no_data"
	StatusFailed          ProcessingStatus = "failed"
	StatusNotStarted      ProcessingStatus = "not_started"
)

// QualityScore is an immutable snapshot of evidence quality for a job.
type QualityScore struct {
	TotalItemCount   int          `json:"total_item_count"`
	MeetsMinimum     bool         `json:"meets_minimum"`
	MissingSources   []SourceName `json:"missing_sources"`
	Score            int          `json:"score"`
	Warnings         []string     `json:"warnings"`
	VerificationRate *float64     `json:"verification_rate,omitempty"`
}

// EventType names a lifecycle event.
type EventType string

const (
	EventJobStarted     EventType = "job.started"
	EventSourceFinished EventType = "source.finished"
	EventJobFinished    EventType = "job.finished"
)

// CollectionEvent is published as jobs progress.
type CollectionEvent struct {
	Type      EventType        `json:"type"`
	JobID     string           `json:"job_id"`
	Source    SourceName       `json:"source,omitempty"`
	Status    ProcessingStatus `json:"status,omitempty"`
	ItemCount int              `json:"item_count,omitempty"`
	JobStatus JobStatus        `json:"job_status,omitempty"`
	Error     string           `json:"error,omitempty"`
	At        time.Time        `json:"at"`
}
