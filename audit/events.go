package audit

import "time"

// EventType classifies an audit trail entry.
type EventType string

const (
	EventPipelineStarted   EventType = "pipeline_started"
	EventPipelineCompleted EventType = "pipeline_completed"
	EventPipelineFailed    EventType = "pipeline_failed"
	EventStageStarted      EventType = "stage_started"
	EventStageCompleted    EventType = "stage_completed"
	EventError             EventType = "error"
	EventWarning           EventType = "warning"
)

// Event is one immutable audit trail entry, bound to a pipeline run.
type Event struct {
	PipelineRunID string         `json:"pipeline_run_id"`
	Type          EventType      `json:"type"`
	Stage         string         `json:"stage,omitempty"`
	Message       string         `json:"message"`
	Timestamp     time.Time      `json:"timestamp"`
	Details       map[string]any `json:"details,omitempty"`
}

// PipelineRun is the tracked lifecycle record of one pipeline execution.
type PipelineRun struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}
