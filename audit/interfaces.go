package audit

// TrackingRepository persists pipeline run records and their audit events.
type TrackingRepository interface {
	// StartPipelineRun registers a new run in "running" status.
	StartPipelineRun(runID, name string) error

	// CompletePipelineRun seals a run with its terminal status.
	CompletePipelineRun(runID, status string) error

	// RecordEvent appends one audit event to the run's trail.
	RecordEvent(event Event) error

	// Close releases the underlying storage.
	Close() error
}
