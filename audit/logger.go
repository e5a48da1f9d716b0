package audit

import (
	"fmt"
	"log/slog"
	"time"
)

// Logger translates pipeline lifecycle moments into audit events. A nil
// *Logger is valid and drops everything, so callers never have to guard
// audit calls behind enablement checks.
type Logger struct {
	runID string
	repo  TrackingRepository
}

// NewLogger creates an audit logger bound to one pipeline run.
func NewLogger(runID string, repo TrackingRepository) *Logger {
	return &Logger{runID: runID, repo: repo}
}

// record is the single best-effort write path. Persistence failures are
// logged and swallowed; the audit trail never interferes with the run.
func (l *Logger) record(eventType EventType, stage, message string, details map[string]any) {
	if l == nil || l.repo == nil {
		return
	}

	err := l.repo.RecordEvent(Event{
		PipelineRunID: l.runID,
		Type:          eventType,
		Stage:         stage,
		Message:       message,
		Timestamp:     time.Now(),
		Details:       details,
	})
	if err != nil {
		slog.Warn("failed to record audit event", "type", eventType, "err", err)
	}
}

// LogPipelineStarted records the start of a pipeline run.
func (l *Logger) LogPipelineStarted(name string) {
	l.record(EventPipelineStarted, "", "pipeline started: "+name, nil)
}

// LogPipelineCompleted records a successful run with its total duration.
func (l *Logger) LogPipelineCompleted(name string, seconds float64) {
	l.record(EventPipelineCompleted, "", "pipeline completed: "+name, map[string]any{
		"duration_seconds": seconds,
	})
}

// LogPipelineFailed records a run that ended with errors.
func (l *Logger) LogPipelineFailed(name string, errorCount int) {
	l.record(EventPipelineFailed, "", "pipeline failed: "+name, map[string]any{
		"error_count": errorCount,
	})
}

// LogStageStarted records the start of a stage.
func (l *Logger) LogStageStarted(stage string) {
	l.record(EventStageStarted, stage, "stage started", nil)
}

// LogStageCompleted records a finished stage and its duration.
func (l *Logger) LogStageCompleted(stage string, duration time.Duration) {
	l.record(EventStageCompleted, stage, fmt.Sprintf("stage completed in %s", duration), map[string]any{
		"duration_seconds": duration.Seconds(),
	})
}

// LogError records an error diagnostic.
func (l *Logger) LogError(stage, message string, details map[string]any) {
	l.record(EventError, stage, message, details)
}

// LogWarning records a warning diagnostic.
func (l *Logger) LogWarning(stage, message string, details map[string]any) {
	l.record(EventWarning, stage, message, details)
}
