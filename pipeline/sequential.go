package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// SequentialExecutor runs enabled stages one at a time in dependency
// order, handing each stage's output to the next as input. The whole batch
// of a stage is fully available before its successor starts, so records
// keep their original order end to end.
type SequentialExecutor struct {
	stages Registry
	logger *slog.Logger
}

// SequentialOption configures a SequentialExecutor.
type SequentialOption func(*SequentialExecutor)

// WithSequentialStages overrides the stage registry.
func WithSequentialStages(reg Registry) SequentialOption {
	return func(e *SequentialExecutor) {
		if reg != nil {
			e.stages = reg
		}
	}
}

// WithSequentialLogger sets a custom logger.
func WithSequentialLogger(logger *slog.Logger) SequentialOption {
	return func(e *SequentialExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewSequentialExecutor creates a sequential executor over the default
// stage registry. Executors are cheap and expected to be short-lived: one
// per run.
func NewSequentialExecutor(opts ...SequentialOption) *SequentialExecutor {
	e := &SequentialExecutor{
		stages: DefaultRegistry(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the pipeline described by the context. The first stage
// failure aborts the remaining chain; results of already-completed stages
// stay in the context and remain visible in the summary.
func (e *SequentialExecutor) Execute(ctx context.Context, pc *Context) (any, error) {
	logger := e.logger.With("pipeline", pc.Name, "run", shortID(pc.PipelineID))
	logger.Info("starting sequential pipeline execution")

	enabled := enabledStages(pc)
	if len(enabled) == 0 {
		return nil, fmt.Errorf("%w: pipeline %s", ErrNoStagesEnabled, pc.Name)
	}
	logger.Info("resolved enabled stages", "stages", enabled)

	var result any
	for _, name := range enabled {
		stage, ok := e.stages[name]
		if !ok {
			pc.AddWarning("executor", "stage '"+name+"' not found, skipping", nil)
			continue
		}

		pc.StartStage(name)

		stageResult, err := stage.Execute(ctx, pc, result)
		if err != nil {
			pc.AddError(name, "failed to execute stage: "+err.Error(), nil)
			return nil, &StageError{Pipeline: pc.Name, Stage: name, Err: err}
		}

		pc.EndStage(name, stageResult)
		result = stageResult

		if result == nil {
			logger.Warn("stage produced no result", "stage", name)
		} else {
			logger.Info("stage produced result", "stage", name, "items", countItems(result))
		}
	}

	logger.Info("pipeline execution completed")
	return result, nil
}
