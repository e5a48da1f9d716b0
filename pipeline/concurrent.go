package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// errExecutorStopped signals a cooperative shutdown requested via Stop.
var errExecutorStopped = errors.New("executor stopped")

// defaultQueueSize bounds each inter-stage channel. A full channel suspends
// the producer; that suspension is the back-pressure mechanism.
const defaultQueueSize = 100

// StageResult summarizes one stage worker's run under the concurrent
// executor.
type StageResult struct {
	Stage       string        `json:"stage"`
	Status      string        `json:"status"`
	ResultCount int           `json:"result_count"`
	Duration    time.Duration `json:"duration"`
	Results     []any         `json:"results"`
}

// ExecResult is the concurrent executor's terminal summary. Status is
// "completed" or "cancelled"; stage failures surface as an error from
// Execute instead.
type ExecResult struct {
	Status   string                 `json:"status"`
	Results  map[string]StageResult `json:"results"`
	Errors   []string               `json:"errors,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// ConcurrentExecutor runs enabled stages as independent workers connected
// by bounded channels, so a downstream stage starts consuming before its
// upstream producer has finished. Within one channel items stay FIFO;
// across stages there is no global ordering guarantee. Runs needing strict
// end-to-end record order must use the sequential executor.
//
// Executors are one-shot: create one per run.
type ConcurrentExecutor struct {
	stages    Registry
	queueSize int
	logger    *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
}

// ConcurrentOption configures a ConcurrentExecutor.
type ConcurrentOption func(*ConcurrentExecutor)

// WithConcurrentStages overrides the stage registry.
func WithConcurrentStages(reg Registry) ConcurrentOption {
	return func(e *ConcurrentExecutor) {
		if reg != nil {
			e.stages = reg
		}
	}
}

// WithQueueSize sets the inter-stage channel capacity.
func WithQueueSize(size int) ConcurrentOption {
	return func(e *ConcurrentExecutor) {
		if size > 0 {
			e.queueSize = size
		}
	}
}

// WithConcurrentLogger sets a custom logger.
func WithConcurrentLogger(logger *slog.Logger) ConcurrentOption {
	return func(e *ConcurrentExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewConcurrentExecutor creates a concurrent executor over the default
// stage registry.
func NewConcurrentExecutor(opts ...ConcurrentOption) *ConcurrentExecutor {
	e := &ConcurrentExecutor{
		stages:    DefaultRegistry(),
		queueSize: defaultQueueSize,
		logger:    slog.Default(),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the pipeline with one worker per enabled stage. The first
// worker failure cancels all siblings and is returned as a StageError;
// letting unrelated stages run on would only deadlock their queues.
// External cancellation (parent context or Stop) yields a "cancelled"
// result rather than an error, so callers can tell a requested stop from a
// broken pipeline.
func (e *ConcurrentExecutor) Execute(ctx context.Context, pc *Context) (*ExecResult, error) {
	logger := e.logger.With("pipeline", pc.Name, "run", shortID(pc.PipelineID))
	logger.Info("starting concurrent pipeline execution")

	enabled := enabledStages(pc)
	if len(enabled) == 0 {
		return nil, fmt.Errorf("%w: pipeline %s", ErrNoStagesEnabled, pc.Name)
	}
	logger.Info("resolved enabled stages", "stages", enabled)

	// Drop enabled stages missing from the registry. The enabled list is
	// already in dependency order, so chaining the survivors preserves the
	// sequential hand-off semantics: each stage consumes the output of the
	// nearest active upstream stage.
	var active []string
	for _, name := range enabled {
		if _, ok := e.stages[name]; ok {
			active = append(active, name)
		} else {
			pc.AddWarning("executor", "stage '"+name+"' not found, skipping", nil)
		}
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("%w: pipeline %s", ErrNoStagesEnabled, pc.Name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	// Channels connect consecutive stages only. The terminal stage has no
	// consumer, so it gets no output channel; giving it one would fill up
	// at queueSize items and block its worker forever.
	queues := make(map[string]chan any, len(active))
	for _, name := range active[:len(active)-1] {
		queues[name] = make(chan any, e.queueSize)
	}

	start := time.Now()
	results := make(map[string]StageResult, len(active))
	var resMu sync.Mutex

	g, gctx := errgroup.WithContext(runCtx)

	for i, name := range active {
		stage := e.stages[name]
		var in, out chan any
		if i > 0 {
			in = queues[active[i-1]]
		}
		if i < len(active)-1 {
			out = queues[name]
		}

		pc.StartStage(name)
		logger.Info("started stage worker", "stage", name, "order", i)

		g.Go(func() error {
			return e.runStage(gctx, pc, stage, in, out, &resMu, results)
		})
	}

	err := g.Wait()
	duration := time.Since(start)

	if err != nil {
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			logger.Error("pipeline stage failed, cancelled remaining workers", "stage", stageErr.Stage, "err", stageErr.Err)
			return nil, err
		}

		logger.Info("pipeline execution was cancelled")
		return &ExecResult{
			Status:   "cancelled",
			Results:  results,
			Errors:   []string{"pipeline execution was cancelled"},
			Duration: duration,
		}, nil
	}

	logger.Info("all pipeline stages completed", "duration", duration)
	return &ExecResult{
		Status:   "completed",
		Results:  results,
		Duration: duration,
	}, nil
}

// runStage is one stage worker. The first stage (nil input channel) runs
// its Execute once and drains the result into its output channel item by
// item; every other stage loops over its input channel until the upstream
// worker closes it. A closed channel is the end-of-stream sentinel, and
// closing the output on every exit path keeps downstream workers from
// waiting on data that will never arrive. The terminal stage (nil output
// channel) only accumulates; it must never block on a queue nobody drains.
func (e *ConcurrentExecutor) runStage(
	ctx context.Context,
	pc *Context,
	stage Stage,
	in <-chan any,
	out chan<- any,
	resMu *sync.Mutex,
	results map[string]StageResult,
) error {
	name := stage.Name()
	start := time.Now()
	var collected []any

	if out != nil {
		defer close(out)
	}

	if in == nil {
		result, err := stage.Execute(ctx, pc, nil)
		if err != nil {
			pc.AddError(name, "failed to execute stage: "+err.Error(), nil)
			return &StageError{Pipeline: pc.Name, Stage: name, Err: err}
		}

		for _, item := range fanOutItems(result) {
			if out == nil {
				collected = append(collected, item)
				continue
			}
			select {
			case out <- item:
				collected = append(collected, item)
			case <-ctx.Done():
				return ctx.Err()
			case <-e.stop:
				return errExecutorStopped
			}
		}
	} else {
	loop:
		for {
			select {
			case item, ok := <-in:
				if !ok {
					break loop
				}

				result, err := stage.Execute(ctx, pc, item)
				if err != nil {
					pc.AddError(name, "failed to execute stage: "+err.Error(), nil)
					return &StageError{Pipeline: pc.Name, Stage: name, Err: err}
				}
				if result == nil {
					continue
				}
				if out == nil {
					collected = append(collected, result)
					continue
				}

				select {
				case out <- result:
					collected = append(collected, result)
				case <-ctx.Done():
					return ctx.Err()
				case <-e.stop:
					return errExecutorStopped
				}

			case <-ctx.Done():
				return ctx.Err()
			case <-e.stop:
				return errExecutorStopped
			}
		}
	}

	pc.EndStage(name, collected)

	resMu.Lock()
	results[name] = StageResult{
		Stage:       name,
		Status:      "completed",
		ResultCount: len(collected),
		Duration:    time.Since(start),
		Results:     collected,
	}
	resMu.Unlock()

	return nil
}

// Stop requests a cooperative shutdown: the shared stop channel is closed
// and the in-flight run's context is cancelled. Workers settle before
// Execute returns its "cancelled" result. Safe to call more than once and
// from any goroutine; the executor installs no OS signal handlers of its
// own.
func (e *ConcurrentExecutor) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()
}
