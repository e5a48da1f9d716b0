// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/poiesic/carepipe/config"
)

// RunOptions carries the per-run switches a caller hands to the Runner.
// They map one to one onto CLI flags.
type RunOptions struct {
	// Concurrent selects the queue-based executor instead of the default
	// sequential one.
	Concurrent bool

	// OutputPath is the base path for exported results. Empty disables
	// export of the final result.
	OutputPath string

	// ShowSummary logs the run summary after execution.
	ShowSummary bool

	// PrintModel writes the final result as JSON to the runner's output
	// writer after execution.
	PrintModel bool

	// Pretty indents JSON output. Callers wanting compact output must set
	// it to false explicitly.
	Pretty bool

	// Verbose enables debug-level detail in the run summary logging.
	Verbose bool

	// QueueSize overrides the concurrent executor's channel capacity.
	// Zero keeps the default. Ignored for sequential runs.
	QueueSize int

	// Timeout bounds the whole run. Zero means no deadline.
	Timeout time.Duration
}

// RunResult is the uniform outcome shape for both executors. Success is
// false whenever the run failed, was cancelled, or recorded any error
// diagnostic, even if every stage technically returned.
type RunResult struct {
	Result   any          `json:"result,omitempty"`
	Summary  RunSummary   `json:"summary"`
	Success  bool         `json:"success"`
	Errors   []Diagnostic `json:"errors,omitempty"`
	Warnings []Diagnostic `json:"warnings,omitempty"`
}

// Runner wires a configuration and run options into a context, picks an
// executor, and normalizes the outcome. It is the single entry point the
// CLI uses; library callers may drive executors directly when they need
// custom context setup.
type Runner struct {
	stages Registry
	logger *slog.Logger
	out    io.Writer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerStages overrides the stage registry used for both executors.
func WithRunnerStages(reg Registry) RunnerOption {
	return func(r *Runner) {
		if reg != nil {
			r.stages = reg
		}
	}
}

// WithRunnerLogger sets a custom logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunnerOutput redirects printed model output, normally stdout.
func WithRunnerOutput(w io.Writer) RunnerOption {
	return func(r *Runner) {
		if w != nil {
			r.out = w
		}
	}
}

// NewRunner creates a runner over the default stage registry.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		stages: DefaultRegistry(),
		logger: slog.Default(),
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one named pipeline against the given configuration. The
// returned RunResult is always populated, including on failure, so callers
// can inspect partial results and diagnostics; the error reports what made
// the run unsuccessful.
func (r *Runner) Run(ctx context.Context, name string, cfg config.Config, opts RunOptions) (*RunResult, error) {
	pc := NewContext(name, cfg,
		WithOutputPath(opts.OutputPath),
		WithShowSummary(opts.ShowSummary),
		WithPrintModel(opts.PrintModel),
		WithPretty(opts.Pretty),
		WithVerbose(opts.Verbose),
		WithContextLogger(r.logger),
	)
	defer func() {
		if err := pc.Close(); err != nil {
			r.logger.Warn("closing pipeline context", "pipeline", name, "err", err)
		}
	}()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	result, runErr := r.execute(ctx, pc, opts)

	summary := pc.GetSummary()
	errs := pc.Errors()
	warns := pc.Warnings()

	runResult := &RunResult{
		Result:   result,
		Summary:  summary,
		Success:  runErr == nil && len(errs) == 0,
		Errors:   errs,
		Warnings: warns,
	}

	if execResult, ok := result.(*ExecResult); ok && execResult.Status == "cancelled" {
		runResult.Success = false
	}

	r.finish(pc, runResult, opts)

	if runErr != nil {
		return runResult, fmt.Errorf("running pipeline %s: %w", name, runErr)
	}
	return runResult, nil
}

func (r *Runner) execute(ctx context.Context, pc *Context, opts RunOptions) (any, error) {
	if opts.Concurrent {
		execOpts := []ConcurrentOption{
			WithConcurrentStages(r.stages),
			WithConcurrentLogger(r.logger),
		}
		if opts.QueueSize > 0 {
			execOpts = append(execOpts, WithQueueSize(opts.QueueSize))
		}
		execResult, err := NewConcurrentExecutor(execOpts...).Execute(ctx, pc)
		if err != nil {
			return nil, err
		}
		return execResult, nil
	}

	exec := NewSequentialExecutor(
		WithSequentialStages(r.stages),
		WithSequentialLogger(r.logger),
	)
	return exec.Execute(ctx, pc)
}

// finish handles the post-run reporting paths: summary logging, printing
// the final model, and exporting results to the configured output path.
func (r *Runner) finish(pc *Context, runResult *RunResult, opts RunOptions) {
	summary := runResult.Summary

	if opts.ShowSummary {
		r.logger.Info("pipeline run summary",
			"pipeline", summary.Name,
			"run", shortID(summary.PipelineID),
			"success", runResult.Success,
			"duration_seconds", summary.TotalDuration,
			"stages", summary.ExecutedStages,
			"errors", summary.ErrorCount,
			"warnings", summary.WarningCount,
		)
		if opts.Verbose {
			for stage, seconds := range summary.StageTimings {
				r.logger.Debug("stage timing", "stage", stage, "duration_seconds", seconds)
			}
		}
	}

	if opts.PrintModel && runResult.Result != nil {
		fmt.Fprintln(r.out, string(pc.encodeJSON(runResult.Result, opts.Pretty)))
	}

	if opts.OutputPath != "" && runResult.Result != nil {
		pc.ExportResults(runResult.Result, "", "json")
	}
}
