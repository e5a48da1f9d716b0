package ingest

import (
	"context"
	"log/slog"

	"github.com/poiesic/carepipe/core"
)

// recordBuffer bounds the adapter-to-engine channel.
const recordBuffer = 64

// Failure is one record that could not be parsed. Failures are collected
// rather than aborting the run; a single bad record should not sink a
// batch.
type Failure struct {
	Source string
	Err    error
}

// Result is the outcome of one ingestion run.
type Result struct {
	Contents []core.Content
	Failures []Failure
}

// Engine pairs an adapter with an ingester: the adapter streams raw
// records, the engine parses each through the ingester and collects the
// content models.
type Engine struct {
	adapter  Adapter
	ingester Ingester
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets a custom logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an ingestion engine.
func NewEngine(adapter Adapter, ingester Ingester, opts ...EngineOption) *Engine {
	e := &Engine{
		adapter:  adapter,
		ingester: ingester,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives the adapter to completion and parses every record it emits.
// Per-record parse failures land in the result; only an adapter failure or
// cancellation is returned as an error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	records := make(chan RawRecord, recordBuffer)
	adapterErr := make(chan error, 1)

	go func() {
		defer close(records)
		adapterErr <- e.adapter.Run(ctx, records)
	}()

	result := &Result{}
	for record := range records {
		contents, err := e.ingester.Parse(record)
		if err != nil {
			e.logger.Warn("failed to parse record", "source", record.Source, "err", err)
			result.Failures = append(result.Failures, Failure{Source: record.Source, Err: err})
			continue
		}
		result.Contents = append(result.Contents, contents...)
	}

	if err := <-adapterErr; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.logger.Info("ingestion run finished",
		"contents", len(result.Contents),
		"failures", len(result.Failures),
	)
	return result, nil
}
