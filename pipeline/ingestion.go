package pipeline

import (
	"context"
	"fmt"

	"github.com/poiesic/carepipe/core"
	"github.com/poiesic/carepipe/ingest"
)

// maxReportedFailures caps how many per-record parse failures become
// individual diagnostics; beyond that a single warning carries the count.
const maxReportedFailures = 10

// ingestRunner is the slice of ingest.Engine the stage needs; tests swap
// in a stub through the factory.
type ingestRunner interface {
	Run(ctx context.Context) (*ingest.Result, error)
}

// IngestionStage reads raw records through an adapter/ingester pair and
// produces the canonical content batch every downstream stage feeds on.
type IngestionStage struct {
	newEngine func(adapterCfg, ingesterCfg map[string]any) (ingestRunner, error)
}

var _ Stage = (*IngestionStage)(nil)

// NewIngestionStage creates the ingestion stage with the default engine
// factory.
func NewIngestionStage() *IngestionStage {
	return &IngestionStage{
		newEngine: func(adapterCfg, ingesterCfg map[string]any) (ingestRunner, error) {
			adapter, err := ingest.NewAdapter(adapterCfg)
			if err != nil {
				return nil, err
			}
			ingester, err := ingest.NewIngester(ingesterCfg)
			if err != nil {
				return nil, err
			}
			return ingest.NewEngine(adapter, ingester), nil
		},
	}
}

// Name implements Stage.
func (s *IngestionStage) Name() string { return StageIngestion }

// Execute implements Stage. Ingestion is the pipeline's source stage and
// ignores its input. Per-record parse failures become diagnostics; the
// stage only fails when the adapter fails or nothing at all was ingested.
func (s *IngestionStage) Execute(ctx context.Context, pc *Context, _ any) (any, error) {
	adapterCfg := pc.Config.Sub("adapter")
	if adapterCfg == nil {
		return nil, ErrMissingAdapterConfig
	}

	ingesterCfg := pc.GetStageConfig(StageIngestion)
	if len(ingesterCfg) == 0 {
		return nil, ErrMissingIngesterConfig
	}

	engine, err := s.newEngine(adapterCfg, ingesterCfg)
	if err != nil {
		return nil, fmt.Errorf("building ingestion engine: %w", err)
	}

	result, err := engine.Run(ctx)
	if err != nil {
		return nil, err
	}

	for i, failure := range result.Failures {
		if i == maxReportedFailures {
			pc.AddWarning(StageIngestion,
				fmt.Sprintf("%d additional records failed to parse", len(result.Failures)-maxReportedFailures), nil)
			break
		}
		pc.AddError(StageIngestion, "failed to parse record: "+failure.Err.Error(), map[string]any{
			"source": failure.Source,
		})
	}

	if len(result.Contents) == 0 {
		return nil, fmt.Errorf("%w: ingestion produced no content", ErrNoInputData)
	}

	return result.Contents, nil
}

// contentItems coerces a stage input into content models, flattening one
// level of batching so both whole-batch and per-item execution feed the
// same code path.
func contentItems(v any) []core.Content {
	switch t := v.(type) {
	case nil:
		return nil
	case []core.Content:
		return t
	case core.Content:
		return []core.Content{t}
	}

	var out []core.Content
	for _, item := range fanOutItems(v) {
		switch t := item.(type) {
		case []core.Content:
			out = append(out, t...)
		case core.Content:
			out = append(out, t)
		}
	}
	return out
}
