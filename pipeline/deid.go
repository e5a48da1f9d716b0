package pipeline

import (
	"context"
	"fmt"

	"github.com/poiesic/carepipe/core"
	"github.com/poiesic/carepipe/deid"
)

// DeidStage strips protected health information from ingested content
// before it can reach chunking, embedding, or any external service.
type DeidStage struct {
	newDeidentifier func(cfg map[string]any) (deid.Deidentifier, error)
}

var _ Stage = (*DeidStage)(nil)

// NewDeidStage creates the de-identification stage with the default
// deidentifier factory.
func NewDeidStage() *DeidStage {
	return &DeidStage{newDeidentifier: deid.New}
}

// Name implements Stage.
func (s *DeidStage) Name() string { return StageDeid }

// Execute implements Stage. Falls back to the ingestion result slot when
// no direct input is given. Items that fail redaction are dropped with a
// diagnostic rather than passed through unredacted; the stage fails only
// when every item failed.
func (s *DeidStage) Execute(ctx context.Context, pc *Context, input any) (any, error) {
	if input == nil {
		input = pc.IngestedData
	}
	items := contentItems(input)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no content to de-identify", ErrNoInputData)
	}

	deidentifier, err := s.newDeidentifier(pc.GetStageConfig(StageDeid))
	if err != nil {
		return nil, fmt.Errorf("building deidentifier: %w", err)
	}

	out := make([]core.Content, 0, len(items))
	for _, item := range items {
		redacted, err := deidentifier.Deidentify(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			pc.AddError(StageDeid, "failed to de-identify content: "+err.Error(), map[string]any{
				"content": item.Summary(),
			})
			continue
		}
		out = append(out, redacted)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("de-identification failed for all %d items", len(items))
	}
	return out, nil
}
