package pipeline

import (
	"context"
	"fmt"

	"github.com/poiesic/carepipe/chunk"
	"github.com/poiesic/carepipe/config"
	"github.com/poiesic/carepipe/core"
)

// ChunkingStage carves canonical content into embeddable chunks, routing
// each item to the clinical or operational chunker by content kind.
type ChunkingStage struct {
	newChunker func(cfg map[string]any) chunk.Chunker
}

var _ Stage = (*ChunkingStage)(nil)

// NewChunkingStage creates the chunking stage with the default
// auto-routing chunker factory.
func NewChunkingStage() *ChunkingStage {
	return &ChunkingStage{
		newChunker: func(cfg map[string]any) chunk.Chunker {
			return chunk.New(cfg)
		},
	}
}

// Name implements Stage.
func (s *ChunkingStage) Name() string { return StageChunking }

// Execute implements Stage. Without direct input the stage prefers the
// de-identified result slot over the raw ingestion slot, so redaction is
// never silently bypassed when deid ran. Items that fail to chunk are
// dropped with a diagnostic.
func (s *ChunkingStage) Execute(ctx context.Context, pc *Context, input any) (any, error) {
	if input == nil {
		input = pc.DeidentifiedData
	}
	if input == nil {
		input = pc.IngestedData
	}
	items := contentItems(input)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no content to chunk", ErrNoInputData)
	}

	cfg := pc.GetStageConfig(StageChunking)
	chunker := s.newChunker(cfg)

	var chunks []core.Chunk
	failed := 0
	for _, item := range items {
		pieces, err := chunker.Chunk(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			pc.AddError(StageChunking, "failed to chunk content: "+err.Error(), map[string]any{
				"content": item.Summary(),
			})
			continue
		}
		chunks = append(chunks, pieces...)
	}

	if len(chunks) == 0 && failed > 0 {
		return nil, fmt.Errorf("chunking failed for all %d items", len(items))
	}

	if target := config.String(cfg, "export_chunks_to", ""); target != "" {
		pc.ExportResults(chunks, StageChunking, target)
	}

	return chunks, nil
}

// chunkItems coerces a stage input into chunks, flattening one level of
// batching.
func chunkItems(v any) []core.Chunk {
	switch t := v.(type) {
	case nil:
		return nil
	case []core.Chunk:
		return t
	case core.Chunk:
		return []core.Chunk{t}
	}

	var out []core.Chunk
	for _, item := range fanOutItems(v) {
		switch t := item.(type) {
		case []core.Chunk:
			out = append(out, t...)
		case core.Chunk:
			out = append(out, t)
		}
	}
	return out
}
