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
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/carepipe/ai"
	aimock "github.com/poiesic/carepipe/ai/mock"
	aiopenai "github.com/poiesic/carepipe/ai/openai"
	"github.com/poiesic/carepipe/config"
	"github.com/poiesic/carepipe/core"
)

const (
	defaultEmbedBatchSize = 20
	defaultEmbedWorkers   = 4
)

// EmbeddingStage turns chunks into embedded chunks by batching their text
// through an embedding service on a bounded worker pool.
type EmbeddingStage struct {
	newEmbedder func(cfg map[string]any) (ai.Embedder, error)
}

var _ Stage = (*EmbeddingStage)(nil)

// NewEmbeddingStage creates the embedding stage with the default embedder
// factory.
func NewEmbeddingStage() *EmbeddingStage {
	return &EmbeddingStage{newEmbedder: embedderFromConfig}
}

// embedderFromConfig builds an embedder from the stage configuration. The
// "type" key selects the implementation: "mock" for the deterministic test
// embedder, anything else for the OpenAI-compatible client.
func embedderFromConfig(cfg map[string]any) (ai.Embedder, error) {
	if config.String(cfg, "type", "openai") == "mock" {
		return aimock.NewMockEmbedder(), nil
	}

	aiCfg := ai.NewConfig(
		ai.WithHost(config.String(cfg, "host", "")),
		ai.WithModel(config.String(cfg, "model", "")),
		ai.WithAPIKey(config.String(cfg, "api_key", "")),
	)
	if aiCfg.Host == "" || aiCfg.Model == "" {
		defaults := ai.DefaultConfig()
		if aiCfg.Host == "" {
			aiCfg.Host = defaults.Host
		}
		if aiCfg.Model == "" {
			aiCfg.Model = defaults.Model
		}
	}
	return aiopenai.NewEmbedder(aiCfg)
}

// Name implements Stage.
func (s *EmbeddingStage) Name() string { return StageEmbedding }

// Execute implements Stage. Chunks are embedded in fixed-size batches on a
// worker pool; a failed batch loses only its own chunks and the stage
// fails only when nothing could be embedded at all. Output order matches
// input order regardless of which worker finished first.
func (s *EmbeddingStage) Execute(ctx context.Context, pc *Context, input any) (any, error) {
	if input == nil {
		input = pc.ChunkedData
	}
	all := chunkItems(input)
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: no chunks to embed", ErrNoInputData)
	}

	// Malformed chunks are dropped with a diagnostic rather than sent to
	// the embedding service; an empty-content chunk would still consume a
	// vector and pollute the store.
	chunks := make([]core.Chunk, 0, len(all))
	for i := range all {
		if err := core.ValidateChunk(&all[i]); err != nil {
			pc.AddError(StageEmbedding, "invalid chunk: "+err.Error(), map[string]any{
				"chunk": all[i].ID,
			})
			continue
		}
		chunks = append(chunks, all[i])
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("all %d chunks failed validation", len(all))
	}

	cfg := pc.GetStageConfig(StageEmbedding)
	embedder, err := s.newEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}

	batchSize := config.Int(cfg, "batch_size", defaultEmbedBatchSize)
	if batchSize < 1 {
		batchSize = defaultEmbedBatchSize
	}
	workers := config.Int(cfg, "workers", defaultEmbedWorkers)
	if workers < 1 {
		workers = defaultEmbedWorkers
	}

	batches := batchChunks(chunks, batchSize)
	results := make([][]core.EmbeddedChunk, len(batches))

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating embedding worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range batches {
		wg.Add(1)
		batchIdx := i
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[batchIdx] = s.embedBatch(ctx, pc, embedder, batches[batchIdx], batchIdx)
		})
		if submitErr != nil {
			wg.Done()
			pc.AddError(StageEmbedding, "failed to submit embedding batch: "+submitErr.Error(), map[string]any{
				"batch": batchIdx,
			})
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var embedded []core.EmbeddedChunk
	for _, batch := range results {
		embedded = append(embedded, batch...)
	}
	if len(embedded) == 0 {
		return nil, fmt.Errorf("embedding failed for all %d chunks", len(chunks))
	}

	if target := config.String(cfg, "export_embeddings_to", ""); target != "" {
		pc.ExportResults(embedded, StageEmbedding, target)
	}

	return embedded, nil
}

// embedBatch embeds one batch, returning nil on failure after recording
// the diagnostic. Only the batch's own chunks are lost.
func (s *EmbeddingStage) embedBatch(ctx context.Context, pc *Context, embedder ai.Embedder, batch []core.Chunk, batchIdx int) []core.EmbeddedChunk {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vectors, err := embedder.EmbedTexts(ctx, texts)
	if err != nil {
		if ctx.Err() == nil {
			pc.AddError(StageEmbedding, "failed to embed batch: "+err.Error(), map[string]any{
				"batch":  batchIdx,
				"chunks": len(batch),
			})
		}
		return nil
	}
	if len(vectors) != len(batch) {
		pc.AddError(StageEmbedding,
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(batch)),
			map[string]any{"batch": batchIdx})
		return nil
	}

	embedded := make([]core.EmbeddedChunk, len(batch))
	for i, c := range batch {
		embedded[i] = core.EmbeddedChunk{Chunk: c, Vector: vectors[i]}
	}
	return embedded
}

// batchChunks splits chunks into consecutive batches of at most size.
func batchChunks(chunks []core.Chunk, size int) [][]core.Chunk {
	var batches [][]core.Chunk
	for start := 0; start < len(chunks); start += size {
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}
	return batches
}
