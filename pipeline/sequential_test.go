package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/carepipe/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStage implements Stage with injectable behavior.
type stubStage struct {
	name    string
	execute func(ctx context.Context, pc *Context, input any) (any, error)
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Execute(ctx context.Context, pc *Context, input any) (any, error) {
	return s.execute(ctx, pc, input)
}

func passThrough(name string, result any) *stubStage {
	return &stubStage{
		name: name,
		execute: func(ctx context.Context, pc *Context, input any) (any, error) {
			return result, nil
		},
	}
}

// allStagesEnabled is a config that switches on every stage explicitly.
func allStagesEnabled() config.Config {
	return config.Config{
		"ingestion":   map[string]any{"enabled": true},
		"deid":        map[string]any{"enabled": true},
		"chunking":    map[string]any{"enabled": true},
		"embedding":   map[string]any{"enabled": true},
		"vectorstore": map[string]any{"enabled": true},
	}
}

func TestSequentialExecutesInDependencyOrder(t *testing.T) {
	pc := newTestContext(t, allStagesEnabled())

	var order []string
	reg := Registry{}
	for _, name := range []string{StageIngestion, StageDeid, StageChunking, StageEmbedding, StageVectorStore} {
		stageName := name
		reg[name] = &stubStage{
			name: stageName,
			execute: func(ctx context.Context, pc *Context, input any) (any, error) {
				order = append(order, stageName)
				return stageName + "-out", nil
			},
		}
	}

	exec := NewSequentialExecutor(WithSequentialStages(reg))
	result, err := exec.Execute(context.Background(), pc)
	require.NoError(t, err)

	assert.Equal(t, []string{StageIngestion, StageDeid, StageChunking, StageEmbedding, StageVectorStore}, order)
	assert.Equal(t, "vectorstore-out", result)
	assert.Equal(t, order, pc.ExecutedStages())
}

func TestSequentialHandsOutputToNextStage(t *testing.T) {
	cfg := config.Config{
		"ingestion": map[string]any{"enabled": true},
		"chunking":  map[string]any{"enabled": true},
	}
	pc := newTestContext(t, cfg)

	var chunkingInput any
	reg := NewRegistry(
		passThrough(StageIngestion, []string{"r1", "r2"}),
		&stubStage{
			name: StageChunking,
			execute: func(ctx context.Context, pc *Context, input any) (any, error) {
				chunkingInput = input
				return "chunks", nil
			},
		},
	)

	exec := NewSequentialExecutor(WithSequentialStages(reg))
	_, err := exec.Execute(context.Background(), pc)
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2"}, chunkingInput, "stage receives predecessor output as input")
}

func TestSequentialNoStagesEnabled(t *testing.T) {
	// Ingestion is always enabled, so disable it explicitly.
	pc := newTestContext(t, config.Config{
		"ingestion": map[string]any{"enabled": false},
	})

	exec := NewSequentialExecutor(WithSequentialStages(Registry{}))
	_, err := exec.Execute(context.Background(), pc)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoStagesEnabled)
}

func TestSequentialStageFailureAborts(t *testing.T) {
	pc := newTestContext(t, allStagesEnabled())

	boom := errors.New("deid blew up")
	executed := map[string]bool{}
	track := func(name string, result any, err error) *stubStage {
		return &stubStage{
			name: name,
			execute: func(ctx context.Context, pc *Context, input any) (any, error) {
				executed[name] = true
				return result, err
			},
		}
	}

	reg := NewRegistry(
		track(StageIngestion, "data", nil),
		track(StageDeid, nil, boom),
		track(StageChunking, "chunks", nil),
		track(StageEmbedding, "embedded", nil),
		track(StageVectorStore, "stored", nil),
	)

	exec := NewSequentialExecutor(WithSequentialStages(reg))
	_, err := exec.Execute(context.Background(), pc)

	require.Error(t, err)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageDeid, stageErr.Stage)
	assert.ErrorIs(t, err, boom)

	// The failing stage aborts everything downstream.
	assert.True(t, executed[StageIngestion])
	assert.True(t, executed[StageDeid])
	assert.False(t, executed[StageChunking])
	assert.False(t, executed[StageEmbedding])
	assert.False(t, executed[StageVectorStore])

	// Exactly one error, attributed to the failing stage; completed results
	// survive in the context.
	errs := pc.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, StageDeid, errs[0].Stage)
	assert.Equal(t, "data", pc.IngestedData)
	assert.Nil(t, pc.ChunkedData)
	assert.Nil(t, pc.EmbeddedData)
}

func TestSequentialMissingStageSkippedWithWarning(t *testing.T) {
	cfg := config.Config{
		"ingestion": map[string]any{"enabled": true},
		"chunking":  map[string]any{"enabled": true},
	}
	pc := newTestContext(t, cfg)

	var chunkingInput any
	reg := NewRegistry(
		// No ingestion stage registered.
		&stubStage{
			name: StageChunking,
			execute: func(ctx context.Context, pc *Context, input any) (any, error) {
				chunkingInput = input
				return "chunks", nil
			},
		},
	)

	exec := NewSequentialExecutor(WithSequentialStages(reg))
	result, err := exec.Execute(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, "chunks", result)
	assert.Nil(t, chunkingInput, "skipped stage contributes no result")

	var found bool
	for _, w := range pc.Warnings() {
		if w.Stage == "executor" && w.Message == "stage 'ingestion' not found, skipping" {
			found = true
		}
	}
	assert.True(t, found, "missing stage must produce a skip warning")
}

func TestSequentialDependencyWarning(t *testing.T) {
	// Embedding enabled without chunking.
	cfg := config.Config{
		"embedding": map[string]any{"enabled": true},
	}
	pc := newTestContext(t, cfg)

	reg := NewRegistry(
		passThrough(StageIngestion, "data"),
		passThrough(StageEmbedding, "embedded"),
	)

	exec := NewSequentialExecutor(WithSequentialStages(reg))
	_, err := exec.Execute(context.Background(), pc)
	require.NoError(t, err)

	var found bool
	for _, w := range pc.Warnings() {
		if w.Stage == "executor" && w.Message == "stage 'embedding' depends on 'chunking' which is not enabled" {
			found = true
		}
	}
	assert.True(t, found)
}
