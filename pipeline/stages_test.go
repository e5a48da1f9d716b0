package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/carepipe/config"
	"github.com/poiesic/carepipe/core"
	"github.com/poiesic/carepipe/ingest"
	"github.com/poiesic/carepipe/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine implements ingestRunner for testing.
type stubEngine struct {
	result *ingest.Result
	err    error
}

func (s *stubEngine) Run(ctx context.Context) (*ingest.Result, error) {
	return s.result, s.err
}

func clinicalFixture(patientID string) *core.ClinicalContent {
	return &core.ClinicalContent{
		PatientID: patientID,
		Sections: []core.Section{
			{Name: "allergies", Text: "No known allergies."},
		},
		SourceType: "fhir",
	}
}

func TestIngestionStageMissingAdapterConfig(t *testing.T) {
	pc := newTestContext(t, config.Config{
		"ingestion": map[string]any{"format": "json"},
	})

	stage := NewIngestionStage()
	_, err := stage.Execute(context.Background(), pc, nil)
	assert.ErrorIs(t, err, ErrMissingAdapterConfig)
}

func TestIngestionStageMissingIngesterConfig(t *testing.T) {
	pc := newTestContext(t, config.Config{
		"adapter": map[string]any{"type": "file", "path": "/tmp/x"},
	})

	stage := NewIngestionStage()
	_, err := stage.Execute(context.Background(), pc, nil)
	assert.ErrorIs(t, err, ErrMissingIngesterConfig)
}

func TestIngestionStageCollectsContentAndFailures(t *testing.T) {
	pc := newTestContext(t, config.Config{
		"adapter":   map[string]any{"type": "file", "path": "/tmp/x"},
		"ingestion": map[string]any{"format": "json"},
	})

	contents := []core.Content{clinicalFixture("p1"), clinicalFixture("p2")}
	stage := &IngestionStage{
		newEngine: func(adapterCfg, ingesterCfg map[string]any) (ingestRunner, error) {
			return &stubEngine{result: &ingest.Result{
				Contents: contents,
				Failures: []ingest.Failure{{Source: "bad.json", Err: errors.New("not json")}},
			}}, nil
		},
	}

	result, err := stage.Execute(context.Background(), pc, nil)
	require.NoError(t, err)
	assert.Equal(t, contents, result)

	errs := pc.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, StageIngestion, errs[0].Stage)
	assert.Equal(t, "bad.json", errs[0].Details["source"])
}

func TestIngestionStageEmptyResult(t *testing.T) {
	pc := newTestContext(t, config.Config{
		"adapter":   map[string]any{"type": "file", "path": "/tmp/x"},
		"ingestion": map[string]any{"format": "json"},
	})

	stage := &IngestionStage{
		newEngine: func(adapterCfg, ingesterCfg map[string]any) (ingestRunner, error) {
			return &stubEngine{result: &ingest.Result{}}, nil
		},
	}

	_, err := stage.Execute(context.Background(), pc, nil)
	assert.ErrorIs(t, err, ErrNoInputData)
}

func TestDeidStageRedactsBatch(t *testing.T) {
	pc := newTestContext(t, config.Config{})

	content := clinicalFixture("patient-123")
	content.Sections[0].Text = "SSN 123-45-6789 on file."

	stage := NewDeidStage()
	result, err := stage.Execute(context.Background(), pc, []core.Content{content})
	require.NoError(t, err)

	out, ok := result.([]core.Content)
	require.True(t, ok)
	require.Len(t, out, 1)

	redacted, ok := out[0].(*core.ClinicalContent)
	require.True(t, ok)
	assert.NotContains(t, redacted.Sections[0].Text, "123-45-6789")
	assert.Contains(t, redacted.Sections[0].Text, "[SSN]")
	assert.NotEqual(t, "patient-123", redacted.PatientID, "patient id becomes a pseudonym")

	// Input is untouched.
	assert.Contains(t, content.Sections[0].Text, "123-45-6789")
}

func TestDeidStageFallsBackToIngestedData(t *testing.T) {
	pc := newTestContext(t, config.Config{})
	pc.IngestedData = []core.Content{clinicalFixture("p1")}

	stage := NewDeidStage()
	result, err := stage.Execute(context.Background(), pc, nil)
	require.NoError(t, err)
	assert.Len(t, result.([]core.Content), 1)
}

func TestDeidStageNoInput(t *testing.T) {
	pc := newTestContext(t, config.Config{})

	stage := NewDeidStage()
	_, err := stage.Execute(context.Background(), pc, nil)
	assert.ErrorIs(t, err, ErrNoInputData)
}

func TestChunkingStagePrefersDeidentifiedData(t *testing.T) {
	pc := newTestContext(t, config.Config{})

	raw := clinicalFixture("p1")
	raw.Sections[0].Text = "raw text with identifiers"
	redacted := clinicalFixture("p1")
	redacted.Sections[0].Text = "redacted text"

	pc.IngestedData = []core.Content{raw}
	pc.DeidentifiedData = []core.Content{redacted}

	stage := NewChunkingStage()
	result, err := stage.Execute(context.Background(), pc, nil)
	require.NoError(t, err)

	chunks := result.([]core.Chunk)
	require.Len(t, chunks, 1)
	assert.Equal(t, "redacted text", chunks[0].Content)
}

func TestChunkingStageRoutesByKind(t *testing.T) {
	pc := newTestContext(t, config.Config{})

	operational := &core.OperationalContent{
		TransactionType: "837",
		Entries: []core.Entry{
			{ID: "ln-1", Label: "claim line", Text: "Procedure 99213, billed 150.00"},
		},
		SourceType: "x12",
	}

	stage := NewChunkingStage()
	result, err := stage.Execute(context.Background(), pc, []core.Content{clinicalFixture("p1"), operational})
	require.NoError(t, err)

	chunks := result.([]core.Chunk)
	require.Len(t, chunks, 2)

	types := []string{chunks[0].Type, chunks[1].Type}
	assert.Contains(t, types, "clinical")
	assert.Contains(t, types, "operational")
}

func TestEmbeddingStageWithMockEmbedder(t *testing.T) {
	pc := newTestContext(t, config.Config{
		"embedding": map[string]any{"type": "mock", "batch_size": 2},
	})

	chunks := []core.Chunk{
		{ID: "a", Content: "first chunk"},
		{ID: "b", Content: "second chunk"},
		{ID: "c", Content: "third chunk"},
	}

	stage := NewEmbeddingStage()
	result, err := stage.Execute(context.Background(), pc, chunks)
	require.NoError(t, err)

	embedded := result.([]core.EmbeddedChunk)
	require.Len(t, embedded, 3)

	// Order is preserved across batches, and vectors are deterministic.
	assert.Equal(t, "a", embedded[0].ID)
	assert.Equal(t, "b", embedded[1].ID)
	assert.Equal(t, "c", embedded[2].ID)
	for _, e := range embedded {
		assert.Len(t, e.Vector, 384)
	}
	assert.Empty(t, pc.Errors())
}

func TestEmbeddingStageDropsInvalidChunks(t *testing.T) {
	pc := newTestContext(t, config.Config{
		"embedding": map[string]any{"type": "mock"},
	})

	chunks := []core.Chunk{
		{ID: "a", Content: "good chunk"},
		{ID: "", Content: "missing id"},
		{ID: "c", Content: ""},
	}

	stage := NewEmbeddingStage()
	result, err := stage.Execute(context.Background(), pc, chunks)
	require.NoError(t, err)

	embedded := result.([]core.EmbeddedChunk)
	require.Len(t, embedded, 1)
	assert.Equal(t, "a", embedded[0].ID)

	errs := pc.Errors()
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.Equal(t, StageEmbedding, e.Stage)
		assert.Contains(t, e.Message, "invalid chunk")
	}
}

func TestEmbeddingStageAllChunksInvalid(t *testing.T) {
	pc := newTestContext(t, config.Config{
		"embedding": map[string]any{"type": "mock"},
	})

	stage := NewEmbeddingStage()
	_, err := stage.Execute(context.Background(), pc, []core.Chunk{
		{ID: "a", Content: ""},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoInputData, "invalid input is not missing input")
}

func TestEmbeddingStageNoChunks(t *testing.T) {
	pc := newTestContext(t, config.Config{
		"embedding": map[string]any{"type": "mock"},
	})

	stage := NewEmbeddingStage()
	_, err := stage.Execute(context.Background(), pc, nil)
	assert.ErrorIs(t, err, ErrNoInputData)
}

// stubStore implements vectorstore.Store for testing.
type stubStore struct {
	upserts map[string][]core.EmbeddedChunk
	err     error
	closed  bool
}

func (s *stubStore) Upsert(ctx context.Context, namespace string, chunks []core.EmbeddedChunk) error {
	if s.err != nil {
		return s.err
	}
	if s.upserts == nil {
		s.upserts = make(map[string][]core.EmbeddedChunk)
	}
	s.upserts[namespace] = append(s.upserts[namespace], chunks...)
	return nil
}

func (s *stubStore) Search(ctx context.Context, namespace string, vector []float32, minSimilarity float32, limit int) ([]vectorstore.Match, error) {
	return nil, nil
}

func (s *stubStore) Count(ctx context.Context, namespace string) (int, error) {
	return len(s.upserts[namespace]), nil
}

func (s *stubStore) Close() error {
	s.closed = true
	return nil
}

func TestVectorStoreStageMissingConfig(t *testing.T) {
	pc := newTestContext(t, config.Config{})

	stage := NewVectorStoreStage()
	_, err := stage.Execute(context.Background(), pc, nil)
	assert.ErrorIs(t, err, ErrMissingVectorStoreConfig)
}

func TestVectorStoreStageDisabledReturnsSkipMarker(t *testing.T) {
	pc := newTestContext(t, config.Config{
		"vectorstore": map[string]any{"enabled": false, "engine": "badger"},
	})

	stage := NewVectorStoreStage()
	result, err := stage.Execute(context.Background(), pc, nil)
	require.NoError(t, err)

	skipped, ok := result.(*VectorStoreSkipped)
	require.True(t, ok)
	assert.Equal(t, "skipped", skipped.Status)
	assert.Equal(t, "disabled in configuration", skipped.Reason)
}

func TestVectorStoreStageUploadsByNamespace(t *testing.T) {
	pc := newTestContext(t, config.Config{
		"vectorstore": map[string]any{"engine": "badger", "namespace_prefix": "testpipe"},
	})

	store := &stubStore{}
	stage := &VectorStoreStage{
		openStore: func(engine string, cfg map[string]any) (vectorstore.Store, error) {
			return store, nil
		},
	}

	embedded := []core.EmbeddedChunk{
		{Chunk: core.Chunk{ID: "a", Type: "clinical", Content: "x"}, Vector: []float32{1}},
		{Chunk: core.Chunk{ID: "b", Type: "operational", Content: "y"}, Vector: []float32{1}},
		{Chunk: core.Chunk{ID: "c", Type: "clinical", Content: "z"}, Vector: []float32{1}},
	}

	result, err := stage.Execute(context.Background(), pc, embedded)
	require.NoError(t, err)

	summary, ok := result.(*UploadSummary)
	require.True(t, ok)
	assert.Equal(t, "success", summary.Status)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.NamespaceCounts["testpipe-clinical"])
	assert.Equal(t, 1, summary.NamespaceCounts["testpipe-operational"])
	assert.Len(t, store.upserts["testpipe-clinical"], 2)
	assert.True(t, store.closed)
}

func TestVectorStoreStageNoEmbeddedData(t *testing.T) {
	pc := newTestContext(t, config.Config{
		"vectorstore": map[string]any{"engine": "badger"},
	})

	stage := NewVectorStoreStage()
	_, err := stage.Execute(context.Background(), pc, nil)
	assert.ErrorIs(t, err, ErrNoInputData)
}
