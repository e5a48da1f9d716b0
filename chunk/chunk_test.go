package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/poiesic/carepipe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionChunkerOneChunkPerShortSection(t *testing.T) {
	chunker := NewSectionChunker(1000, 100)

	content := &core.ClinicalContent{
		PatientID: "p1",
		Sections: []core.Section{
			{Name: "allergies", Text: "No known allergies."},
			{Name: "medications", Text: "Lisinopril 10mg daily."},
		},
		SourceType: "fhir",
	}

	chunks, err := chunker.Chunk(context.Background(), content)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "allergies", chunks[0].Name)
	assert.Equal(t, "clinical", chunks[0].Type)
	assert.Equal(t, "No known allergies.", chunks[0].Content)
	assert.Equal(t, "p1", chunks[0].Metadata["patient_id"])
	assert.Equal(t, "fhir", chunks[0].Metadata["source_type"])
	assert.NotEmpty(t, chunks[0].ID)
}

func TestSectionChunkerSplitsLongSections(t *testing.T) {
	chunker := NewSectionChunker(100, 20)

	content := &core.ClinicalContent{
		Sections: []core.Section{
			{Name: "history", Text: strings.Repeat("The patient reports feeling well. ", 30)},
		},
	}

	chunks, err := chunker.Chunk(context.Background(), content)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.Equal(t, "history", c.Name)
		assert.NotEmpty(t, c.Metadata["part"])
		assert.LessOrEqual(t, len(c.Content), 120, "chunks stay near the configured size")
	}
}

func TestSectionChunkerDeterministicIDs(t *testing.T) {
	chunker := NewSectionChunker(1000, 100)
	content := &core.ClinicalContent{
		Sections: []core.Section{{Name: "notes", Text: "stable text"}},
	}

	first, err := chunker.Chunk(context.Background(), content)
	require.NoError(t, err)
	second, err := chunker.Chunk(context.Background(), content)
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestSectionChunkerRejectsOperational(t *testing.T) {
	chunker := NewSectionChunker(1000, 100)
	_, err := chunker.Chunk(context.Background(), &core.OperationalContent{})
	assert.ErrorIs(t, err, ErrUnsupportedContent)
}

func TestEntityChunkerOneChunkPerEntry(t *testing.T) {
	chunker := NewEntityChunker(1000, 100)

	content := &core.OperationalContent{
		TransactionType: "837",
		OrganizationID:  "org-1",
		Entries: []core.Entry{
			{ID: "ln-1", Label: "claim line", Text: "Procedure 99213, billed 150.00"},
			{ID: "ln-2", Label: "claim line", Text: "Procedure 85025, billed 42.50"},
		},
		SourceType: "x12",
	}

	chunks, err := chunker.Chunk(context.Background(), content)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "operational", chunks[0].Type)
	assert.Equal(t, "claim line", chunks[0].Name)
	assert.Equal(t, "ln-1", chunks[0].Metadata["entry_id"])
	assert.Equal(t, "837", chunks[0].Metadata["transaction_type"])
	assert.Equal(t, "org-1", chunks[0].Metadata["organization_id"])
}

func TestAutoChunkerRoutesByKind(t *testing.T) {
	auto := New(map[string]any{"chunk_size": 500, "chunk_overlap": 50})

	clinical := &core.ClinicalContent{
		Sections: []core.Section{{Name: "notes", Text: "some notes"}},
	}
	operational := &core.OperationalContent{
		Entries: []core.Entry{{ID: "e1", Label: "line", Text: "line text"}},
	}

	clinicalChunks, err := auto.Chunk(context.Background(), clinical)
	require.NoError(t, err)
	require.Len(t, clinicalChunks, 1)
	assert.Equal(t, "clinical", clinicalChunks[0].Type)

	operationalChunks, err := auto.Chunk(context.Background(), operational)
	require.NoError(t, err)
	require.Len(t, operationalChunks, 1)
	assert.Equal(t, "operational", operationalChunks[0].Type)
}

type unknownKindContent struct{}

func (unknownKindContent) Kind() core.ContentKind { return core.ContentKind(0) }
func (unknownKindContent) Summary() string        { return "unknown content" }

func TestAutoChunkerRejectsUnknownKind(t *testing.T) {
	auto := New(map[string]any{})

	_, err := auto.Chunk(context.Background(), unknownKindContent{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedContent)
	assert.ErrorIs(t, err, core.ErrInvalidContentKind)
}

func TestAutoChunkerDefaults(t *testing.T) {
	auto := New(map[string]any{})
	require.NotNil(t, auto)

	content := &core.ClinicalContent{
		Sections: []core.Section{{Name: "notes", Text: "short"}},
	}
	chunks, err := auto.Chunk(context.Background(), content)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}
