package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/carepipe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONIngesterClinical(t *testing.T) {
	ingester := NewJSONIngester()

	record := RawRecord{
		Source: "visit.json",
		Data: []byte(`{
			"patient_id": "p-100",
			"source_type": "fhir",
			"sections": {
				"allergies": "No known allergies.",
				"medications": "Lisinopril 10mg daily."
			},
			"metadata": {"encounter": "enc-1"}
		}`),
	}

	contents, err := ingester.Parse(record)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	clinical, ok := contents[0].(*core.ClinicalContent)
	require.True(t, ok)
	assert.Equal(t, "p-100", clinical.PatientID)
	assert.Equal(t, "fhir", clinical.SourceType)
	assert.Equal(t, "enc-1", clinical.Metadata["encounter"])
	require.Len(t, clinical.Sections, 2)

	// Sections come out sorted by name for stable chunk order.
	assert.Equal(t, "allergies", clinical.Sections[0].Name)
	assert.Equal(t, "medications", clinical.Sections[1].Name)
	assert.False(t, clinical.IngestedAt.IsZero())
}

func TestJSONIngesterOperational(t *testing.T) {
	ingester := NewJSONIngester()

	record := RawRecord{
		Source: "claim.json",
		Data: []byte(`{
			"transaction_type": "837",
			"organization_id": "org-9",
			"source_type": "x12",
			"entries": [
				{"id": "ln-1", "label": "claim line", "text": "Procedure 99213, billed 150.00"}
			]
		}`),
	}

	contents, err := ingester.Parse(record)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	operational, ok := contents[0].(*core.OperationalContent)
	require.True(t, ok)
	assert.Equal(t, "837", operational.TransactionType)
	assert.Equal(t, "org-9", operational.OrganizationID)
	require.Len(t, operational.Entries, 1)
	assert.Equal(t, "ln-1", operational.Entries[0].ID)
}

func TestJSONIngesterUnrecognizedShape(t *testing.T) {
	ingester := NewJSONIngester()

	_, err := ingester.Parse(RawRecord{Source: "x.json", Data: []byte(`{"foo": 1}`)})
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)
}

func TestJSONIngesterInvalidJSON(t *testing.T) {
	ingester := NewJSONIngester()

	_, err := ingester.Parse(RawRecord{Source: "x.json", Data: []byte(`{broken`)})
	assert.Error(t, err)
}

func TestJSONIngesterValidationFailure(t *testing.T) {
	ingester := NewJSONIngester()

	// Clinical shape with an empty section must fail validation.
	_, err := ingester.Parse(RawRecord{
		Source: "x.json",
		Data:   []byte(`{"patient_id": "p1", "sections": {"notes": ""}}`),
	})
	assert.ErrorIs(t, err, core.ErrInvalidClinicalContent)
}

func writeClinicalFile(t *testing.T, dir, name, patientID string) string {
	t.Helper()
	payload := map[string]any{
		"patient_id": patientID,
		"sections":   map[string]string{"notes": "Patient doing well."},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestFileAdapterSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeClinicalFile(t, dir, "one.json", "p1")

	adapter, err := NewFileAdapter(map[string]any{"path": path})
	require.NoError(t, err)

	out := make(chan RawRecord, 10)
	require.NoError(t, adapter.Run(context.Background(), out))
	close(out)

	var records []RawRecord
	for r := range out {
		records = append(records, r)
	}
	require.Len(t, records, 1)
	assert.Equal(t, path, records[0].Source)
}

func TestFileAdapterDirectory(t *testing.T) {
	dir := t.TempDir()
	writeClinicalFile(t, dir, "b.json", "p2")
	writeClinicalFile(t, dir, "a.json", "p1")

	adapter, err := NewFileAdapter(map[string]any{"path": dir})
	require.NoError(t, err)

	out := make(chan RawRecord, 10)
	require.NoError(t, adapter.Run(context.Background(), out))
	close(out)

	var sources []string
	for r := range out {
		sources = append(sources, filepath.Base(r.Source))
	}
	assert.Equal(t, []string{"a.json", "b.json"}, sources, "directory sweep is name ordered")
}

func TestFileAdapterNDJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.ndjson")
	content := `{"patient_id": "p1", "sections": {"notes": "first"}}

{"patient_id": "p2", "sections": {"notes": "second"}}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	adapter, err := NewFileAdapter(map[string]any{"path": path})
	require.NoError(t, err)

	out := make(chan RawRecord, 10)
	require.NoError(t, adapter.Run(context.Background(), out))
	close(out)

	var records []RawRecord
	for r := range out {
		records = append(records, r)
	}
	require.Len(t, records, 2, "blank lines are skipped")
	assert.Equal(t, path+"#1", records[0].Source)
	assert.Equal(t, path+"#3", records[1].Source)
}

func TestFileAdapterMissingPath(t *testing.T) {
	_, err := NewFileAdapter(map[string]any{})
	assert.ErrorIs(t, err, ErrMissingPath)
}

func TestEngineRunCollectsContentAndFailures(t *testing.T) {
	dir := t.TempDir()
	writeClinicalFile(t, dir, "good.json", "p1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("not json"), 0644))

	adapter, err := NewFileAdapter(map[string]any{"path": dir})
	require.NoError(t, err)

	engine := NewEngine(adapter, NewJSONIngester())
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Contents, 1)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Source, "bad.json")
}

func TestEngineRunAdapterFailure(t *testing.T) {
	adapter, err := NewFileAdapter(map[string]any{"path": "/definitely/not/here"})
	require.NoError(t, err)

	engine := NewEngine(adapter, NewJSONIngester())
	_, err = engine.Run(context.Background())
	assert.Error(t, err)
}

func TestNewAdapterUnsupported(t *testing.T) {
	_, err := NewAdapter(map[string]any{"type": "kafka"})
	assert.ErrorIs(t, err, ErrUnsupportedAdapter)
}

func TestNewIngesterUnsupported(t *testing.T) {
	_, err := NewIngester(map[string]any{"format": "hl7"})
	assert.ErrorIs(t, err, ErrUnsupportedIngester)
}
