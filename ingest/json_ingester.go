package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/poiesic/carepipe/core"
)

// JSONIngester parses JSON records into canonical content. Records are
// probed by shape: a transaction_type or entries field marks operational
// content, a patient_id or sections field marks clinical content. Records
// matching neither shape fail with ErrUnrecognizedFormat.
type JSONIngester struct{}

// NewJSONIngester creates a JSON ingester.
func NewJSONIngester() *JSONIngester {
	return &JSONIngester{}
}

// jsonRecord is the superset of fields probed on incoming records.
type jsonRecord struct {
	ResourceType    string            `json:"resource_type"`
	PatientID       string            `json:"patient_id"`
	Sections        map[string]string `json:"sections"`
	TransactionType string            `json:"transaction_type"`
	OrganizationID  string            `json:"organization_id"`
	Entries         []jsonEntry       `json:"entries"`
	SourceType      string            `json:"source_type"`
	Metadata        map[string]string `json:"metadata"`
}

type jsonEntry struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Parse converts one raw JSON record into validated content.
func (g *JSONIngester) Parse(record RawRecord) ([]core.Content, error) {
	var rec jsonRecord
	if err := json.Unmarshal(record.Data, &rec); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", record.Source, err)
	}

	switch {
	case rec.TransactionType != "" || len(rec.Entries) > 0:
		content, err := rec.operational()
		if err != nil {
			return nil, err
		}
		return []core.Content{content}, nil

	case rec.PatientID != "" || len(rec.Sections) > 0:
		content, err := rec.clinical()
		if err != nil {
			return nil, err
		}
		return []core.Content{content}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedFormat, record.Source)
	}
}

func (r *jsonRecord) clinical() (*core.ClinicalContent, error) {
	// Map iteration order is random; sort section names so chunk order is
	// stable across runs.
	names := make([]string, 0, len(r.Sections))
	for name := range r.Sections {
		names = append(names, name)
	}
	sort.Strings(names)

	sections := make([]core.Section, 0, len(names))
	for _, name := range names {
		sections = append(sections, core.Section{Name: name, Text: r.Sections[name]})
	}

	content := &core.ClinicalContent{
		PatientID:  r.PatientID,
		Sections:   sections,
		SourceType: r.sourceType(),
		Metadata:   r.Metadata,
		IngestedAt: time.Now(),
	}
	if err := core.ValidateClinicalContent(content); err != nil {
		return nil, err
	}
	return content, nil
}

func (r *jsonRecord) operational() (*core.OperationalContent, error) {
	entries := make([]core.Entry, 0, len(r.Entries))
	for _, e := range r.Entries {
		entries = append(entries, core.Entry{ID: e.ID, Label: e.Label, Text: e.Text})
	}

	content := &core.OperationalContent{
		TransactionType: r.TransactionType,
		OrganizationID:  r.OrganizationID,
		Entries:         entries,
		SourceType:      r.sourceType(),
		Metadata:        r.Metadata,
		IngestedAt:      time.Now(),
	}
	if err := core.ValidateOperationalContent(content); err != nil {
		return nil, err
	}
	return content, nil
}

func (r *jsonRecord) sourceType() string {
	if r.SourceType != "" {
		return r.SourceType
	}
	if r.ResourceType != "" {
		return r.ResourceType
	}
	return "json"
}
