package deid

import (
	"context"
	"fmt"
	"regexp"

	"github.com/poiesic/carepipe/core"
)

// redactionPattern pairs a PHI category with its matcher. Replacement
// tokens are bracketed category names so downstream text remains readable.
type redactionPattern struct {
	name string
	re   *regexp.Regexp
}

// Safe Harbor categories expressible as text patterns. Names, addresses,
// and other free-text identifiers need NLP-based recognition and are out
// of reach for pattern redaction.
var defaultPatterns = []redactionPattern{
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"MRN", regexp.MustCompile(`\b(?:MRN|mrn)[:\s#]*\d{5,12}\b`)},
	{"PHONE", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`)},
	{"EMAIL", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"DATE", regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b|\b\d{4}-\d{2}-\d{2}\b`)},
}

// RedactorOptions configures a Redactor.
type RedactorOptions struct {
	// KeepPatientID preserves the original patient identifier instead of
	// replacing it with a deterministic pseudonym.
	KeepPatientID bool
}

// Redactor is a pattern-based Safe Harbor deidentifier. Identifiers in
// narrative text are replaced with bracketed category tokens; patient and
// organization identifiers become deterministic pseudonyms so records for
// the same subject still correlate after redaction.
type Redactor struct {
	patterns      []redactionPattern
	keepPatientID bool
}

var _ Deidentifier = (*Redactor)(nil)

// NewRedactor creates a redactor with the default pattern set.
func NewRedactor(opts RedactorOptions) *Redactor {
	return &Redactor{
		patterns:      defaultPatterns,
		keepPatientID: opts.KeepPatientID,
	}
}

// Deidentify returns a redacted copy of the content.
func (r *Redactor) Deidentify(ctx context.Context, content core.Content) (core.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch c := content.(type) {
	case *core.ClinicalContent:
		return r.deidentifyClinical(c), nil
	case *core.OperationalContent:
		return r.deidentifyOperational(c), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedContent, content)
	}
}

func (r *Redactor) deidentifyClinical(c *core.ClinicalContent) *core.ClinicalContent {
	out := &core.ClinicalContent{
		PatientID:  c.PatientID,
		Sections:   make([]core.Section, len(c.Sections)),
		SourceType: c.SourceType,
		Metadata:   redactMap(r, c.Metadata),
		IngestedAt: c.IngestedAt,
	}
	if !r.keepPatientID && c.PatientID != "" {
		out.PatientID = pseudonym("patient", c.PatientID)
	}
	for i, s := range c.Sections {
		out.Sections[i] = core.Section{Name: s.Name, Text: r.redact(s.Text)}
	}
	return out
}

func (r *Redactor) deidentifyOperational(c *core.OperationalContent) *core.OperationalContent {
	out := &core.OperationalContent{
		TransactionType: c.TransactionType,
		OrganizationID:  c.OrganizationID,
		Entries:         make([]core.Entry, len(c.Entries)),
		SourceType:      c.SourceType,
		Metadata:        redactMap(r, c.Metadata),
		IngestedAt:      c.IngestedAt,
	}
	if c.OrganizationID != "" {
		out.OrganizationID = pseudonym("org", c.OrganizationID)
	}
	for i, e := range c.Entries {
		out.Entries[i] = core.Entry{ID: e.ID, Label: e.Label, Text: r.redact(e.Text)}
	}
	return out
}

// redact applies every pattern to the text.
func (r *Redactor) redact(text string) string {
	for _, p := range r.patterns {
		text = p.re.ReplaceAllString(text, "["+p.name+"]")
	}
	return text
}

func redactMap(r *Redactor, m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = r.redact(v)
	}
	return out
}

// pseudonym derives a stable surrogate identifier from the original via
// content hashing, so the same subject maps to the same surrogate.
func pseudonym(kind, id string) string {
	return kind + "-" + core.ChunkIDFromContent(kind+":"+id)
}
