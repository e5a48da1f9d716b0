package core

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkIDFromContent generates a deterministic hex chunk identifier from text.
// Chunk IDs are strings so they can carry through export files and vector
// store namespaces unchanged.
func ChunkIDFromContent(text string) string {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// ContentKind classifies canonical content for chunker auto-routing.
type ContentKind int

const (
	// ContentKindClinical represents patient-centric clinical data.
	ContentKindClinical ContentKind = iota + 1
	// ContentKindOperational represents administrative/operational data
	// such as claims and billing transactions.
	ContentKindOperational
)

// String returns the lowercase name used in chunk metadata and logs.
func (k ContentKind) String() string {
	switch k {
	case ContentKindClinical:
		return "clinical"
	case ContentKindOperational:
		return "operational"
	default:
		return "unknown"
	}
}

// Content is the minimal capability the pipeline requires from canonical
// records produced by ingestion. Downstream stages only need a loggable
// description and a kind for chunker routing, not the full schema.
type Content interface {
	// Summary returns a short human-readable description for logging.
	Summary() string

	// Kind classifies the content as clinical or operational.
	Kind() ContentKind
}

// Section is a named block of narrative text within clinical content.
type Section struct {
	Name string
	Text string
}

// ClinicalContent is the normalized, format-agnostic clinical record
// produced by ingesters from source formats (FHIR, HL7v2, CDA).
type ClinicalContent struct {
	PatientID  string
	Sections   []Section
	SourceType string            // Originating format (e.g. "fhir", "hl7v2")
	Metadata   map[string]string // Optional metadata (e.g. encounter id, facility)
	IngestedAt time.Time
}

// Kind implements Content.
func (c *ClinicalContent) Kind() ContentKind { return ContentKindClinical }

// Summary implements Content.
func (c *ClinicalContent) Summary() string {
	return fmt.Sprintf("clinical content: patient=%s sections=%d", c.PatientID, len(c.Sections))
}

// Entry is a single operational line item (claim line, charge, payment).
type Entry struct {
	ID    string
	Label string
	Text  string
}

// OperationalContent is the normalized operational/administrative record
// produced by ingesters from transactional source formats (X12 EDI).
type OperationalContent struct {
	TransactionType string // e.g. "837", "835"
	OrganizationID  string
	Entries         []Entry
	SourceType      string
	Metadata        map[string]string
	IngestedAt      time.Time
}

// Kind implements Content.
func (c *OperationalContent) Kind() ContentKind { return ContentKindOperational }

// Summary implements Content.
func (c *OperationalContent) Summary() string {
	return fmt.Sprintf("operational content: transaction=%s entries=%d", c.TransactionType, len(c.Entries))
}

// Chunk is one embeddable unit of text carved out of canonical content.
type Chunk struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"` // "clinical" or "operational"
	Name     string            `json:"name"` // section or entity label
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// EmbeddedChunk is a chunk enriched with its embedding vector.
type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"vector"`
}
