package chunk

import (
	"context"
	"fmt"
	"strconv"

	"github.com/poiesic/carepipe/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// SectionChunker splits clinical content into one or more chunks per
// narrative section. Long sections are split recursively with overlap so
// no chunk exceeds the configured size.
type SectionChunker struct {
	splitter textsplitter.RecursiveCharacter
}

var _ Chunker = (*SectionChunker)(nil)

// NewSectionChunker creates a clinical section chunker.
func NewSectionChunker(chunkSize, chunkOverlap int) *SectionChunker {
	return &SectionChunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Chunk implements Chunker. Chunk identifiers are content-derived, so
// re-chunking identical input yields identical IDs.
func (s *SectionChunker) Chunk(ctx context.Context, content core.Content) ([]core.Chunk, error) {
	clinical, ok := content.(*core.ClinicalContent)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedContent, content)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var chunks []core.Chunk
	for _, section := range clinical.Sections {
		pieces, err := s.splitter.SplitText(section.Text)
		if err != nil {
			return nil, fmt.Errorf("splitting section %q: %w", section.Name, err)
		}

		for i, piece := range pieces {
			metadata := map[string]string{
				"section":     section.Name,
				"source_type": clinical.SourceType,
			}
			if clinical.PatientID != "" {
				metadata["patient_id"] = clinical.PatientID
			}
			if len(pieces) > 1 {
				metadata["part"] = strconv.Itoa(i + 1)
			}

			chunks = append(chunks, core.Chunk{
				ID:       core.ChunkIDFromContent(section.Name + "\n" + piece),
				Type:     core.ContentKindClinical.String(),
				Name:     section.Name,
				Content:  piece,
				Metadata: metadata,
			})
		}
	}

	return chunks, nil
}
