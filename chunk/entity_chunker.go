package chunk

import (
	"context"
	"fmt"
	"strconv"

	"github.com/poiesic/carepipe/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// EntityChunker splits operational content into one chunk per line-item
// entry. Entries are normally short; oversized entry text still goes
// through the recursive splitter.
type EntityChunker struct {
	splitter textsplitter.RecursiveCharacter
}

var _ Chunker = (*EntityChunker)(nil)

// NewEntityChunker creates an operational entity chunker.
func NewEntityChunker(chunkSize, chunkOverlap int) *EntityChunker {
	return &EntityChunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Chunk implements Chunker.
func (e *EntityChunker) Chunk(ctx context.Context, content core.Content) ([]core.Chunk, error) {
	operational, ok := content.(*core.OperationalContent)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedContent, content)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var chunks []core.Chunk
	for _, entry := range operational.Entries {
		pieces, err := e.splitter.SplitText(entry.Text)
		if err != nil {
			return nil, fmt.Errorf("splitting entry %q: %w", entry.ID, err)
		}

		for i, piece := range pieces {
			metadata := map[string]string{
				"transaction_type": operational.TransactionType,
				"source_type":      operational.SourceType,
			}
			if entry.ID != "" {
				metadata["entry_id"] = entry.ID
			}
			if operational.OrganizationID != "" {
				metadata["organization_id"] = operational.OrganizationID
			}
			if len(pieces) > 1 {
				metadata["part"] = strconv.Itoa(i + 1)
			}

			chunks = append(chunks, core.Chunk{
				ID:       core.ChunkIDFromContent(entry.ID + "\n" + piece),
				Type:     core.ContentKindOperational.String(),
				Name:     entry.Label,
				Content:  piece,
				Metadata: metadata,
			})
		}
	}

	return chunks, nil
}
