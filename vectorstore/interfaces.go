package vectorstore

import (
	"context"

	"github.com/poiesic/carepipe/core"
)

// Match is one similarity search hit.
type Match struct {
	Chunk core.EmbeddedChunk `json:"chunk"`
	Score float32            `json:"score"`
}

// Store persists embedded chunks and answers similarity queries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert writes the chunks into the namespace, replacing any chunk
	// with the same identifier.
	Upsert(ctx context.Context, namespace string, chunks []core.EmbeddedChunk) error

	// Search returns up to limit chunks whose vectors score at least
	// minSimilarity against the query vector, best first.
	Search(ctx context.Context, namespace string, vector []float32, minSimilarity float32, limit int) ([]Match, error)

	// Count reports the number of chunks stored in the namespace.
	Count(ctx context.Context, namespace string) (int, error)

	// Close releases the underlying storage.
	Close() error
}
