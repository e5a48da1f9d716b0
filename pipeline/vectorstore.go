package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/carepipe/config"
	"github.com/poiesic/carepipe/core"
	"github.com/poiesic/carepipe/vectorstore"
	vsbadger "github.com/poiesic/carepipe/vectorstore/badger"
)

const (
	defaultNamespacePrefix = "carepipe"
	defaultUploadAttempts  = 3
	defaultUploadBaseDelay = 500 * time.Millisecond
)

// VectorStoreSkipped marks a run where the vector store stage was invoked
// but disabled in configuration. Returned as the stage result so the
// summary shows the skip explicitly instead of a missing slot.
type VectorStoreSkipped struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// UploadSummary is the vector store stage result: how many chunks landed
// in each namespace.
type UploadSummary struct {
	Status          string         `json:"status"`
	Engine          string         `json:"engine"`
	NamespaceCounts map[string]int `json:"namespace_counts"`
	Total           int            `json:"total"`
}

// VectorStoreStage uploads embedded chunks to a vector store, partitioned
// into namespaces by content type so clinical and operational vectors
// never mix in one search space.
type VectorStoreStage struct {
	openStore func(engine string, cfg map[string]any) (vectorstore.Store, error)
}

var _ Stage = (*VectorStoreStage)(nil)

// NewVectorStoreStage creates the vector store stage with the default
// engine factory.
func NewVectorStoreStage() *VectorStoreStage {
	return &VectorStoreStage{openStore: openStoreEngine}
}

// openStoreEngine resolves the configured engine. "badger" is the only
// built-in; remote engines register by swapping the factory.
func openStoreEngine(engine string, cfg map[string]any) (vectorstore.Store, error) {
	switch engine {
	case "badger":
		return vsbadger.Open(
			config.String(cfg, "path", ""),
			config.Bool(cfg, "in_memory", false),
		)
	default:
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrUnsupportedEngine, engine)
	}
}

// Name implements Stage.
func (s *VectorStoreStage) Name() string { return StageVectorStore }

// Execute implements Stage. Uploads go namespace by namespace with
// exponential-backoff retry, since the store may sit behind a network for
// remote engines.
func (s *VectorStoreStage) Execute(ctx context.Context, pc *Context, input any) (any, error) {
	cfg := pc.GetStageConfig(StageVectorStore)
	if len(cfg) == 0 {
		return nil, ErrMissingVectorStoreConfig
	}

	if enabled, ok := cfg["enabled"].(bool); ok && !enabled {
		return &VectorStoreSkipped{
			Status: "skipped",
			Reason: "disabled in configuration",
		}, nil
	}

	if input == nil {
		input = pc.EmbeddedData
	}
	embedded := embeddedItems(input)
	if len(embedded) == 0 {
		return nil, fmt.Errorf("%w: no embedded chunks to upload", ErrNoInputData)
	}

	engine := config.String(cfg, "engine", "badger")
	store, err := s.openStore(engine, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	defer store.Close()

	prefix := config.String(cfg, "namespace_prefix", defaultNamespacePrefix)
	byNamespace := make(map[string][]core.EmbeddedChunk)
	for _, chunk := range embedded {
		ns := prefix + "-" + chunk.Type
		byNamespace[ns] = append(byNamespace[ns], chunk)
	}

	summary := &UploadSummary{
		Status:          "success",
		Engine:          engine,
		NamespaceCounts: make(map[string]int, len(byNamespace)),
	}

	for ns, chunks := range byNamespace {
		err := vectorstore.RetryWithBackoff(ctx, func() error {
			return store.Upsert(ctx, ns, chunks)
		}, defaultUploadAttempts, defaultUploadBaseDelay)
		if err != nil {
			return nil, fmt.Errorf("uploading %d chunks to namespace %s: %w", len(chunks), ns, err)
		}
		summary.NamespaceCounts[ns] = len(chunks)
		summary.Total += len(chunks)
	}

	return summary, nil
}

// embeddedItems coerces a stage input into embedded chunks, flattening
// one level of batching.
func embeddedItems(v any) []core.EmbeddedChunk {
	switch t := v.(type) {
	case nil:
		return nil
	case []core.EmbeddedChunk:
		return t
	case core.EmbeddedChunk:
		return []core.EmbeddedChunk{t}
	}

	var out []core.EmbeddedChunk
	for _, item := range fanOutItems(v) {
		switch t := item.(type) {
		case []core.EmbeddedChunk:
			out = append(out, t...)
		case core.EmbeddedChunk:
			out = append(out, t)
		}
	}
	return out
}
