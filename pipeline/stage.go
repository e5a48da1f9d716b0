package pipeline

import (
	"context"
	"reflect"
)

// Stage names. The candidate execution order is fixed; enablement is
// resolved per run from configuration.
const (
	StageIngestion   = "ingestion"
	StageDeid        = "deid"
	StageChunking    = "chunking"
	StageEmbedding   = "embedding"
	StageVectorStore = "vectorstore"
)

// stageOrder is the dependency-aware candidate order executors iterate.
var stageOrder = []string{StageIngestion, StageDeid, StageChunking, StageEmbedding, StageVectorStore}

// Stage is one named unit of pipeline work. Implementations are stateless
// with respect to the run: they hold only their own configuration and
// collaborators, never per-run state, so a single Stage instance is safe to
// share across many Context instances.
//
// Execute returns its result directly; it must not write the result into
// the context. The executor is responsible for calling EndStage.
type Stage interface {
	// Name returns the stage name used for configuration lookup, timing
	// records, and result slots.
	Name() string

	// Execute runs the stage. input is the previous stage's output, or nil,
	// in which case the stage falls back to the matching context slot.
	Execute(ctx context.Context, pc *Context, input any) (any, error)
}

// Registry maps stage names to shared Stage instances.
type Registry map[string]Stage

// NewRegistry builds a registry from the given stages, keyed by name.
func NewRegistry(stages ...Stage) Registry {
	reg := make(Registry, len(stages))
	for _, s := range stages {
		reg[s.Name()] = s
	}
	return reg
}

// DefaultRegistry returns the five standard stages with their default
// collaborator factories.
func DefaultRegistry() Registry {
	return NewRegistry(
		NewIngestionStage(),
		NewDeidStage(),
		NewChunkingStage(),
		NewEmbeddingStage(),
		NewVectorStoreStage(),
	)
}

// dependenciesFor returns the declared upstream dependencies of a stage.
// Chunking consumes deid output when deid is enabled, ingestion output
// otherwise. Computed fresh per call so executors never carry mutable
// dependency state between runs.
func dependenciesFor(name string, deidEnabled bool) []string {
	switch name {
	case StageIngestion:
		return nil
	case StageDeid:
		return []string{StageIngestion}
	case StageChunking:
		if deidEnabled {
			return []string{StageDeid}
		}
		return []string{StageIngestion}
	case StageEmbedding:
		return []string{StageChunking}
	case StageVectorStore:
		return []string{StageEmbedding}
	default:
		return nil
	}
}

// enabledStages computes the ordered list of enabled stages for this run
// and records a warning for every enabled stage whose dependency is not.
func enabledStages(pc *Context) []string {
	var enabled []string
	for _, name := range stageOrder {
		if pc.IsStageEnabled(name) {
			enabled = append(enabled, name)
		}
	}

	deidEnabled := containsStage(enabled, StageDeid)
	for _, name := range enabled {
		for _, dep := range dependenciesFor(name, deidEnabled) {
			if !containsStage(enabled, dep) {
				pc.AddWarning("executor", "stage '"+name+"' depends on '"+dep+"' which is not enabled", nil)
			}
		}
	}

	return enabled
}

func containsStage(stages []string, name string) bool {
	for _, s := range stages {
		if s == name {
			return true
		}
	}
	return false
}

// fanOutItems flattens a stage result for queue-based streaming: slices
// yield one element per item, anything else is a single item.
func fanOutItems(v any) []any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		items := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items = append(items, rv.Index(i).Interface())
		}
		return items
	}
	return []any{v}
}

// countItems reports how many items a stage result carries: the length for
// slices, 1 for any other non-nil value.
func countItems(v any) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		return rv.Len()
	}
	return 1
}
