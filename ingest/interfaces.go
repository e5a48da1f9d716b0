package ingest

import (
	"context"

	"github.com/poiesic/carepipe/core"
)

// RawRecord is one unit of raw input read from a source, before parsing.
type RawRecord struct {
	// Source identifies where the record came from, for diagnostics.
	Source string

	// Data is the raw record payload.
	Data []byte
}

// Adapter reads raw records from a data source and streams them into the
// channel. Implementations must respect context cancellation and must not
// close the channel; the engine owns it.
type Adapter interface {
	Run(ctx context.Context, out chan<- RawRecord) error
}

// Ingester parses one raw record into validated content models. A single
// record may expand into several content items.
type Ingester interface {
	Parse(record RawRecord) ([]core.Content, error)
}
