// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package chunk carves canonical content into embeddable text chunks.
// Clinical content chunks along its narrative sections, operational
// content along its line-item entries; the auto chunker routes by content
// kind so callers never have to.
package chunk

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/carepipe/config"
	"github.com/poiesic/carepipe/core"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// ErrUnsupportedContent is returned when a chunker receives content it
// cannot handle.
var ErrUnsupportedContent = errors.New("unsupported content type for chunking")

// Chunker splits one content item into embeddable chunks.
type Chunker interface {
	Chunk(ctx context.Context, content core.Content) ([]core.Chunk, error)
}

// AutoChunker routes content to the clinical or operational chunker based
// on its kind.
type AutoChunker struct {
	clinical    Chunker
	operational Chunker
}

var _ Chunker = (*AutoChunker)(nil)

// New creates an auto-routing chunker from its configuration section.
// Recognized keys: "chunk_size", "chunk_overlap".
func New(cfg map[string]any) *AutoChunker {
	size := config.Int(cfg, "chunk_size", defaultChunkSize)
	overlap := config.Int(cfg, "chunk_overlap", defaultChunkOverlap)

	return &AutoChunker{
		clinical:    NewSectionChunker(size, overlap),
		operational: NewEntityChunker(size, overlap),
	}
}

// Chunk implements Chunker.
func (a *AutoChunker) Chunk(ctx context.Context, content core.Content) ([]core.Chunk, error) {
	if err := core.ValidateContentKind(content.Kind()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedContent, err)
	}
	if content.Kind() == core.ContentKindClinical {
		return a.clinical.Chunk(ctx, content)
	}
	return a.operational.Chunk(ctx, content)
}
