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

// Package badger implements vectorstore.Store on an embedded BadgerDB
// instance. Chunks are stored as JSON values keyed by namespace and chunk
// ID; similarity search is a full namespace scan with dot-product scoring,
// which is fine at embedded scale.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/carepipe/core"
	"github.com/poiesic/carepipe/vectorstore"
)

const chunkPrefix = "vs/chunk/"

// Store persists embedded chunks in BadgerDB.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ vectorstore.Store = (*Store)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens (or creates) a vector store database at the specified path.
func Open(filePath string, inMemory bool) (*Store, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	opts.Logger = &badgerLoggerAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:     db,
		logger: slog.Default().With("component", "badger-vectorstore"),
	}, nil
}

// Upsert implements vectorstore.Store.
func (s *Store) Upsert(ctx context.Context, namespace string, chunks []core.EmbeddedChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Badger transactions have a size ceiling; write in batches.
	batch := s.db.NewWriteBatch()
	defer batch.Cancel()

	for _, chunk := range chunks {
		if len(chunk.Vector) == 0 {
			return fmt.Errorf("%w: chunk %s", vectorstore.ErrMissingVector, chunk.ID)
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("encoding chunk %s: %w", chunk.ID, err)
		}
		if err := batch.Set([]byte(chunkKey(namespace, chunk.ID)), data); err != nil {
			return err
		}
	}

	if err := batch.Flush(); err != nil {
		return err
	}

	s.logger.Debug("upserted chunks", "namespace", namespace, "count", len(chunks))
	return nil
}

// Search implements vectorstore.Store. Scoring is the dot product, which
// equals cosine similarity for normalized vectors.
func (s *Store) Search(ctx context.Context, namespace string, vector []float32, minSimilarity float32, limit int) ([]vectorstore.Match, error) {
	var matches []vectorstore.Match

	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix + namespace + "/")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var chunk core.EmbeddedChunk
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &chunk)
			})
			if err != nil {
				return err
			}
			if len(chunk.Vector) == 0 {
				continue
			}

			score := dotProduct(vector, chunk.Vector)
			if score >= minSimilarity {
				matches = append(matches, vectorstore.Match{Chunk: chunk, Score: score})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b vectorstore.Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Count implements vectorstore.Store.
func (s *Store) Count(ctx context.Context, namespace string) (int, error) {
	count := 0
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix + namespace + "/")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func chunkKey(namespace, chunkID string) string {
	return chunkPrefix + namespace + "/" + chunkID
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
