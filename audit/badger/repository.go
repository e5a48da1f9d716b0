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

// Package badger implements audit.TrackingRepository on an embedded
// BadgerDB instance. Run records and events are stored as JSON values;
// event keys carry a monotonic sequence so trails read back in order.
package badger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/carepipe/audit"
)

const (
	runPrefix   = "audit/run/"
	eventPrefix = "audit/event/"
	eventSeqKey = "audit/seq/event"

	seqBandwidth = 100
)

// ErrRunNotFound is returned when a run identifier has no tracked record.
var ErrRunNotFound = errors.New("pipeline run not found")

// Repository persists audit data in BadgerDB.
type Repository struct {
	db       *badger.DB
	eventSeq *badger.Sequence
	logger   *slog.Logger
}

var _ audit.TrackingRepository = (*Repository)(nil)

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

// Open opens (or creates) the audit database at the specified path.
func Open(filePath string, inMemory bool) (*Repository, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if filePath == "" {
			return nil, errors.New("audit database path is required")
		}
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

	seq, err := db.GetSequence([]byte(eventSeqKey), seqBandwidth)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{
		db:       db,
		eventSeq: seq,
		logger:   slog.Default(),
	}, nil
}

// StartPipelineRun registers a new run record in "running" status.
func (r *Repository) StartPipelineRun(runID, name string) error {
	run := audit.PipelineRun{
		ID:        runID,
		Name:      name,
		Status:    "running",
		StartedAt: time.Now(),
	}
	return r.db.Update(func(tx *badger.Txn) error {
		return writeJSON(tx, runKey(runID), run)
	})
}

// CompletePipelineRun seals a run record with its terminal status.
func (r *Repository) CompletePipelineRun(runID, status string) error {
	return r.db.Update(func(tx *badger.Txn) error {
		run, err := readRun(tx, runID)
		if err != nil {
			return err
		}
		run.Status = status
		run.CompletedAt = time.Now()
		return writeJSON(tx, runKey(runID), run)
	})
}

// RecordEvent appends one event to its run's trail.
func (r *Repository) RecordEvent(event audit.Event) error {
	seq, err := r.eventSeq.Next()
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%s/%012d", eventPrefix, event.PipelineRunID, seq)
	return r.db.Update(func(tx *badger.Txn) error {
		return writeJSON(tx, key, event)
	})
}

// GetPipelineRun loads a tracked run record.
func (r *Repository) GetPipelineRun(runID string) (*audit.PipelineRun, error) {
	var run *audit.PipelineRun
	err := r.db.View(func(tx *badger.Txn) error {
		var err error
		run, err = readRun(tx, runID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListPipelineRuns returns every tracked run record.
func (r *Repository) ListPipelineRuns() ([]audit.PipelineRun, error) {
	var runs []audit.PipelineRun

	err := r.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var run audit.PipelineRun
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			})
			if err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// EventsForRun returns a run's audit events in record order.
func (r *Repository) EventsForRun(runID string) ([]audit.Event, error) {
	var events []audit.Event

	err := r.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(eventPrefix + runID + "/")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var event audit.Event
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Close releases the event sequence and the database.
func (r *Repository) Close() error {
	if err := r.eventSeq.Release(); err != nil {
		r.logger.Warn("failed to release audit event sequence", "err", err)
	}
	return r.db.Close()
}

func runKey(runID string) string {
	return runPrefix + runID
}

func writeJSON(tx *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Set([]byte(key), data)
}

func readRun(tx *badger.Txn, runID string) (*audit.PipelineRun, error) {
	item, err := tx.Get([]byte(runKey(runID)))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var run audit.PipelineRun
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}
