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

package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/poiesic/carepipe/config"
)

const defaultPollInterval = 5 * time.Second

// FileAdapter reads records from a file or every file in a directory.
// Files with a .ndjson or .jsonl extension fan out one record per line;
// anything else is a single record. In continuous mode the adapter keeps
// polling the directory and emits files it has not seen before, until the
// context is cancelled.
type FileAdapter struct {
	path         string
	continuous   bool
	pollInterval time.Duration
	logger       *slog.Logger

	seen map[string]struct{}
}

// NewFileAdapter creates a file adapter from its configuration section.
// Recognized keys: "path" (required), "continuous", "poll_interval".
func NewFileAdapter(cfg map[string]any) (*FileAdapter, error) {
	path := config.String(cfg, "path", "")
	if path == "" {
		return nil, ErrMissingPath
	}

	return &FileAdapter{
		path:         path,
		continuous:   config.Bool(cfg, "continuous", false),
		pollInterval: config.Duration(cfg, "poll_interval", defaultPollInterval),
		logger:       slog.Default().With("adapter", "file"),
		seen:         make(map[string]struct{}),
	}, nil
}

// Run emits the records found under the configured path. One-shot mode
// returns after a single sweep; continuous mode sweeps on every poll tick
// until cancelled, returning nil on cancellation since a requested stop is
// not a failure.
func (a *FileAdapter) Run(ctx context.Context, out chan<- RawRecord) error {
	if err := a.sweep(ctx, out); err != nil {
		return err
	}
	if !a.continuous {
		return nil
	}

	a.logger.Info("watching for new files", "path", a.path, "interval", a.pollInterval)
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.sweep(ctx, out); err != nil {
				return err
			}
		}
	}
}

// sweep emits every not-yet-seen file under the path.
func (a *FileAdapter) sweep(ctx context.Context, out chan<- RawRecord) error {
	info, err := os.Stat(a.path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", a.path, err)
	}

	if !info.IsDir() {
		return a.emitFile(ctx, a.path, out)
	}

	entries, err := os.ReadDir(a.path)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", a.path, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := a.emitFile(ctx, filepath.Join(a.path, name), out); err != nil {
			return err
		}
	}
	return nil
}

func (a *FileAdapter) emitFile(ctx context.Context, path string, out chan<- RawRecord) error {
	if _, ok := a.seen[path]; ok {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	a.seen[path] = struct{}{}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".ndjson" || ext == ".jsonl" {
		return a.emitLines(ctx, path, data, out)
	}

	return send(ctx, out, RawRecord{Source: path, Data: data})
}

// emitLines splits line-delimited content into one record per non-empty
// line, tagging each with its line number.
func (a *FileAdapter) emitLines(ctx context.Context, path string, data []byte, out chan<- RawRecord) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		record := RawRecord{
			Source: fmt.Sprintf("%s#%d", path, line),
			Data:   append([]byte(nil), text...),
		}
		if err := send(ctx, out, record); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func send(ctx context.Context, out chan<- RawRecord, record RawRecord) error {
	select {
	case out <- record:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
