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


package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStagesEnabled is returned when the configuration enables no pipeline stages.
	ErrNoStagesEnabled = errors.New("no pipeline stages are enabled")

	// ErrMissingAdapterConfig is returned when the ingestion stage has no adapter configuration.
	ErrMissingAdapterConfig = errors.New("missing adapter configuration")

	// ErrMissingIngesterConfig is returned when the ingestion stage has no ingester configuration.
	ErrMissingIngesterConfig = errors.New("missing ingester configuration")

	// ErrMissingVectorStoreConfig is returned when the vectorstore stage has no configuration.
	ErrMissingVectorStoreConfig = errors.New("missing vectorstore configuration")

	// ErrNoInputData is returned by a stage when no input was passed and the
	// context holds no upstream result to fall back on.
	ErrNoInputData = errors.New("no input data available")
)

// StageError wraps a fatal stage failure with the pipeline and stage that
// produced it. The sequential executor aborts the chain with a StageError;
// the concurrent executor cancels sibling workers when one surfaces.
type StageError struct {
	Pipeline string
	Stage    string
	Err      error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline %s: stage %s: %v", e.Pipeline, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StageError) Unwrap() error {
	return e.Err
}
