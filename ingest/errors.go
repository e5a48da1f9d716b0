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

import "errors"

var (
	// ErrUnsupportedAdapter is returned for an unknown adapter type.
	ErrUnsupportedAdapter = errors.New("unsupported adapter type")

	// ErrUnsupportedIngester is returned for an unknown ingester type.
	ErrUnsupportedIngester = errors.New("unsupported ingester type")

	// ErrMissingPath is returned when the file adapter has no path configured.
	ErrMissingPath = errors.New("file adapter requires a path")

	// ErrUnrecognizedFormat is returned when a record matches neither the
	// clinical nor the operational shape.
	ErrUnrecognizedFormat = errors.New("unrecognized record format")
)
