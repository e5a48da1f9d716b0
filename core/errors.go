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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidClinicalContent indicates a ClinicalContent failed validation.
	ErrInvalidClinicalContent = errors.New("invalid clinical content")

	// ErrInvalidOperationalContent indicates an OperationalContent failed validation.
	ErrInvalidOperationalContent = errors.New("invalid operational content")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyContent indicates a content body is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyChunkID indicates the chunk ID field is empty.
	ErrEmptyChunkID = errors.New("chunk id cannot be empty")

	// ErrInvalidContentKind indicates an invalid ContentKind value.
	ErrInvalidContentKind = errors.New("invalid content kind")
)
