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

import "fmt"

// ValidateClinicalContent validates a ClinicalContent according to domain rules.
//
// Validation rules:
//   - at least one section must be present
//   - no section may have empty text
//
// NOT validated (populated later or optional):
//   - PatientID (may be absent for de-identified data)
//   - Metadata
func ValidateClinicalContent(content *ClinicalContent) error {
	if content == nil {
		return fmt.Errorf("%w: content is nil", ErrInvalidClinicalContent)
	}

	if len(content.Sections) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidClinicalContent, ErrEmptyContent)
	}

	for _, section := range content.Sections {
		if section.Text == "" {
			return fmt.Errorf("%w: section %q: %w", ErrInvalidClinicalContent, section.Name, ErrEmptyContent)
		}
	}

	return nil
}

// ValidateOperationalContent validates an OperationalContent according to domain rules.
//
// Validation rules:
//   - at least one entry must be present
//   - no entry may have empty text
func ValidateOperationalContent(content *OperationalContent) error {
	if content == nil {
		return fmt.Errorf("%w: content is nil", ErrInvalidOperationalContent)
	}

	if len(content.Entries) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidOperationalContent, ErrEmptyContent)
	}

	for _, entry := range content.Entries {
		if entry.Text == "" {
			return fmt.Errorf("%w: entry %q: %w", ErrInvalidOperationalContent, entry.ID, ErrEmptyContent)
		}
	}

	return nil
}

// ValidateChunk validates a Chunk before embedding or vector store upload.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyChunkID)
	}

	if chunk.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	return nil
}

// ValidateContentKind validates that a ContentKind has a valid value.
func ValidateContentKind(kind ContentKind) error {
	if kind != ContentKindClinical && kind != ContentKindOperational {
		return fmt.Errorf("%w: value %d", ErrInvalidContentKind, kind)
	}
	return nil
}
