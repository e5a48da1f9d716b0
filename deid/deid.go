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

// Package deid removes protected health information from canonical
// content before it reaches chunking and embedding.
package deid

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/carepipe/config"
	"github.com/poiesic/carepipe/core"
)

// ErrUnsupportedMethod is returned for an unknown de-identification method.
var ErrUnsupportedMethod = errors.New("unsupported de-identification method")

// ErrUnsupportedContent is returned when content is neither clinical nor
// operational.
var ErrUnsupportedContent = errors.New("unsupported content type for de-identification")

// Deidentifier removes identifying information from content. The input is
// never mutated; implementations return a redacted copy.
type Deidentifier interface {
	Deidentify(ctx context.Context, content core.Content) (core.Content, error)
}

// New creates a deidentifier from its configuration section. The "method"
// key selects the implementation; "safe_harbor" (regex redaction) is the
// only built-in.
func New(cfg map[string]any) (Deidentifier, error) {
	method := config.String(cfg, "method", "safe_harbor")
	switch method {
	case "safe_harbor":
		return NewRedactor(RedactorOptions{
			KeepPatientID: config.Bool(cfg, "keep_patient_id", false),
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
}
