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

import (
	"errors"
	"fmt"
)

// Domain validation errors
var (
	// ErrInvalidKind indicates an item type the engine does not index.
	ErrInvalidKind = errors.New("invalid kind")

	// ErrEmptyQuery indicates a search query with no content.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrShortBuffer indicates a serialized value was truncated.
	ErrShortBuffer = errors.New("byte slice too short")

	// ErrCheckpointCorrupt indicates a checkpoint value that failed to
	// decode. Callers treat this as "start a new version", never as fatal.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")
)

// AdmissionError reports a rate-limit denial. It is retryable: the caller
// may repeat the request after RetryAfterSeconds.
type AdmissionError struct {
	Identity          string
	RetryAfterSeconds int
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission denied for %q: retry after %ds", e.Identity, e.RetryAfterSeconds)
}

// IsAdmissionDenied reports whether err is a rate-limit denial.
func IsAdmissionDenied(err error) bool {
	var ae *AdmissionError
	return errors.As(err, &ae)
}
