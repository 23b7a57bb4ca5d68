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


package vectorstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAvailableStore is returned when neither the primary nor the
	// secondary backend can serve a request.
	ErrNoAvailableStore = errors.New("no available vector store")

	// ErrDimensionMismatch is returned when an embedding's length does
	// not match the store's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// BackendError wraps a failure from a concrete vector backend with the
// backend name and operation, so callers and logs can tell which side of
// a failover pair broke.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("vector backend %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
