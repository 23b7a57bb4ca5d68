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


package sqlite

import "testing"

// OpenMemory opens an in-memory catalog for testing.
// It limits the pool to one connection, since each connection to
// ":memory:" would otherwise see a separate database, and registers
// t.Cleanup to close it.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("sqlite.OpenMemory: %v", err)
	}
	store.db.SetMaxOpenConns(1)
	t.Cleanup(func() { store.Close() })
	return store
}
