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


// Package search composes the stages every semantic query passes through.
//
// The Searcher type chains, in order:
//   - Query-cache lookup (a hit answers immediately, quota untouched)
//   - Rate-limit admission per caller identity
//   - Query embedding and a search through the failover vector store
//   - Resolution of vector ids back to canonical catalog records
//   - Detached cache write-back
//
// Concurrent identical queries collapse into a single embedding and
// vector search; every caller still passes admission individually, so
// the flight shares work, never quota.
package search
