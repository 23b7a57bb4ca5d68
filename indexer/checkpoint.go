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


package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/semsearch/core"
	"github.com/poiesic/semsearch/kv"
)

const checkpointKeyPrefix = "index:checkpoint:"

func checkpointKey(kind core.Kind) string {
	return checkpointKeyPrefix + string(kind)
}

// loadCheckpoint reads the persisted checkpoint for kind. It returns
// nil with no error when none exists, and core.ErrCheckpointCorrupt
// when an entry exists but does not decode into a plausible checkpoint.
func loadCheckpoint(ctx context.Context, kvs kv.Store, kind core.Kind) (*core.Checkpoint, error) {
	bs, err := kvs.Get(ctx, checkpointKey(kind))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	cp, _, err := core.CheckpointMUS.Unmarshal(bs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCheckpointCorrupt, err)
	}
	if cp.Kind != kind {
		return nil, fmt.Errorf("%w: checkpoint for %q stored under key for %q",
			core.ErrCheckpointCorrupt, cp.Kind, kind)
	}
	if cp.Status.String() == "unknown" {
		return nil, fmt.Errorf("%w: status %d out of range", core.ErrCheckpointCorrupt, cp.Status)
	}
	return &cp, nil
}

// saveCheckpoint persists cp under its kind's key. Checkpoints never
// expire; version history is carried forward, not deleted.
func saveCheckpoint(ctx context.Context, kvs kv.Store, cp core.Checkpoint) error {
	bs := make([]byte, core.CheckpointMUS.Size(cp))
	core.CheckpointMUS.Marshal(cp, bs)
	if err := kvs.Set(ctx, checkpointKey(cp.Kind), bs, 0); err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	return nil
}
