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
	"context"
	"fmt"
	"log/slog"
)

// Failover composes a primary and an optional secondary backend behind
// the Store interface. Reads prefer the primary and fall back to the
// secondary when the primary is unhealthy or errors. Writes go to the
// primary first and are retried on the secondary rather than dropped.
//
// Health checks are advisory: a backend that reports healthy may still
// fail the call that follows, in which case the call outcome wins.
type Failover struct {
	primary   Store
	secondary Store
	logger    *slog.Logger
}

var _ Store = (*Failover)(nil)

// NewFailover builds a failover composite. Either backend may be nil;
// requests route to whatever remains.
func NewFailover(primary, secondary Store) *Failover {
	return &Failover{
		primary:   primary,
		secondary: secondary,
		logger:    slog.Default().With("component", "vector-failover"),
	}
}

// Query runs the embedding against the preferred available backend and
// tags each match with the backend that produced it.
func (f *Failover) Query(ctx context.Context, embedding []float32, topK int) ([]Match, error) {
	if f.primary != nil {
		if f.primary.IsHealthy(ctx) {
			matches, err := f.primary.Query(ctx, embedding, topK)
			if err == nil {
				return tagSource(matches, SourcePrimary), nil
			}
			// The caller gave up; falling back would just burn time
			// on a request nobody is waiting for.
			if ctx.Err() != nil {
				return nil, err
			}
			f.logger.Warn("primary vector store query failed, falling back", "err", err)
		} else {
			f.logger.Warn("primary vector store unhealthy, falling back")
		}
	}

	if f.secondary != nil && f.secondary.IsHealthy(ctx) {
		matches, err := f.secondary.Query(ctx, embedding, topK)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoAvailableStore, err)
		}
		return tagSource(matches, SourceFallback), nil
	}

	return nil, ErrNoAvailableStore
}

// Upsert writes records to the primary, retrying on the secondary when
// the primary fails. Records are never silently dropped: if every
// configured backend rejects the batch the last error is returned.
func (f *Failover) Upsert(ctx context.Context, records []Record) error {
	if f.primary != nil {
		err := f.primary.Upsert(ctx, records)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if f.secondary == nil {
			return err
		}
		f.logger.Warn("primary vector store upsert failed, writing to secondary", "records", len(records), "err", err)
		if err2 := f.secondary.Upsert(ctx, records); err2 != nil {
			return fmt.Errorf("%w: %w", ErrNoAvailableStore, err2)
		}
		return nil
	}

	if f.secondary != nil {
		return f.secondary.Upsert(ctx, records)
	}

	return ErrNoAvailableStore
}

// Info reports the backend that would currently serve queries.
func (f *Failover) Info(ctx context.Context) (Info, error) {
	if f.primary != nil {
		info, err := f.primary.Info(ctx)
		if err == nil {
			return info, nil
		}
		if ctx.Err() != nil {
			return Info{}, err
		}
	}
	if f.secondary != nil {
		info, err := f.secondary.Info(ctx)
		if err == nil {
			return info, nil
		}
		return Info{}, fmt.Errorf("%w: %w", ErrNoAvailableStore, err)
	}
	return Info{}, ErrNoAvailableStore
}

// IsHealthy reports whether at least one backend is usable.
func (f *Failover) IsHealthy(ctx context.Context) bool {
	if f.primary != nil && f.primary.IsHealthy(ctx) {
		return true
	}
	return f.secondary != nil && f.secondary.IsHealthy(ctx)
}

func tagSource(matches []Match, src Source) []Match {
	for i := range matches {
		matches[i].Source = src
	}
	return matches
}
