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


package ratelimit

import (
	"errors"
	"time"
)

// Config holds configuration for the sliding-window rate limiter.
type Config struct {
	// ShortWindow is the length of the short admission window.
	// Default: 1 minute
	ShortWindow time.Duration

	// ShortQuota is the number of requests allowed per short window
	// before the burst allowance is consumed.
	// Default: 10
	ShortQuota int

	// Burst is the extra allowance on top of ShortQuota absorbing
	// request spikes within one short window.
	// Default: 5
	Burst int

	// LongWindow is the length of the long admission window.
	// Default: 1 hour
	LongWindow time.Duration

	// LongQuota is the number of requests allowed per long window.
	// Default: 100
	LongQuota int

	// Workers is the size of the pool that applies counter increments
	// off the admission path.
	// Default: 4
	Workers int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithShortWindow sets the short window length and quota.
func WithShortWindow(window time.Duration, quota int) ConfigOption {
	return func(c *Config) {
		c.ShortWindow = window
		c.ShortQuota = quota
	}
}

// WithBurst sets the burst allowance on the short window.
func WithBurst(burst int) ConfigOption {
	return func(c *Config) {
		c.Burst = burst
	}
}

// WithLongWindow sets the long window length and quota.
func WithLongWindow(window time.Duration, quota int) ConfigOption {
	return func(c *Config) {
		c.LongWindow = window
		c.LongQuota = quota
	}
}

// WithWorkers sets the increment pool size.
func WithWorkers(workers int) ConfigOption {
	return func(c *Config) {
		c.Workers = workers
	}
}

// DefaultConfig returns a Config with defaults sized for a small
// deployment protecting a finite inference budget.
func DefaultConfig() *Config {
	return &Config{
		ShortWindow: time.Minute,
		ShortQuota:  10,
		Burst:       5,
		LongWindow:  time.Hour,
		LongQuota:   100,
		Workers:     4,
	}
}

// NewConfig creates a Config with the default values and applies the
// provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Validate checks that the configuration is valid and complete.
func (c *Config) Validate() error {
	if c.ShortWindow < time.Second {
		return errors.New("ratelimit config: ShortWindow must be at least one second")
	}
	if c.LongWindow < time.Second {
		return errors.New("ratelimit config: LongWindow must be at least one second")
	}
	if c.LongWindow <= c.ShortWindow {
		return errors.New("ratelimit config: LongWindow must be longer than ShortWindow")
	}
	if c.ShortQuota <= 0 {
		return errors.New("ratelimit config: ShortQuota must be positive")
	}
	if c.Burst < 0 {
		return errors.New("ratelimit config: Burst must not be negative")
	}
	if c.LongQuota <= 0 {
		return errors.New("ratelimit config: LongQuota must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("ratelimit config: Workers must be positive")
	}
	return nil
}
