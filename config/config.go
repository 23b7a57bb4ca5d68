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


// Package config holds the file-level configuration for the semsearch
// binary. Durations are plain integer seconds so the YAML stays
// toolable; component packages receive real time.Duration values from
// the engine.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the semsearch engine and binary.
type Config struct {
	Store       StoreConfig       `yaml:"store"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Indexing    IndexingConfig    `yaml:"indexing"`
	Cache       CacheConfig       `yaml:"cache"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// StoreConfig locates the shared key-value service.
type StoreConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// CatalogConfig locates the canonical record store.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig holds embedding service configuration.
type EmbeddingConfig struct {
	Host      string `yaml:"host"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// VectorIndexConfig holds the managed vector index connection. An empty
// endpoint disables the primary backend and queries run against the
// key-value fallback store alone.
type VectorIndexConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Index          string `yaml:"index"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RateLimitConfig holds admission quotas.
type RateLimitConfig struct {
	ShortWindowSeconds int `yaml:"short_window_seconds"`
	ShortQuota         int `yaml:"short_quota"`
	Burst              int `yaml:"burst"`
	LongWindowSeconds  int `yaml:"long_window_seconds"`
	LongQuota          int `yaml:"long_quota"`
	Workers            int `yaml:"workers"`
}

// IndexingConfig holds indexing pipeline settings.
type IndexingConfig struct {
	LockTTLSeconds      int     `yaml:"lock_ttl_seconds"`
	DefaultBatchSize    int     `yaml:"default_batch_size"`
	MaxBatchSize        int     `yaml:"max_batch_size"`
	MaxRetries          int     `yaml:"max_retries"`
	RetryDelayMillis    int     `yaml:"retry_delay_millis"`
	EmbedCallsPerSecond float64 `yaml:"embed_calls_per_second"`
	EmbedBurst          int     `yaml:"embed_burst"`
}

// CacheConfig holds query-cache settings.
type CacheConfig struct {
	TTLSeconds   int `yaml:"ttl_seconds"`
	WriteWorkers int `yaml:"write_workers"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "./semsearch_kv",
		},
		Catalog: CatalogConfig{
			Path: "./catalog.db",
		},
		Embedding: EmbeddingConfig{
			Host:      "http://localhost:11434/v1",
			Model:     "embeddinggemma",
			Dimension: 768,
		},
		VectorIndex: VectorIndexConfig{
			Endpoint:       "",
			Index:          "records",
			TimeoutSeconds: 30,
		},
		RateLimit: RateLimitConfig{
			ShortWindowSeconds: 60,
			ShortQuota:         10,
			Burst:              5,
			LongWindowSeconds:  3600,
			LongQuota:          100,
			Workers:            4,
		},
		Indexing: IndexingConfig{
			LockTTLSeconds:      60,
			DefaultBatchSize:    50,
			MaxBatchSize:        200,
			MaxRetries:          3,
			RetryDelayMillis:    1000,
			EmbedCallsPerSecond: 2,
			EmbedBurst:          1,
		},
		Cache: CacheConfig{
			TTLSeconds:   300,
			WriteWorkers: 2,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, overlaying its values on
// the defaults. A missing file returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
