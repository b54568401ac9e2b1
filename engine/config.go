package engine

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineConfig groups the tunables that govern admission and the KV pool.
// It is loadable from YAML (strict decoding) or populated directly by the
// CLI.
type EngineConfig struct {
	MaxNumBatchedTokens int64   `yaml:"max_num_batched_tokens"`
	MaxNumSeqs          int64   `yaml:"max_num_seqs"`
	MaxModelLen         int64   `yaml:"max_model_len"`
	KVCacheBlockSize    int64   `yaml:"kvcache_block_size"`
	NumKVCacheBlocks    int64   `yaml:"num_kvcache_blocks"` // -1 means "derive"
	GPUMemUtilization   float64 `yaml:"gpu_memory_utilization"`
	TensorParallelSize  int     `yaml:"tensor_parallel_size"`
	EnforceEager        bool    `yaml:"enforce_eager"`
	EOS                 int     `yaml:"eos"`

	// DedupIndexCapacity > 0 backs the hash->block_id index with a bounded
	// LRU instead of the default unbounded map. 0 (default) keeps the
	// unbounded map.
	DedupIndexCapacity int `yaml:"dedup_index_capacity"`
}

// DefaultEngineConfig returns the documented baseline configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxNumBatchedTokens: 16384,
		MaxNumSeqs:          512,
		MaxModelLen:         4096,
		KVCacheBlockSize:    256,
		NumKVCacheBlocks:    -1,
		GPUMemUtilization:   0.9,
		TensorParallelSize:  1,
		EnforceEager:        false,
		EOS:                 -1,
		DedupIndexCapacity:  0,
	}
}

// LoadEngineConfig reads and parses a YAML engine configuration file,
// starting from DefaultEngineConfig and overriding whatever the file sets.
// Unrecognized keys (typos) are rejected.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading engine config: %w", err)
	}
	cfg := DefaultEngineConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks for the fatal configuration mistakes that should abort
// startup before any engine state is built. It does not check
// model-directory or tokenizer presence — those belong to the CLI layer
// that actually loads them.
func (c *EngineConfig) Validate() error {
	if c.KVCacheBlockSize <= 0 || c.KVCacheBlockSize%256 != 0 {
		return &ConfigError{Field: "kvcache_block_size", Reason: "must be a positive multiple of 256"}
	}
	if c.MaxNumBatchedTokens < c.MaxModelLen {
		return &ConfigError{Field: "max_num_batched_tokens", Reason: "must be >= max_model_len"}
	}
	if c.MaxNumSeqs <= 0 {
		return &ConfigError{Field: "max_num_seqs", Reason: "must be positive"}
	}
	if c.TensorParallelSize < 1 || c.TensorParallelSize > 8 {
		return &ConfigError{Field: "tensor_parallel_size", Reason: "must be in [1, 8]"}
	}
	if c.GPUMemUtilization <= 0 || c.GPUMemUtilization > 1 {
		return &ConfigError{Field: "gpu_memory_utilization", Reason: "must be in (0, 1]"}
	}
	if c.NumKVCacheBlocks != -1 && c.NumKVCacheBlocks <= 0 {
		return &ConfigError{Field: "num_kvcache_blocks", Reason: "must be positive, or -1 to derive from available memory"}
	}
	return nil
}

// ResolveNumKVCacheBlocks returns NumKVCacheBlocks directly unless it is -1,
// in which case it derives a block count from available device memory and
// gpu_memory_utilization. availableBytes and bytesPerBlock are supplied by
// the caller; this package never queries a GPU directly.
func (c *EngineConfig) ResolveNumKVCacheBlocks(availableBytes, bytesPerBlock int64) int64 {
	if c.NumKVCacheBlocks != -1 {
		return c.NumKVCacheBlocks
	}
	if bytesPerBlock <= 0 {
		return 0
	}
	usable := float64(availableBytes) * c.GPUMemUtilization
	return int64(usable) / bytesPerBlock
}
