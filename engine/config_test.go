package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEngineConfig_Validates(t *testing.T) {
	// GIVEN the documented defaults
	cfg := DefaultEngineConfig()

	// THEN they pass validation as-is
	assert.NoError(t, cfg.Validate())
}

func TestEngineConfig_Validate_RejectsBlockSizeNotMultipleOf256(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.KVCacheBlockSize = 200

	err := cfg.Validate()

	require.Error(t, err)
	var configErr *ConfigError
	assert.ErrorAs(t, err, &configErr)
	assert.Equal(t, "kvcache_block_size", configErr.Field)
}

func TestEngineConfig_Validate_RejectsBatchedTokensBelowModelLen(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.MaxModelLen = 8192
	cfg.MaxNumBatchedTokens = 4096

	assert.Error(t, cfg.Validate())
}

func TestEngineConfig_Validate_RejectsTensorParallelOutOfRange(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.TensorParallelSize = 9

	assert.Error(t, cfg.Validate())
}

func TestEngineConfig_Validate_AllowsNegativeOneKVCacheBlocks(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.NumKVCacheBlocks = -1

	assert.NoError(t, cfg.Validate())
}

func TestResolveNumKVCacheBlocks_DerivesFromAvailableMemory(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.NumKVCacheBlocks = -1
	cfg.GPUMemUtilization = 0.5

	blocks := cfg.ResolveNumKVCacheBlocks(1000, 10)

	assert.Equal(t, int64(50), blocks)
}

func TestResolveNumKVCacheBlocks_PassesThroughExplicitValue(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.NumKVCacheBlocks = 128

	assert.Equal(t, int64(128), cfg.ResolveNumKVCacheBlocks(1000, 10))
}

func TestLoadEngineConfig_RejectsUnknownFields(t *testing.T) {
	// GIVEN a config file with a typo'd key
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_num_seqzz: 10\n"), 0o644))

	// WHEN loaded
	_, err := LoadEngineConfig(path)

	// THEN it is rejected rather than silently ignored
	assert.Error(t, err)
}

func TestLoadEngineConfig_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_num_seqs: 64\neos: 2\n"), 0o644))

	cfg, err := LoadEngineConfig(path)

	require.NoError(t, err)
	assert.EqualValues(t, 64, cfg.MaxNumSeqs)
	assert.Equal(t, 2, cfg.EOS)
	// untouched fields keep their defaults
	assert.EqualValues(t, 256, cfg.KVCacheBlockSize)
}
