package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagedinfer/pagedinfer/engine"
)

func TestRootCmd_RegistersRunAndServeSubcommands(t *testing.T) {
	// GIVEN the root command
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	// THEN both subcommands are wired in
	assert.True(t, names["run"])
	assert.True(t, names["serve"])
}

func TestRunCmd_DefaultLogLevel_IsWarn(t *testing.T) {
	// GIVEN the registered persistent log flag
	flag := rootCmd.PersistentFlags().Lookup("log")

	// THEN its default stays at warn
	require.NotNil(t, flag)
	assert.Equal(t, "warn", flag.DefValue)
}

func TestRootCmd_KVCacheBlockSizeFlag_DefaultsToAValidMultipleOf256(t *testing.T) {
	// GIVEN the block-size flag
	flag := rootCmd.PersistentFlags().Lookup("block-size")
	require.NotNil(t, flag)

	// THEN its default is a positive multiple of 256 (passes Validate)
	assert.Equal(t, "256", flag.DefValue)
}

func TestBuildEngineConfig_DefaultsValidate(t *testing.T) {
	// GIVEN no config file and no flags changed
	prevChanged := cfgChanged
	cfgChanged = func(string) bool { return false }
	defer func() { cfgChanged = prevChanged }()
	configPath = ""

	// WHEN the engine config is built
	cfg := buildEngineConfig()

	// THEN it matches the documented defaults and validates
	assert.Equal(t, engine.DefaultEngineConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}
