// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pagedinfer/pagedinfer/engine"
	"github.com/pagedinfer/pagedinfer/external"
	"github.com/pagedinfer/pagedinfer/httpapi"
	"github.com/pagedinfer/pagedinfer/runner"
)

var (
	configPath          string
	logLevel            string
	maxNumBatchedTokens int64
	maxNumSeqs          int64
	maxModelLen         int64
	blockSize           int64
	numKVCacheBlocks    int64
	gpuMemUtilization   float64
	tensorParallelSize  int
	enforceEager        bool
	eos                 int
	dedupIndexCapacity  int
	mockTokensBeforeEOS int

	prompts []string

	serveAddr string
)

var rootCmd = &cobra.Command{
	Use:   "pagedinfer",
	Short: "Request scheduler and paged KV-cache block manager for a small inference engine",
}

func buildEngineConfig() engine.EngineConfig {
	cfg := engine.DefaultEngineConfig()
	if configPath != "" {
		loaded, err := engine.LoadEngineConfig(configPath)
		if err != nil {
			logrus.Fatalf("loading engine config: %v", err)
		}
		cfg = *loaded
	}
	if cfgChanged("max-batched-tokens") {
		cfg.MaxNumBatchedTokens = maxNumBatchedTokens
	}
	if cfgChanged("max-seqs") {
		cfg.MaxNumSeqs = maxNumSeqs
	}
	if cfgChanged("max-model-len") {
		cfg.MaxModelLen = maxModelLen
	}
	if cfgChanged("block-size") {
		cfg.KVCacheBlockSize = blockSize
	}
	if cfgChanged("kv-blocks") {
		cfg.NumKVCacheBlocks = numKVCacheBlocks
	}
	if cfgChanged("gpu-util") {
		cfg.GPUMemUtilization = gpuMemUtilization
	}
	if cfgChanged("tensor-parallel-size") {
		cfg.TensorParallelSize = tensorParallelSize
	}
	if cfgChanged("enforce-eager") {
		cfg.EnforceEager = enforceEager
	}
	if cfgChanged("eos") {
		cfg.EOS = eos
	}
	if cfgChanged("dedup-index-capacity") {
		cfg.DedupIndexCapacity = dedupIndexCapacity
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}

// cfgChanged is set by each subcommand's Run to its Flags().Changed, so
// buildEngineConfig only overrides what the user actually passed.
var cfgChanged = func(string) bool { return false }

func newEngine(cfg engine.EngineConfig) *engine.Engine {
	totalBlocks := cfg.NumKVCacheBlocks
	if totalBlocks == -1 {
		// No real device to query bytes from at this layer; derive from a
		// conservative stand-in rather than touching GPU memory directly.
		totalBlocks = cfg.ResolveNumKVCacheBlocks(8<<30, cfg.KVCacheBlockSize*2048)
	}
	mock := runner.NewMockRunner(cfg.EOS, mockTokensBeforeEOS)
	return engine.NewEngine(cfg, int(totalBlocks), mock)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Admit a fixed list of prompts and run them to completion",
	Run: func(cmd *cobra.Command, args []string) {
		cfgChanged = cmd.Flags().Changed
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := buildEngineConfig()
		eng := newEngine(cfg)

		tok, err := external.NewTiktokenTokenizer()
		if err != nil {
			logrus.Fatalf("loading tokenizer: %v", err)
		}

		promptArgs := make([]any, len(prompts))
		for i, p := range prompts {
			promptArgs[i] = p
		}
		outputs, err := eng.Generate(promptArgs, engine.DefaultSamplingParams(), tok, func(finished, total int) {
			logrus.Debugf("progress: %d/%d finished", finished, total)
		})
		if err != nil {
			logrus.Fatalf("generate: %v", err)
		}
		for i, out := range outputs {
			fmt.Printf("prompt %d -> %d completion tokens\n", i, len(out))
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine's generate endpoint over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		cfgChanged = cmd.Flags().Changed
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := buildEngineConfig()
		eng := newEngine(cfg)
		tok, err := external.NewTiktokenTokenizer()
		if err != nil {
			logrus.Fatalf("loading tokenizer: %v", err)
		}

		srv := httpapi.NewServer(eng, tok)
		logrus.Infof("listening on %s", serveAddr)
		if err := srv.Run(serveAddr); err != nil {
			logrus.Fatalf("server: %v", err)
		}
	},
}

// Execute runs the root command, exiting non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML engine config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int64Var(&maxNumBatchedTokens, "max-batched-tokens", 16384, "Prefill-tick token budget")
	rootCmd.PersistentFlags().Int64Var(&maxNumSeqs, "max-seqs", 512, "Per-tick sequence cap")
	rootCmd.PersistentFlags().Int64Var(&maxModelLen, "max-model-len", 4096, "Hard ceiling on sequence length")
	rootCmd.PersistentFlags().Int64Var(&blockSize, "block-size", 256, "KV cache block granularity (multiple of 256)")
	rootCmd.PersistentFlags().Int64Var(&numKVCacheBlocks, "kv-blocks", -1, "Size of the KV pool (-1 to derive)")
	rootCmd.PersistentFlags().Float64Var(&gpuMemUtilization, "gpu-util", 0.9, "Fraction of device memory used to derive the pool size")
	rootCmd.PersistentFlags().IntVar(&tensorParallelSize, "tensor-parallel-size", 1, "Number of model-runner workers (1-8)")
	rootCmd.PersistentFlags().BoolVar(&enforceEager, "enforce-eager", false, "Disable kernel-graph optimisation in the runner")
	rootCmd.PersistentFlags().IntVar(&eos, "eos", -1, "EOS sentinel token id")
	rootCmd.PersistentFlags().IntVar(&dedupIndexCapacity, "dedup-index-capacity", 0, "Bound the prefix dedup index to this many hashes (0 = unbounded)")
	rootCmd.PersistentFlags().IntVar(&mockTokensBeforeEOS, "mock-tokens-before-eos", 0, "MockRunner: tokens to emit before EOS (0 = never)")

	runCmd.Flags().StringArrayVar(&prompts, "prompt", nil, "Prompt text (repeatable)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}
