package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRunner is a minimal engine.ModelRunner that emits EOS once a
// sequence has produced a fixed number of completion tokens, letting
// Generate terminate deterministically without pulling in the runner
// package (which imports engine — keeping this test self-contained avoids
// a circular test dependency).
type countingRunner struct {
	eos             int
	tokensBeforeEOS int
	counts          map[int64]int
}

func newCountingRunner(eos, tokensBeforeEOS int) *countingRunner {
	return &countingRunner{eos: eos, tokensBeforeEOS: tokensBeforeEOS, counts: make(map[int64]int)}
}

func (r *countingRunner) Run(seqs []*Sequence, isPrefill bool) ([]int, error) {
	out := make([]int, len(seqs))
	for i, s := range seqs {
		if r.counts[s.ID] >= r.tokensBeforeEOS {
			out[i] = r.eos
			continue
		}
		r.counts[s.ID]++
		out[i] = 42
	}
	return out, nil
}

func TestEngine_AddRequest_PretokenizedPrompt(t *testing.T) {
	// GIVEN a fresh engine
	cfg := DefaultEngineConfig()
	cfg.MaxModelLen = 16
	eng := NewEngine(cfg, 64, newCountingRunner(-1, 2))

	// WHEN a pre-tokenized prompt is admitted
	seq, err := eng.AddRequest([]int{1, 2, 3}, DefaultSamplingParams(), nil)

	// THEN it lands in the waiting queue with a correlation id assigned
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, seq.Status)
	assert.NotEmpty(t, seq.CorrelationID)
	assert.Equal(t, 1, eng.scheduler.WaitingLen())
}

func TestEngine_AddRequest_RejectsPromptExceedingMaxModelLen(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.MaxModelLen = 2
	eng := NewEngine(cfg, 64, newCountingRunner(-1, 2))

	_, err := eng.AddRequest([]int{1, 2, 3}, DefaultSamplingParams(), nil)

	assert.Error(t, err)
}

func TestEngine_AddRequest_StringPromptWithoutTokenizerErrors(t *testing.T) {
	cfg := DefaultEngineConfig()
	eng := NewEngine(cfg, 64, newCountingRunner(-1, 2))

	_, err := eng.AddRequest("hello world", DefaultSamplingParams(), nil)

	assert.Error(t, err)
}

func TestEngine_Generate_RunsEveryPromptToCompletion(t *testing.T) {
	// GIVEN an engine wired to a runner that emits EOS after 2 tokens
	cfg := DefaultEngineConfig()
	cfg.MaxModelLen = 64
	cfg.KVCacheBlockSize = 256
	eng := NewEngine(cfg, 64, newCountingRunner(-1, 2))

	// WHEN two prompts are generated with ignore_eos left false
	sampling := SamplingParams{Temperature: 1.0, MaxTokens: 10, IgnoreEOS: false}
	outputs, err := eng.Generate([]any{[]int{1, 2, 3}, []int{4, 5}}, sampling, nil, nil)

	// THEN both finish, each with exactly 2 completion tokens (then EOS)
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	for _, out := range outputs {
		assert.Len(t, out, 3) // 2 generated tokens + the terminating EOS
	}
	assert.True(t, eng.IsFinished())
}

func TestEngine_BlockManagerStats_ReflectsPoolOccupancy(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.MaxModelLen = 64
	eng := NewEngine(cfg, 16, newCountingRunner(-1, 0))

	free, used, total := eng.BlockManagerStats()
	assert.Equal(t, 16, free)
	assert.Equal(t, 0, used)
	assert.Equal(t, 16, total)
}
