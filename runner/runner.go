// Package runner provides ModelRunner implementations satisfying
// engine.ModelRunner, including a deterministic mock used by this
// package's tests and the CLI. A real implementation fans out to
// tensor-parallel worker processes; that coordination is out of scope
// here.
package runner

import "github.com/pagedinfer/pagedinfer/engine"

var _ engine.ModelRunner = (*MockRunner)(nil)

// MockRunner is a deterministic stand-in for tests and the CLI's
// commands: it emits one fixed token derived from each sequence's id and
// emits EOS once a sequence has produced a configured number of tokens, so workloads
// terminate without a real model attached.
type MockRunner struct {
	EOS int
	// TokensBeforeEOS bounds how many non-EOS tokens MockRunner emits for a
	// sequence before switching to EOS; 0 means never emit EOS on its own
	// (max_tokens then governs termination).
	TokensBeforeEOS int

	counts map[int64]int
}

// NewMockRunner creates a MockRunner with the given EOS id and emission
// bound.
func NewMockRunner(eos, tokensBeforeEOS int) *MockRunner {
	return &MockRunner{EOS: eos, TokensBeforeEOS: tokensBeforeEOS, counts: make(map[int64]int)}
}

// Run implements ModelRunner by emitting a small pseudo-vocabulary token per
// sequence, switching to EOS after TokensBeforeEOS calls for that sequence
// (prefill and decode calls alike).
func (m *MockRunner) Run(seqs []*engine.Sequence, isPrefill bool) ([]int, error) {
	out := make([]int, len(seqs))
	for i, s := range seqs {
		if m.TokensBeforeEOS > 0 && m.counts[s.ID] >= m.TokensBeforeEOS {
			out[i] = m.EOS
			continue
		}
		m.counts[s.ID]++
		out[i] = int(s.ID)%997 + 1 // never collides with EOS sentinels <= 0
	}
	return out, nil
}
