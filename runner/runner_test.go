package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagedinfer/pagedinfer/engine"
)

func TestMockRunner_EmitsEOSAfterConfiguredCount(t *testing.T) {
	// GIVEN a MockRunner bounded to 2 tokens before EOS
	m := NewMockRunner(-1, 2)
	seq := engine.NewSequence([]int{1, 2, 3}, engine.SamplingParams{MaxTokens: 64, IgnoreEOS: true})

	// WHEN Run is called three times for the same sequence
	first, err := m.Run([]*engine.Sequence{seq}, false)
	require.NoError(t, err)
	second, err := m.Run([]*engine.Sequence{seq}, false)
	require.NoError(t, err)
	third, err := m.Run([]*engine.Sequence{seq}, false)
	require.NoError(t, err)

	// THEN the first two calls emit a non-EOS token, the third emits EOS
	assert.NotEqual(t, -1, first[0])
	assert.NotEqual(t, -1, second[0])
	assert.Equal(t, -1, third[0])
}

func TestMockRunner_ReturnsOneTokenPerSequenceInOrder(t *testing.T) {
	// GIVEN a batch of three distinct sequences
	m := NewMockRunner(-1, 0)
	seqs := []*engine.Sequence{
		engine.NewSequence([]int{1}, engine.DefaultSamplingParams()),
		engine.NewSequence([]int{2}, engine.DefaultSamplingParams()),
		engine.NewSequence([]int{3}, engine.DefaultSamplingParams()),
	}

	// WHEN run
	out, err := m.Run(seqs, true)
	require.NoError(t, err)

	// THEN exactly one token comes back per sequence, none of them EOS
	require.Len(t, out, 3)
	for _, tok := range out {
		assert.NotEqual(t, -1, tok)
	}
}
