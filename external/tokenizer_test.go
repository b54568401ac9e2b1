package external

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiktokenTokenizer_Encode_IsDeterministicAndNonEmpty(t *testing.T) {
	// GIVEN an offline-loaded cl100k_base tokenizer
	tok, err := NewTiktokenTokenizer()
	require.NoError(t, err)

	// WHEN the same prompt is encoded twice
	first, err := tok.Encode("the quick brown fox")
	require.NoError(t, err)
	second, err := tok.Encode("the quick brown fox")
	require.NoError(t, err)

	// THEN encoding is deterministic and produces at least one token
	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestTiktokenTokenizer_Encode_EmptyPromptYieldsNoTokens(t *testing.T) {
	tok, err := NewTiktokenTokenizer()
	require.NoError(t, err)

	out, err := tok.Encode("")
	require.NoError(t, err)
	assert.Empty(t, out)
}
