package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlock_ResetClearsContent(t *testing.T) {
	// GIVEN a block that was previously full and ref-counted
	b := newBlock(3)
	b.Hash = 0xdead
	b.TokenIDs = []int{1, 2, 3, 4}
	b.RefCount = 2

	// WHEN it is reset for reuse
	b.reset()

	// THEN its content is cleared but its id is untouched
	assert.Equal(t, 3, b.ID)
	assert.Equal(t, unsetHash, b.Hash)
	assert.Nil(t, b.TokenIDs)
	assert.Equal(t, 0, b.RefCount)
}

func TestBlock_Full(t *testing.T) {
	b := newBlock(0)
	b.TokenIDs = []int{1, 2, 3}
	assert.False(t, b.full(4))
	b.TokenIDs = append(b.TokenIDs, 4)
	assert.True(t, b.full(4))
}
