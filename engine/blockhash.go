package engine

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
)

// chainBlockHash computes h_i = H(h_{i-1} || token_ids_i) with H a 64-bit
// non-cryptographic hash (xxhash). A match on block i therefore implies
// full-prefix equality through position i*blockSize, which is the property
// the scheduler relies on to count num_cached_tokens.
func chainBlockHash(prevHash uint64, tokens []int) uint64 {
	buf := make([]byte, 8+8*len(tokens))
	binary.LittleEndian.PutUint64(buf[:8], prevHash)
	for i, tok := range tokens {
		binary.LittleEndian.PutUint64(buf[8+8*i:16+8*i], uint64(tok))
	}
	return xxhash.Sum64(buf)
}

// tokensEqual is the mandatory content check after a hash match — collisions
// in a 64-bit non-cryptographic hash are handled, never assumed away.
func tokensEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
