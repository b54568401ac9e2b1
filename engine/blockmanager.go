package engine

import (
	"github.com/sirupsen/logrus"

	lru "github.com/hashicorp/golang-lru/v2"
)

// dedupIndex is the hash -> block_id lookup accelerator the BlockManager
// uses to find reusable blocks. It is a weak secondary reference: entries
// are never purged when a block is freed, because a later hash hit is
// always re-verified by content equality (see tokensEqual). The default
// mapIndex never evicts; lruIndex is an optional bounded variant for
// long-lived engines that would otherwise grow this index without limit.
type dedupIndex interface {
	get(h uint64) (int, bool)
	put(h uint64, blockID int)
}

type mapIndex map[uint64]int

func (m mapIndex) get(h uint64) (int, bool) { id, ok := m[h]; return id, ok }
func (m mapIndex) put(h uint64, blockID int) { m[h] = blockID }

type lruIndex struct {
	cache *lru.Cache[uint64, int]
}

func newLRUIndex(capacity int) *lruIndex {
	c, err := lru.New[uint64, int](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0; NewBlockManager only
		// builds an lruIndex when dedupCapacity > 0.
		invariantViolation("invalid dedup index capacity: %v", err)
	}
	return &lruIndex{cache: c}
}

func (l *lruIndex) get(h uint64) (int, bool)  { return l.cache.Get(h) }
func (l *lruIndex) put(h uint64, blockID int) { l.cache.Add(h, blockID) }

// BlockManager owns the fixed pool of KV blocks: it allocates, dedups,
// ref-counts, and frees them. It is the sole owner of Block objects —
// Sequences hold only integer block_ids through their BlockTable.
type BlockManager struct {
	blockSize int
	blocks    []*Block

	freeHead *Block
	freeTail *Block
	freeLen  int

	used  map[int]struct{}
	index dedupIndex
}

// NewBlockManager creates a pool of totalBlocks blocks of blockSize tokens
// each, all initially free. dedupCapacity > 0 backs the dedup index with an
// LRU of that capacity instead of the default unbounded map.
func NewBlockManager(totalBlocks, blockSize int, dedupCapacity int) *BlockManager {
	bm := &BlockManager{
		blockSize: blockSize,
		blocks:    make([]*Block, totalBlocks),
		used:      make(map[int]struct{}),
	}
	if dedupCapacity > 0 {
		bm.index = newLRUIndex(dedupCapacity)
	} else {
		bm.index = make(mapIndex)
	}
	for i := 0; i < totalBlocks; i++ {
		blk := newBlock(i)
		bm.blocks[i] = blk
		bm.appendToFree(blk)
	}
	return bm
}

func (bm *BlockManager) appendToFree(b *Block) {
	b.NextFree, b.PrevFree = nil, nil
	if bm.freeTail != nil {
		bm.freeTail.NextFree = b
		b.PrevFree = bm.freeTail
		bm.freeTail = b
	} else {
		bm.freeHead, bm.freeTail = b, b
	}
	bm.freeLen++
}

func (bm *BlockManager) removeFromFree(b *Block) {
	if b.PrevFree != nil {
		b.PrevFree.NextFree = b.NextFree
	} else {
		bm.freeHead = b.NextFree
	}
	if b.NextFree != nil {
		b.NextFree.PrevFree = b.PrevFree
	} else {
		bm.freeTail = b.PrevFree
	}
	b.NextFree, b.PrevFree = nil, nil
	bm.freeLen--
}

func (bm *BlockManager) popFree() *Block {
	head := bm.freeHead
	if head == nil {
		return nil
	}
	bm.removeFromFree(head)
	return head
}

// FreeCount returns the number of blocks currently in the free pool.
func (bm *BlockManager) FreeCount() int { return bm.freeLen }

// UsedCount returns the number of blocks currently in use.
func (bm *BlockManager) UsedCount() int { return len(bm.used) }

// TotalBlocks returns the pool size N.
func (bm *BlockManager) TotalBlocks() int { return len(bm.blocks) }

func (bm *BlockManager) markUsed(b *Block) {
	if _, already := bm.used[b.ID]; !already {
		bm.removeFromFree(b)
		bm.used[b.ID] = struct{}{}
	}
}

// CanAllocate is a pure predicate: free_pool.size >= seq.num_blocks.
func (bm *BlockManager) CanAllocate(seq *Sequence) bool {
	return bm.freeLen >= seq.NumBlocks(bm.blockSize)
}

// Allocate walks the sequence's logical blocks, deduplicating against the
// hash index and falling back to fresh free blocks on a miss. Precondition:
// seq.BlockTable is empty.
func (bm *BlockManager) Allocate(seq *Sequence) {
	if len(seq.BlockTable) != 0 {
		invariantViolation("allocate called on sequence %d with non-empty block_table", seq.ID)
	}
	numBlocks := seq.NumBlocks(bm.blockSize)
	var prevHash uint64 = unsetHash
	for i := 0; i < numBlocks; i++ {
		tokens := seq.Block(i, bm.blockSize)
		full := len(tokens) == bm.blockSize

		var h uint64 = unsetHash
		if full {
			h = chainBlockHash(prevHash, tokens)
		}

		if h != unsetHash {
			if blockID, ok := bm.index.get(h); ok {
				blk := bm.blocks[blockID]
				if tokensEqual(blk.TokenIDs, tokens) {
					// Cache hit.
					if _, inUse := bm.used[blockID]; inUse {
						blk.RefCount++
					} else {
						bm.markUsed(blk)
						blk.RefCount = 1
					}
					seq.NumCachedTokens += bm.blockSize
					seq.BlockTable = append(seq.BlockTable, blockID)
					prevHash = h
					logrus.Debugf("seq %d: cache hit on block %d (hash %x)", seq.ID, blockID, h)
					continue
				}
			}
		}

		// Cache miss, including every non-full block.
		blk := bm.popFree()
		if blk == nil {
			invariantViolation("allocate: free pool exhausted for sequence %d despite CanAllocate gate", seq.ID)
		}
		blk.reset()
		blk.RefCount = 1
		bm.used[blk.ID] = struct{}{}
		blk.TokenIDs = append([]int{}, tokens...)

		if h != unsetHash {
			blk.Hash = h
			bm.index.put(h, blk.ID)
		}
		seq.BlockTable = append(seq.BlockTable, blk.ID)
		if full {
			prevHash = h
		}
	}
}

// CanAppend reports whether the sequence can decode one more token:
// true unless the sequence's current token count sits exactly on a block
// boundary (num_tokens mod block_size == 0, so the next token would be the
// first of a new logical block) and the free pool is empty.
func (bm *BlockManager) CanAppend(seq *Sequence) bool {
	if seq.NumTokens()%bm.blockSize != 0 {
		return true
	}
	return bm.freeLen >= 1
}

// MayAppend reserves, if needed, the block slot the next decoded token will
// land in: a fresh free block when the sequence's current (pre-decode)
// token count sits exactly on a block boundary, nothing otherwise. Callers
// must invoke this synchronously, per sequence, immediately after the
// matching CanAppend check passes — before moving on to the next sequence
// in the same tick. CanAppend is a pure read of the free pool's current
// size, so without an immediate reservation here two sequences checked
// back-to-back in one tick could both pass CanAppend against the same
// last free block and only the first would actually get it, panicking the
// second's reservation once Postprocess runs. The reserved block gets its
// content and, once it fills, its hash from commitAppend, once the
// sampled token is known.
func (bm *BlockManager) MayAppend(seq *Sequence) {
	if seq.NumTokens()%bm.blockSize != 0 {
		return
	}
	// The token about to land starts a new logical block. The previous
	// block must already be full and hashed.
	if len(seq.BlockTable) > 0 {
		prev := bm.blocks[seq.BlockTable[len(seq.BlockTable)-1]]
		if !prev.full(bm.blockSize) || prev.Hash == unsetHash {
			invariantViolation("may_append: previous block %d not full+hashed for sequence %d", prev.ID, seq.ID)
		}
	}
	blk := bm.popFree()
	if blk == nil {
		invariantViolation("may_append: free pool exhausted for sequence %d despite CanAppend gate", seq.ID)
	}
	blk.reset()
	blk.RefCount = 1
	bm.used[blk.ID] = struct{}{}
	seq.BlockTable = append(seq.BlockTable, blk.ID)
}

// commitAppend records the just-sampled token's effect on block content:
// filling in the block MayAppend reserved, hashing a block that just became
// full, or leaving a still-partial block alone. It never touches the free
// pool — any reservation MayAppend needed already happened before the
// token existed. Precondition: seq grew by exactly one token since the
// matching CanAppend/MayAppend check.
func (bm *BlockManager) commitAppend(seq *Sequence) {
	last := bm.blocks[seq.BlockTable[len(seq.BlockTable)-1]]
	last.TokenIDs = seq.Block(len(seq.BlockTable)-1, bm.blockSize)

	if seq.NumTokens()%bm.blockSize != 0 {
		// The last block remains partial (or was just opened by MayAppend
		// and holds only this one token so far).
		if last.Hash != unsetHash {
			invariantViolation("commit_append: partial block %d unexpectedly hashed for sequence %d", last.ID, seq.ID)
		}
		return
	}

	// The token just filled the current last block.
	if last.Hash != unsetHash {
		invariantViolation("commit_append: block %d hashed before becoming full for sequence %d", last.ID, seq.ID)
	}
	var prevHash uint64 = unsetHash
	if len(seq.BlockTable) > 1 {
		prevHash = bm.blocks[seq.BlockTable[len(seq.BlockTable)-2]].Hash
	}
	h := chainBlockHash(prevHash, last.TokenIDs)
	last.Hash = h
	bm.index.put(h, last.ID)
}

// Deallocate releases every block in seq.BlockTable, in reverse order (the
// last block hashes the most tokens and is least likely to be reused, so it
// should be the first candidate for eviction). The dedup index is not
// scrubbed — see the doc comment on dedupIndex. Clears the sequence's block
// table and resets num_cached_tokens.
func (bm *BlockManager) Deallocate(seq *Sequence) {
	for i := len(seq.BlockTable) - 1; i >= 0; i-- {
		blk := bm.blocks[seq.BlockTable[i]]
		blk.RefCount--
		if blk.RefCount < 0 {
			invariantViolation("deallocate: block %d ref_count went negative for sequence %d", blk.ID, seq.ID)
		}
		if blk.RefCount == 0 {
			delete(bm.used, blk.ID)
			bm.appendToFree(blk)
		}
	}
	seq.BlockTable = nil
	seq.NumCachedTokens = 0
}
