package engine

import (
	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"
)

// Scheduler performs the two-phase (prefill/decode) batching that keeps
// prefill and decode work from mixing in a single tick: it owns the
// waiting and running queues and asks the BlockManager to allocate,
// append, or release blocks as sequences move between them. The queues
// are github.com/gammazero/deque instances — every operation the
// scheduler needs (peek/pop front, pop tail, push front, push back) is a
// native deque primitive.
type Scheduler struct {
	waiting deque.Deque[*Sequence]
	running deque.Deque[*Sequence]

	blockManager *BlockManager
	metrics      *Metrics

	maxNumSeqs          int64
	maxNumBatchedTokens int64
	blockSize           int
}

// NewScheduler creates a Scheduler bound to a BlockManager and the three
// admission budgets that gate it.
func NewScheduler(bm *BlockManager, maxNumSeqs, maxNumBatchedTokens int64, blockSize int) *Scheduler {
	return &Scheduler{
		blockManager:        bm,
		maxNumSeqs:          maxNumSeqs,
		maxNumBatchedTokens: maxNumBatchedTokens,
		blockSize:           blockSize,
	}
}

// SetMetrics attaches the collectors preemptions and cache samples report
// into. Optional — a nil metrics (the zero value) is a silent no-op.
func (sch *Scheduler) SetMetrics(m *Metrics) {
	sch.metrics = m
}

// EnqueueWaiting pushes a newly admitted sequence to the back of the waiting
// queue.
func (sch *Scheduler) EnqueueWaiting(seq *Sequence) {
	sch.waiting.PushBack(seq)
}

// WaitingLen and RunningLen expose queue depth for metrics and tests.
func (sch *Scheduler) WaitingLen() int { return sch.waiting.Len() }
func (sch *Scheduler) RunningLen() int { return sch.running.Len() }

// IsFinished reports whether both queues are empty — the engine loop's
// termination condition.
func (sch *Scheduler) IsFinished() bool {
	return sch.waiting.Len() == 0 && sch.running.Len() == 0
}

// Schedule runs one engine tick's batching decision: prefill phase first,
// decode phase only if prefill admitted nothing. Returns the chosen batch
// and whether it is a prefill batch.
func (sch *Scheduler) Schedule() (*Batch, bool) {
	if seqs := sch.prefillPhase(); len(seqs) > 0 {
		return NewBatch(seqs), true
	}
	return NewBatch(sch.decodePhase()), false
}

// prefillPhase admits sequences from the front of waiting while the token
// and sequence-count budgets allow and the block manager can allocate their
// blocks. It never pops a sequence it cannot admit — the waiting queue's
// FIFO order is preserved across ticks.
//
// A prefill-admitted sequence also receives its first decoded token in this
// same tick's Postprocess call, which may itself need a fresh block if the
// prompt exactly fills its last one. The needed-blocks check below reserves
// room for that up front, and MayAppend actually consumes it immediately
// after Allocate — synchronously, per sequence, before the next waiting
// sequence is considered — so two sequences admitted in the same tick can
// never both count on the same last free block only to have the second
// one's reservation panic once Postprocess runs.
func (sch *Scheduler) prefillPhase() []*Sequence {
	var batch []*Sequence
	var batchedTokens int64

	for sch.waiting.Len() > 0 && int64(len(batch)) < sch.maxNumSeqs {
		s := sch.waiting.Front()

		if batchedTokens+int64(s.NumTokens()) > sch.maxNumBatchedTokens {
			break
		}
		needed := s.NumBlocks(sch.blockSize)
		if s.NumPromptTokens%sch.blockSize == 0 {
			needed++
		}
		if sch.blockManager.FreeCount() < needed {
			break
		}

		sch.waiting.PopFront()
		sch.blockManager.Allocate(s)
		sch.blockManager.MayAppend(s)
		// Only the prefix that must actually be computed counts toward the
		// token budget — cached tokens are free.
		batchedTokens += int64(s.NumTokens() - s.NumCachedTokens)
		s.Status = StatusRunning
		sch.running.PushBack(s)
		batch = append(batch, s)

		if sch.metrics != nil {
			sch.metrics.RecordCacheSample(int64(s.NumCachedTokens), int64(s.NumTokens()))
		}
	}
	return batch
}

// decodePhase gathers, up to maxNumSeqs, the sequences at the front of
// running that can be advanced by one token this tick, preempting tail-first when a sequence
// cannot get the block it needs. As soon as a sequence clears its CanAppend
// check, MayAppend reserves its block slot immediately — before the next
// sequence in the queue is even looked at — so that sequence's reservation
// is reflected in the free pool's size for every check that follows in the
// same tick. The token itself is not known yet (the runner hasn't returned
// it), so filling the reserved block's content and hashing it once full is
// commitAppend's job, called from Postprocess after the token is appended.
// The processed batch is reinserted at the front of running in original
// order so the next tick continues from the same place.
func (sch *Scheduler) decodePhase() []*Sequence {
	var batch []*Sequence

	for sch.running.Len() > 0 && int64(len(batch)) < sch.maxNumSeqs {
		s := sch.running.PopFront()

		aborted := false
		for !sch.blockManager.CanAppend(s) {
			if sch.running.Len() > 0 {
				tail := sch.running.PopBack()
				sch.preempt(tail)
				continue
			}
			sch.preempt(s)
			aborted = true
			break
		}
		if aborted {
			break
		}

		sch.blockManager.MayAppend(s)
		batch = append(batch, s)
	}

	for i := len(batch) - 1; i >= 0; i-- {
		sch.running.PushFront(batch[i])
	}
	return batch
}

// preempt involuntarily transitions a Running sequence back to Waiting,
// releasing its blocks so another sequence can progress this tick. It is
// pushed to the front of waiting — preempted work re-enters prefill ahead
// of freshly admitted requests, and prefix dedup will often recover most of
// its KV state since the matching blocks may still be in the dedup index.
func (sch *Scheduler) preempt(s *Sequence) {
	logrus.Warnf("preempting sequence %d (correlation %s)", s.ID, s.CorrelationID)
	s.Status = StatusWaiting
	sch.blockManager.Deallocate(s)
	sch.waiting.PushFront(s)
	if sch.metrics != nil {
		sch.metrics.RecordPreemption()
	}
}

// Postprocess appends the sampled token to each sequence in batch (in
// batch/input order), records its effect on the block table via
// BlockManager.commitAppend — the block slot itself was already reserved
// synchronously by MayAppend back in prefillPhase/decodePhase — and
// finishes sequences that hit EOS (unless ignore_eos) or max_tokens,
// deallocating their blocks and removing them from running. This runs
// identically for prefill and decode batches — a prefill tick's sequences
// receive exactly this one post-prompt token too.
func (sch *Scheduler) Postprocess(batch *Batch, tokenIDs []int, eos int) {
	if len(tokenIDs) != len(batch.Sequences) {
		invariantViolation("postprocess: got %d tokens for a batch of %d sequences", len(tokenIDs), len(batch.Sequences))
	}
	for i, s := range batch.Sequences {
		tok := tokenIDs[i]
		s.AppendToken(tok)
		sch.blockManager.commitAppend(s)
		if s.IsFinished(tok, eos) {
			s.Status = StatusFinished
			sch.blockManager.Deallocate(s)
			sch.removeFromRunning(s)
		}
	}
}

// removeFromRunning rotates the running deque once, dropping target if
// found, preserving the relative order of every other element.
func (sch *Scheduler) removeFromRunning(target *Sequence) {
	n := sch.running.Len()
	for i := 0; i < n; i++ {
		s := sch.running.PopFront()
		if s != target {
			sch.running.PushBack(s)
		}
	}
}
