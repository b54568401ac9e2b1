package engine

// Batch is the group of sequences chosen by Schedule to run in a single
// engine tick — either all Waiting immediately prior (a prefill batch) or
// all Running (a decode batch). Prefill and decode are never mixed in the
// same tick.
type Batch struct {
	Sequences []*Sequence
}

// NewBatch wraps a slice of sequences into a Batch.
func NewBatch(seqs []*Sequence) *Batch {
	return &Batch{Sequences: seqs}
}

// IsEmpty reports whether the batch carries no sequences.
func (b *Batch) IsEmpty() bool {
	return b == nil || len(b.Sequences) == 0
}
