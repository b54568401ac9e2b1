package engine

// ModelRunner is the external contract between the scheduler and whatever
// executes a forward pass: given a batch and its phase, run it and return
// exactly one sampled token per input sequence, in input order. The
// scheduler never interprets these tokens beyond EOS comparison, and the
// runner's own fan-out to tensor-parallel workers is entirely opaque here.
type ModelRunner interface {
	Run(seqs []*Sequence, isPrefill bool) ([]int, error)
}
