package engine

import "sync/atomic"

// Status is the lifecycle state of a Sequence.
type Status int

const (
	// StatusWaiting means the sequence sits in the scheduler's waiting queue,
	// either newly admitted or preempted back from Running.
	StatusWaiting Status = iota
	// StatusRunning means the sequence has blocks allocated and is included
	// in the batch handed to the model runner.
	StatusRunning
	// StatusFinished means the sequence reached EOS or max_tokens; its blocks
	// have been released.
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// SamplingParams carries the three sampling options this layer understands.
// Everything beyond EOS comparison and max_tokens counting is opaque to the
// scheduler — the actual sampling strategy is the model runner's concern.
type SamplingParams struct {
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	IgnoreEOS   bool    `yaml:"ignore_eos" json:"ignore_eos"`
}

// DefaultSamplingParams returns the documented baseline sampling options.
func DefaultSamplingParams() SamplingParams {
	return SamplingParams{Temperature: 1.0, MaxTokens: 64, IgnoreEOS: false}
}

var nextSeqID int64 // process-wide monotonic counter; never reset

// Sequence is a request under generation: token history, block-table, and
// sampling options. The BlockManager is the sole owner of the underlying
// Block objects — a Sequence holds only integer block_ids.
type Sequence struct {
	ID            int64
	CorrelationID string // ambient log/metrics correlation tag, never interpreted by scheduler or block manager

	Status Status

	TokenIDs        []int
	NumPromptTokens int
	NumCachedTokens int

	BlockTable []int

	Sampling SamplingParams
}

// NewSequence creates a Sequence in the Waiting state from a prompt's token
// ids and sampling options, assigning it the next process-wide seq_id.
func NewSequence(promptTokens []int, sampling SamplingParams) *Sequence {
	tokens := make([]int, len(promptTokens))
	copy(tokens, promptTokens)
	return &Sequence{
		ID:              atomic.AddInt64(&nextSeqID, 1) - 1,
		Status:          StatusWaiting,
		TokenIDs:        tokens,
		NumPromptTokens: len(tokens),
		Sampling:        sampling,
	}
}

// NumTokens is the current token count: prompt tokens plus completion tokens.
func (s *Sequence) NumTokens() int { return len(s.TokenIDs) }

// NumCompletionTokens is the number of decoded tokens appended so far.
func (s *Sequence) NumCompletionTokens() int { return len(s.TokenIDs) - s.NumPromptTokens }

// NumBlocks returns ceil(num_tokens / blockSize).
func (s *Sequence) NumBlocks(blockSize int) int {
	return (s.NumTokens() + blockSize - 1) / blockSize
}

// LastBlockNumTokens returns the number of tokens occupying the last logical
// block: num_tokens - (num_blocks-1)*blockSize.
func (s *Sequence) LastBlockNumTokens(blockSize int) int {
	n := s.NumBlocks(blockSize)
	if n == 0 {
		return 0
	}
	return s.NumTokens() - (n-1)*blockSize
}

// Block returns the token ids making up logical block i (0-indexed).
func (s *Sequence) Block(i, blockSize int) []int {
	start := i * blockSize
	end := start + blockSize
	if end > len(s.TokenIDs) {
		end = len(s.TokenIDs)
	}
	return s.TokenIDs[start:end]
}

// AppendToken appends a single decoded token, growing num_tokens by one.
func (s *Sequence) AppendToken(tok int) {
	s.TokenIDs = append(s.TokenIDs, tok)
}

// IsFinished reports whether the sequence should stop: EOS reached (unless
// ignored) or max_tokens completion tokens generated.
func (s *Sequence) IsFinished(tok, eos int) bool {
	if !s.Sampling.IgnoreEOS && tok == eos {
		return true
	}
	return s.NumCompletionTokens() == s.Sampling.MaxTokens
}
