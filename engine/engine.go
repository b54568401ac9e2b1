package engine

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Engine drives schedule -> run -> postprocess until every admitted
// sequence finishes. It wires the Scheduler and BlockManager to an
// external ModelRunner and, optionally, a tokenizer for raw-string
// prompts.
type Engine struct {
	cfg       EngineConfig
	scheduler *Scheduler
	runner    ModelRunner
	metrics   *Metrics

	tick int64
}

// NewEngine creates an Engine with a fresh BlockManager of totalKVBlocks
// blocks. It does not read cfg.NumKVCacheBlocks; callers resolve that
// (including its -1 sentinel, see ResolveNumKVCacheBlocks) and pass the
// result in.
func NewEngine(cfg EngineConfig, totalKVBlocks int, runner ModelRunner) *Engine {
	bm := NewBlockManager(totalKVBlocks, int(cfg.KVCacheBlockSize), cfg.DedupIndexCapacity)
	sched := NewScheduler(bm, cfg.MaxNumSeqs, cfg.MaxNumBatchedTokens, int(cfg.KVCacheBlockSize))
	metrics := NewMetrics()
	sched.SetMetrics(metrics)
	return &Engine{
		cfg:       cfg,
		scheduler: sched,
		runner:    runner,
		metrics:   metrics,
	}
}

// Metrics exposes the engine's Prometheus registry for an HTTP /metrics
// endpoint or direct inspection in tests.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// AddRequest tokenizes (if necessary) and admits a new request, pushing a
// Waiting Sequence onto the scheduler's waiting queue. prompt is either
// []int (pre-tokenized) or string (tokenized via tokenizer, which must be
// non-nil for the string case).
func (e *Engine) AddRequest(prompt any, sampling SamplingParams, tokenizer interface {
	Encode(string) ([]int, error)
}) (*Sequence, error) {
	var tokens []int
	switch p := prompt.(type) {
	case []int:
		tokens = p
	case string:
		if tokenizer == nil {
			return nil, fmt.Errorf("add_request: string prompt requires a tokenizer")
		}
		encoded, err := tokenizer.Encode(p)
		if err != nil {
			return nil, fmt.Errorf("tokenizing prompt: %w", err)
		}
		tokens = encoded
	default:
		return nil, fmt.Errorf("add_request: prompt must be []int or string, got %T", prompt)
	}
	if int64(len(tokens)) > e.cfg.MaxModelLen {
		return nil, fmt.Errorf("add_request: prompt has %d tokens, exceeds max_model_len %d", len(tokens), e.cfg.MaxModelLen)
	}

	seq := NewSequence(tokens, sampling)
	seq.CorrelationID = uuid.NewString()
	e.scheduler.EnqueueWaiting(seq)
	logrus.Debugf("admitted sequence %d (correlation %s), %d prompt tokens", seq.ID, seq.CorrelationID, len(tokens))
	return seq, nil
}

// Step performs one engine tick: schedule a batch, run it, postprocess the
// output. Returns the batch and whether it was a prefill batch, for callers
// that want to inspect tick-by-tick behavior.
func (e *Engine) Step() (*Batch, bool, error) {
	batch, isPrefill := e.scheduler.Schedule()
	e.tick++
	e.metrics.observeTick(e.scheduler, isPrefill, len(batch.Sequences))
	if batch.IsEmpty() {
		return batch, isPrefill, nil
	}

	tokenIDs, err := e.runner.Run(batch.Sequences, isPrefill)
	if err != nil {
		return batch, isPrefill, fmt.Errorf("model runner: %w", err)
	}

	e.scheduler.Postprocess(batch, tokenIDs, e.cfg.EOS)
	return batch, isPrefill, nil
}

// IsFinished reports whether both the waiting and running queues are empty.
func (e *Engine) IsFinished() bool {
	return e.scheduler.IsFinished()
}

// Generate is the synchronous batch façade: enqueue every prompt, drive
// Step until finished, return completion token ids keyed by admission
// order. progress, if non-nil, is called after every tick with the number
// of sequences finished so far.
func (e *Engine) Generate(prompts []any, sampling SamplingParams, tokenizer interface {
	Encode(string) ([]int, error)
}, progress func(finished, total int)) ([][]int, error) {
	seqs := make([]*Sequence, len(prompts))
	for i, p := range prompts {
		seq, err := e.AddRequest(p, sampling, tokenizer)
		if err != nil {
			return nil, fmt.Errorf("admitting prompt %d: %w", i, err)
		}
		seqs[i] = seq
	}

	for !e.IsFinished() {
		if _, _, err := e.Step(); err != nil {
			return nil, err
		}
		if progress != nil {
			finished := 0
			for _, s := range seqs {
				if s.Status == StatusFinished {
					finished++
				}
			}
			progress(finished, len(seqs))
		}
	}

	outputs := make([][]int, len(seqs))
	for i, s := range seqs {
		outputs[i] = s.TokenIDs[s.NumPromptTokens:]
	}
	return outputs, nil
}

// BlockManagerStats exposes pool occupancy for metrics/CLI reporting.
func (e *Engine) BlockManagerStats() (free, used, total int) {
	bm := e.scheduler.blockManager
	return bm.FreeCount(), bm.UsedCount(), bm.TotalBlocks()
}
