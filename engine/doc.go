// Package engine implements the request scheduler and paged KV-cache block
// manager at the heart of the inference engine.
//
// # Reading Guide
//
// Start with these files to understand the core:
//   - sequence.go: per-request state machine (Waiting -> Running -> Finished)
//   - block.go / blockhash.go: the fixed-size KV block and its chained hash
//   - blockmanager.go: the bounded block pool, prefix dedup, ref counting
//   - scheduler.go: two-phase (prefill/decode) batching and preemption
//   - engine.go: the step loop that wires requests, the runner, and postprocess
//
// runner.go defines the ModelRunner contract this package consumes without
// depending on any concrete implementation; the runner package provides
// one. The httpapi and external packages are outer collaborators (HTTP
// façade, tokenizer) layered on top and never touched by the scheduler
// itself.
package engine
