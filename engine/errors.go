package engine

import "fmt"

// ConfigError reports a fatal configuration problem found by
// EngineConfig.Validate, e.g. block_size not a multiple of 256,
// max_num_batched_tokens < max_model_len, tensor_parallel_size out of
// range. Callers surface these at startup, typically via logrus.Fatalf.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Reason)
}

// invariantViolation panics with a diagnostic. Invariant violations
// (may_append finding a non-full last block already hashed, deallocate
// seeing ref_count go negative, allocate called on a non-empty
// block_table) are bugs, not recoverable errors.
func invariantViolation(format string, args ...any) {
	panic(fmt.Sprintf("block manager invariant violated: "+format, args...))
}
