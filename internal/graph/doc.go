// Package graph implements kabuki's lazily-evaluated, memoized expression graph.
//
// A graph is a DAG of Nodes. Leaves are Operands (mutable literals set by
// adapters) or immutable literals created when a constructor receives a plain
// Go value. Every interior node is an *Operator: one type carrying a Kind tag,
// an ordered list of children and, for the temporal kinds, state that lives
// outside the cache.
//
// EVALUATION MODEL:
//
// Value() computes on first read and caches the result. Reset() clears the
// cache and cascades to every child. Shared children (diamonds) are reset
// once per path that reaches them, which is harmless because Reset is
// idempotent. Until the next Reset, repeated reads return the cached value
// without recomputing, even if a leaf below was changed.
//
// Errors are never cached. A failed read leaves the operator empty so the
// next read tries again.
//
// TEMPORAL KINDS:
//
// Throttle, ReduceNoise, Swap and Cycler hold state that advances only when
// compute runs. Correctness therefore depends on computing at most once per
// Reset, which the cache guarantees. Throttle and Swap read their Clock at
// most once per compute.
//
// Throttle is the one kind that overrides Reset: while its period since the
// last sample has not elapsed it ignores the reset entirely, keeping its
// cached value and not cascading into its subtree.
//
// CONCURRENCY:
//
// None. A graph has one owner, the controller loop, and no method is safe
// for concurrent use.
package graph
