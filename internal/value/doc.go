// Package value provides the dynamically-typed scalar that flows through
// kabuki expression graphs.
//
// Value is a sealed interface. Only Null, Number, Bool, String and Object
// implement it. Numbers are always float64; operators that receive a value
// whose type does not support the requested operation must fail rather than
// coerce, so there is deliberately no truthiness or numeric-conversion helper
// beyond IsMainPath (used by the swap operator).
//
// Object has reference semantics. A single Object is shared between the
// remote-control poller that merges incoming key/value lines into it and the
// dict-source operators that read from it.
//
// This package imports nothing internal.
package value
