// Package snapshot implements deterministic serialization and content
// hashing of execution histories and state, supporting full and delta
// snapshots for the pause/resume cycle.
//
// Hashing is order-independent for map-like values and order-dependent for
// arrays: two logically equal states whose map keys were inserted in a
// different order hash identically, while two event sequences in a different
// order hash differently. Values are canonicalized to their JSON object form
// before digesting, so a hash computed before persistence matches the hash
// recomputed after a load across process restarts.
package snapshot
