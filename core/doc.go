// Package core provides the foundational domain types shared across the
// KernelMesh runtime. It defines:
//
//   - Events (immutable, ordered records of what happened during execution)
//   - Identifier generation used for sessions, snapshots and execution contexts
//
// Higher level concerns (state isolation, snapshot encoding, persistence,
// session lifecycle, admission) live in their own packages and depend on core,
// never the other way around.
package core
