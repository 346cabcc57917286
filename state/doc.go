// Package state implements the namespace-isolated key/value stores backing
// execution contexts and sessions.
//
// Three building blocks:
//
//   - Store: a bounded, two-level namespace → key → value map scoped to a
//     single owning context. Limits are enforced strictly before mutation so
//     a failed Set never leaves a partially created namespace behind.
//   - Arena: an explicit handle registry replacing identity-keyed lifetime
//     tracking. State is reclaimed by calling Release at the exact points the
//     owning session or context is destroyed, never by implicit collection.
//   - GlobalStore: the single sanctioned process-wide shared store, intended
//     for cross-tenant configuration only. It is unscoped and unbounded;
//     never put tenant data in it.
package state
