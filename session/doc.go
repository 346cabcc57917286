// Package session manages the lifecycle of long-lived conversational/task
// units: creation, activity tracking, pause/resume transitions, expiry,
// recovery after downtime gaps, and eviction under a max-session bound.
//
// The Registry owns every Session and its backing state store. External code
// never reaches into the registry's maps directly: all mutation goes
// through registry methods, and lookups return defensive copies. Session
// state (the namespaced key/value store) is allocated from a state.Arena and
// released at exactly the lifecycle points a session is destroyed: explicit
// close, expiry, and LRU eviction.
package session
