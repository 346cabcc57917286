// Package kernel coordinates execution contexts over sessions: admission
// checks and quota enforcement before work runs, pause/resume through
// content-hashed snapshots, and serialized atomic operations with retries.
package kernel
