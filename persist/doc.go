// Package persist defines the append-only snapshot store contract consumed
// by the kernel, plus a process-local in-memory implementation.
//
// Persistors never update or delete a stored snapshot on behalf of a caller;
// retention and compaction are internal concerns of an implementation,
// invisible beyond Stats. Additional backends (SQLite, object storage, ...)
// live in sub-packages without changing any calling code; only the wiring
// layer decides which implementation to instantiate.
package persist
