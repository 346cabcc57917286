package persist

import "fmt"

// NotFoundError is returned when no snapshot exists for the requested hash.
type NotFoundError struct {
	Hash string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("snapshot not found: %s", e.Hash)
}

// Code returns the stable error code for programmatic branching.
func (e *NotFoundError) Code() string { return "SNAPSHOT_NOT_FOUND" }

// ChainError is returned when a delta snapshot's chain cannot be resolved
// because a base snapshot is missing. An incomplete chain is surfaced as an
// error, never as a silent partial result.
type ChainError struct {
	Hash        string
	MissingBase string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("broken snapshot chain at %s: missing base %s", e.Hash, e.MissingBase)
}

// Code returns the stable error code for programmatic branching.
func (e *ChainError) Code() string { return "BROKEN_CHAIN" }
