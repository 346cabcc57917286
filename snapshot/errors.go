package snapshot

import "fmt"

// CorruptError reports a snapshot whose recomputed digest does not match its
// recorded hash, or a delta that does not belong to the base it claims.
// Corruption is fatal to the operation that detected it and is never
// silently repaired.
type CorruptError struct {
	Hash     string
	Computed string
	Reason   string
}

func (e *CorruptError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("corrupt snapshot %s: %s", e.Hash, e.Reason)
	}
	return fmt.Sprintf("corrupt snapshot %s: recomputed digest %s", e.Hash, e.Computed)
}

// Code returns the stable error code for programmatic branching.
func (e *CorruptError) Code() string { return "CORRUPT_SNAPSHOT" }
