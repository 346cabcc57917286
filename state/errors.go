package state

import "fmt"

// LimitKind identifies which cap a LimitError refers to.
type LimitKind string

const (
	// LimitNamespaces is returned when creating a new namespace would exceed
	// the store's maximum namespace count.
	LimitNamespaces LimitKind = "namespaces"
	// LimitKeys is returned when inserting a new key would exceed a
	// namespace's maximum key count.
	LimitKeys LimitKind = "keys"
)

// LimitError reports a rejected mutation that would exceed a configured cap.
// The check happens before the mutation, so the store is unchanged when this
// error is returned.
type LimitError struct {
	Kind      LimitKind
	Namespace string
	Limit     int
}

func (e *LimitError) Error() string {
	switch e.Kind {
	case LimitNamespaces:
		return fmt.Sprintf("namespace limit reached: max %d namespaces", e.Limit)
	default:
		return fmt.Sprintf("key limit reached in namespace %q: max %d keys", e.Namespace, e.Limit)
	}
}

// Code returns the stable error code for programmatic branching.
func (e *LimitError) Code() string { return "LIMIT_EXCEEDED" }

// ValidationError reports a malformed namespace or key, rejected before any
// mutation takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Code returns the stable error code for programmatic branching.
func (e *ValidationError) Code() string { return "VALIDATION_ERROR" }
