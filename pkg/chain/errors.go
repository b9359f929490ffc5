package chain

import (
	"errors"
	"fmt"

	"github.com/nainya/orgstore/pkg/storage"
)

var (
	// ErrInvalidArgument indicates input rejected before any state change
	ErrInvalidArgument = errors.New("chain: invalid argument")

	// ErrNotFound indicates an unknown version or accountability
	ErrNotFound = fmt.Errorf("chain: %w", storage.ErrNotFound)

	// ErrEmptyChain indicates an accountability without any recorded version
	ErrEmptyChain = fmt.Errorf("%w: no versions recorded", ErrNotFound)

	// ErrNotHead indicates a delete of a version that is not the chain head
	ErrNotHead = fmt.Errorf("%w: only the head version can be deleted", ErrInvalidArgument)

	// ErrInvariantViolation is matched by every *InvariantViolation
	ErrInvariantViolation = errors.New("chain: invariant violation")
)

// Invariant names
const (
	InvariantConnectivity = "connectivity"
	InvariantErasedAtHead = "erased-at-head"
	InvariantDateInterval = "date-interval"
)

// InvariantViolation reports a broken structural rule of a chain. It signals
// corrupted state rather than bad input; the operation that produced it has
// been rolled back.
type InvariantViolation struct {
	Invariant string
	VersionID string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	if e.VersionID == "" {
		return fmt.Sprintf("chain: %s invariant violated: %s", e.Invariant, e.Detail)
	}
	return fmt.Sprintf("chain: %s invariant violated by version %s: %s", e.Invariant, e.VersionID, e.Detail)
}

// Is makes errors.Is(err, ErrInvariantViolation) match
func (e *InvariantViolation) Is(target error) bool {
	return target == ErrInvariantViolation
}

func violation(invariant, versionID, format string, args ...interface{}) *InvariantViolation {
	return &InvariantViolation{
		Invariant: invariant,
		VersionID: versionID,
		Detail:    fmt.Sprintf(format, args...),
	}
}
