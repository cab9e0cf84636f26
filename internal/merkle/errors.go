package merkle

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyEntitlements indicates an entitlement list with no entries.
	ErrEmptyEntitlements = errors.New("merkle: no entitlements")

	// ErrDuplicateEntitlement indicates an address listed more than once.
	ErrDuplicateEntitlement = errors.New("merkle: duplicate entitlement")

	// ErrNonPositiveAmount indicates an amount that is zero or negative.
	ErrNonPositiveAmount = errors.New("merkle: amount must be positive")

	// ErrAmountOverflow indicates an amount that does not fit in a uint256.
	ErrAmountOverflow = errors.New("merkle: amount exceeds uint256")

	// ErrMalformedAddress indicates an address that is not 20 hex bytes.
	ErrMalformedAddress = errors.New("merkle: malformed address")

	// ErrMalformedAmount indicates an amount that is not a base-10 integer.
	ErrMalformedAmount = errors.New("merkle: malformed amount")

	// ErrLeafNotFound indicates the entitlement is not part of the tree.
	ErrLeafNotFound = errors.New("merkle: entitlement not in tree")

	// ErrArtifactMismatch indicates a distribution artifact that does not
	// agree with its own root or total supply.
	ErrArtifactMismatch = errors.New("merkle: artifact mismatch")
)

// ValidationError pinpoints the entry and field that failed validation.
type ValidationError struct {
	Index int
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%v: position %d (%s)", e.Err, e.Index, e.Field)
	}
	return fmt.Sprintf("%v: %s at position %d (%s)", e.Err, e.Value, e.Index, e.Field)
}

func (e *ValidationError) Unwrap() error { return e.Err }
