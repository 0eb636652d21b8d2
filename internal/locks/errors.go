package locks

import "errors"

// Domain errors for the locks package.
var (
	// ErrLockHeld is returned when a scoped acquisition finds the
	// category already held by another operation.
	ErrLockHeld = errors.New("locks: category already held")
)
