package remind

import "errors"

var (
	// ErrNotFound is returned when an operation references a timer id absent
	// from the owner's set.
	ErrNotFound = errors.New("reminder not found")

	// ErrInvalidRecurrence is returned when a recurrence interval is below
	// the one-minute floor. Rejected before any mutation.
	ErrInvalidRecurrence = errors.New("recurring interval must be at least 1 minute")

	// ErrNeedsInterval is returned by ToggleRecurrence when enabling
	// recurrence without specifying an interval.
	ErrNeedsInterval = errors.New("recurring interval required")
)
