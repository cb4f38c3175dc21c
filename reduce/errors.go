package reduce

import "errors"

var (
	// ErrStalled is returned when too many consecutive merge replies were
	// rejected. The accompanying Result holds the last good topic set.
	ErrStalled = errors.New("reduction stalled")

	// ErrMalformedMerge describes a merge reply that cannot be applied.
	ErrMalformedMerge = errors.New("malformed merge instruction")

	ErrInvalidTarget = errors.New("target topic count must be positive")
)
