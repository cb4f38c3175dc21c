package oneshot

import "errors"

// ErrCombinationFailed is returned when every combination attempt failed.
// No partial result exists, so callers must abort the run.
var ErrCombinationFailed = errors.New("topic combination failed")
