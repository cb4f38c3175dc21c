package types

import "errors"

var (
	// ErrEmptyResponse is returned by a Completer when the service replied
	// without any usable content.
	ErrEmptyResponse = errors.New("completion response has no content")

	// ErrUnsupported is returned when a Completer cannot honour a request
	// option, such as Logprobs on a provider that has no such mode.
	ErrUnsupported = errors.New("request option not supported by provider")
)
