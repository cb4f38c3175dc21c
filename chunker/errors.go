package chunker

import "errors"

// Common chunker errors
var (
	// ErrInvalidTokenLimit indicates token limit is invalid (<=0)
	ErrInvalidTokenLimit = errors.New("token limit must be positive")

	// ErrInvalidMaxDocuments indicates the per-chunk document cap is invalid (<=0)
	ErrInvalidMaxDocuments = errors.New("max documents per chunk must be positive")

	// ErrNilTokenizer indicates no tokenizer was supplied
	ErrNilTokenizer = errors.New("tokenizer cannot be nil")

	// ErrTokenizerFailed indicates tokenization failed
	ErrTokenizerFailed = errors.New("tokenization failed")
)
