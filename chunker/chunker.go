package chunker

// Chunker defines the interface for document packing strategies.
// Implementations group an ordered sequence of documents into batches that
// each fit one topic-creation request.
type Chunker interface {
	// ChunkDocuments partitions documents into ordered chunks.
	// Every document appears in exactly one chunk, in its original order.
	ChunkDocuments(documents []string) ([]Chunk, error)

	// CountTokens counts the number of tokens in the given text.
	// This delegates to the underlying tokenizer.
	CountTokens(text string) (int, error)
}

// ChunkConfig holds configuration for document packing.
type ChunkConfig struct {
	// TokenLimit bounds the cumulative token count of a chunk.
	// A chunk's running total stays strictly below it, except for a single
	// oversized document, which is truncated to exactly TokenLimit tokens.
	// Default: 4000
	TokenLimit int

	// MaxDocuments bounds how many documents a chunk may hold.
	// Default: 10
	MaxDocuments int
}

// Chunk represents a group of documents sent together in one request.
type Chunk struct {
	// Documents are the chunk's texts, in input order
	Documents []string

	// Tokens is the cumulative token count of Documents
	Tokens int

	// Index is the chunk's position in the sequence (0-based)
	Index int

	// Truncated reports whether the chunk holds a single document cut to
	// TokenLimit tokens
	Truncated bool
}

// DefaultChunkConfig returns the default chunking configuration.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		TokenLimit:   4000,
		MaxDocuments: 10,
	}
}

// Validate checks if the chunk configuration is valid.
func (c ChunkConfig) Validate() error {
	if c.TokenLimit <= 0 {
		return ErrInvalidTokenLimit
	}
	if c.MaxDocuments <= 0 {
		return ErrInvalidMaxDocuments
	}
	return nil
}

// MaxDocumentsFor derives a per-chunk document cap from the corpus size:
// one eighth of the documents, never less than one.
func MaxDocumentsFor(total int) int {
	if n := total / 8; n > 0 {
		return n
	}
	return 1
}
