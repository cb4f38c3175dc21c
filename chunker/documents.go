package chunker

import (
	"fmt"

	"github.com/botirk38/llmtopics/tokenizer"
)

// DocumentChunker packs whole documents into token-bounded chunks.
type DocumentChunker struct {
	config ChunkConfig
	codec  tokenizer.Codec
}

// NewDocumentChunker creates a DocumentChunker with the given configuration
// and tokenizer.
func NewDocumentChunker(config ChunkConfig, codec tokenizer.Codec) (*DocumentChunker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunk config: %w", err)
	}
	if codec == nil {
		return nil, ErrNilTokenizer
	}
	return &DocumentChunker{
		config: config,
		codec:  codec,
	}, nil
}

// Config returns the chunker configuration.
func (c *DocumentChunker) Config() ChunkConfig {
	return c.config
}

// CountTokens counts the number of tokens in the given text.
func (c *DocumentChunker) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	ids, err := c.codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTokenizerFailed, err)
	}
	return len(ids), nil
}

// ChunkDocuments walks documents in order, keeping a current chunk and its
// running token count:
//   - a document of TokenLimit tokens or more is truncated to exactly
//     TokenLimit tokens and emitted as its own chunk;
//   - a document that keeps the running count below TokenLimit, while the
//     current chunk holds fewer than MaxDocuments, is appended;
//   - otherwise the document starts a new chunk.
func (c *DocumentChunker) ChunkDocuments(documents []string) ([]Chunk, error) {
	var chunks []Chunk
	var current *Chunk

	startChunk := func() *Chunk {
		chunks = append(chunks, Chunk{Index: len(chunks)})
		return &chunks[len(chunks)-1]
	}

	for i, doc := range documents {
		ids, err := c.codec.Encode(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: document %d: %v", ErrTokenizerFailed, i, err)
		}
		tokens := len(ids)

		switch {
		case tokens >= c.config.TokenLimit:
			truncated, err := c.codec.Decode(ids[:c.config.TokenLimit])
			if err != nil {
				return nil, fmt.Errorf("%w: decode document %d: %v", ErrTokenizerFailed, i, err)
			}
			current = startChunk()
			current.Documents = []string{truncated}
			current.Tokens = c.config.TokenLimit
			current.Truncated = true

		case current != nil && current.Tokens+tokens < c.config.TokenLimit && len(current.Documents) < c.config.MaxDocuments:
			current.Documents = append(current.Documents, doc)
			current.Tokens += tokens

		default:
			current = startChunk()
			current.Documents = []string{doc}
			current.Tokens = tokens
		}
	}

	return chunks, nil
}
