// Package tokenizer provides the encode/decode pair used to measure and
// truncate documents in token units.
package tokenizer

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// DefaultModel is the model family whose encoding is used when none is given.
const DefaultModel = "gpt-3.5-turbo"

// Codec turns text into token ids and back.
// Decoding a truncated id sequence need not reproduce the original text
// exactly, only a valid shorter text.
type Codec interface {
	Encode(text string) ([]uint, error)
	Decode(ids []uint) (string, error)
}

// Tiktoken is a Codec backed by tiktoken encodings.
type Tiktoken struct {
	codec tokenizer.Codec
}

// NewTiktoken returns a codec for the given tiktoken encoding (for example
// cl100k_base). An empty name selects cl100k_base.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc := tokenizer.Encoding(strings.TrimSpace(encoding))
	if enc == "" {
		enc = tokenizer.Cl100kBase
	}
	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("tiktoken encoding %q: %w", enc, err)
	}
	return &Tiktoken{codec: codec}, nil
}

// ForModel returns a codec keyed to a model family, falling back to
// cl100k_base for models tiktoken does not know.
func ForModel(model string) (*Tiktoken, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		return NewTiktoken("")
	}
	return &Tiktoken{codec: codec}, nil
}

// Encode tokenizes text.
func (t *Tiktoken) Encode(text string) ([]uint, error) {
	if text == "" {
		return nil, nil
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Decode turns ids back into text.
func (t *Tiktoken) Decode(ids []uint) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}
	return t.codec.Decode(ids)
}

// Name returns the underlying encoding name.
func (t *Tiktoken) Name() string {
	return t.codec.GetName()
}
