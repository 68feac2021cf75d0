package extract

import (
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts tokens with a fixed tiktoken encoding. A nil *TokenCounter
// is valid and reports -1 for every count.
type TokenCounter struct {
	codec    tokenizer.Codec
	encoding string
}

// NewTokenCounter loads the named encoding.
// Common encodings: "cl100k_base" (GPT-4), "o200k_base" (GPT-4o), "p50k_base" (GPT-3).
// Unknown names fall back to "cl100k_base".
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	var enc tokenizer.Encoding
	switch encoding {
	case "p50k_base":
		enc = tokenizer.P50kBase
	case "p50k_edit":
		enc = tokenizer.P50kEdit
	case "r50k_base":
		enc = tokenizer.R50kBase
	case "o200k_base":
		enc = tokenizer.O200kBase
	default:
		encoding = "cl100k_base"
		enc = tokenizer.Cl100kBase
	}

	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, err
	}
	return &TokenCounter{codec: codec, encoding: encoding}, nil
}

// Count returns the token count for text, or -1 when no codec is available or
// encoding fails, so callers can tell "not available" from a real zero.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		return -1
	}
	ids, _, err := tc.codec.Encode(text)
	if err != nil {
		return -1
	}
	return len(ids)
}

// Encoding returns the resolved encoding name.
func (tc *TokenCounter) Encoding() string {
	if tc == nil {
		return ""
	}
	return tc.encoding
}
