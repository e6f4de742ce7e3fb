// Package tokenizer provides model-aware token counting for response budgeting.
package tokenizer

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"
)

// FallbackEncoding is used when a model identifier has no registered
// tiktoken encoding. cl100k_base is a close approximation for all current
// providers.
const FallbackEncoding = "cl100k_base"

// encodingCacheSize bounds the number of live encodings. Encodings are
// expensive to construct, and a deployment only ever talks to a handful of
// distinct models.
const encodingCacheSize = 4

// SerializationError reports a value that cannot be rendered for measurement.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return "tokenizer: value not serializable: " + e.Err.Error()
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Estimator counts tokens using per-model tiktoken encodings, cached in a
// small fixed-capacity LRU owned by the estimator. A nil cache entry records
// a model whose encoding could not be loaded, so the load is attempted at
// most once per model.
type Estimator struct {
	model string
	cache *lru.Cache[string, *tiktoken.Tiktoken]
	load  func(model string) (*tiktoken.Tiktoken, error)
}

// New creates an Estimator bound to the given default model identifier.
func New(model string) (*Estimator, error) {
	cache, err := lru.New[string, *tiktoken.Tiktoken](encodingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("tokenizer.New: %w", err)
	}
	return &Estimator{model: model, cache: cache, load: loadEncoding}, nil
}

// loadEncoding resolves a model's encoding, falling back to FallbackEncoding
// for unrecognized model identifiers.
func loadEncoding(model string) (*tiktoken.Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return tiktoken.GetEncoding(FallbackEncoding)
	}
	return enc, nil
}

// CountTokens returns the token count of text under the default model.
// Deterministic for a given model identifier.
func (e *Estimator) CountTokens(text string) int {
	return e.CountTokensForModel(e.model, text)
}

// CountTokensForModel counts tokens under a specific model's encoding.
// Unrecognized models fall back to FallbackEncoding rather than failing.
func (e *Estimator) CountTokensForModel(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := e.encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	// Last resort when no encoding can be loaded: ~4 characters per token.
	return (utf8.RuneCountInString(text) + 3) / 4
}

// EstimateValue serializes v in its compact wire form and counts its tokens.
// The compact form is exactly what the responder transmits, so the estimate
// matches the delivered cost. A value that cannot be serialized fails with
// *SerializationError — it never silently measures as 0.
func (e *Estimator) EstimateValue(v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, &SerializationError{Err: err}
	}
	return e.CountTokens(string(data)), nil
}

func (e *Estimator) encodingFor(model string) *tiktoken.Tiktoken {
	if enc, ok := e.cache.Get(model); ok {
		return enc
	}
	enc, err := e.load(model)
	if err != nil {
		enc = nil // remember the failure; chars/4 from here on
	}
	e.cache.Add(model, enc)
	return enc
}
