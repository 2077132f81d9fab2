package capability

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator counts tokens locally for providers that do not report
// usage. It is tiktoken-backed with lazy initialization; if the encoding
// cannot be loaded (offline environments) it falls back to a
// characters-per-token heuristic.
type TokenEstimator struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
}

// NewTokenEstimator creates an estimator for the given encoding, defaulting
// to cl100k_base.
func NewTokenEstimator(encoding string) *TokenEstimator {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TokenEstimator{encoding: encoding}
}

// Count returns the token count of text.
func (t *TokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err == nil {
			t.enc = enc
		}
	})
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	// Heuristic fallback, roughly four characters per token.
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
