package llmclient

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter memoizes the cl100k_base BPE encoder. Providers that do not
// share OpenAI's tokenizer still use it as an estimate — spec.md only
// requires a consistent, monotonic token cost, not bit-exact provider
// accounting.
var (
	tokenCounterOnce sync.Once
	tokenCounter     *tiktoken.Tiktoken
)

// CountTokens returns the BPE token count of text, falling back to a
// whitespace-word heuristic (words * 4/3, matching English subword
// density) if the encoder could not be loaded — e.g. no network access to
// fetch the tiktoken vocabulary file at first use.
func CountTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	tokenCounterOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenCounter = enc
		}
	})

	if tokenCounter != nil {
		return len(tokenCounter.Encode(text, nil, nil))
	}
	return whitespaceTokenEstimate(text)
}

func whitespaceTokenEstimate(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	return (len(words)*4 + 2) / 3
}
