// Package llmclient defines the provider-facing LLM adapter contract
// (the "LLM Provider Adapter" component) and the concrete adapters that
// implement it: Gemini (vision-capable), OpenAI (fast code generation),
// Anthropic (reasoning specialist), and an in-memory fake used by
// tests. Cross-cutting concerns — retries, rate limiting,
// circuit breaking, logging — are layered on top by internal/llm via the
// same functional Middleware pattern the adapters themselves are wrapped
// with, not reimplemented per adapter.
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrInvalidJSON is returned when a provider's response has no usable
// content to extract JSON from.
var ErrInvalidJSON = errors.New("llmclient: invalid or empty response from provider")

// PermanentError marks a failure that will not resolve with retries (bad
// request, invalid API key, content policy rejection). Middleware.Retry
// must not retry an error satisfying errors.As into *PermanentError.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps err so callers can identify it via errors.As.
func NewPermanentError(err error) error { return &PermanentError{Err: err} }

// Request is the provider-agnostic shape of one generation call.
type Request struct {
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float32
	// Image, if non-nil, is attached as inline image data for adapters
	// that advertise SupportsVision. Adapters that do not support vision
	// ignore it.
	Image     []byte
	ImageMIME string
}

// Response is the provider-agnostic shape of one generation result.
type Response struct {
	JSON         json.RawMessage
	PromptTokens int
	OutputTokens int
}

// LLMClient is the contract every provider adapter and every middleware
// decorator satisfies.
type LLMClient interface {
	// Name identifies the adapter instance, e.g. "gemini:gemini-2.5-pro".
	Name() string
	// GenerateJSON asks the model to produce a JSON-only completion for
	// req and returns it as a raw, not-yet-validated message.
	GenerateJSON(ctx context.Context, req Request) (Response, error)
	// CountTokens estimates the token cost of text under this adapter's
	// tokenizer.
	CountTokens(text string) int
	// TokenCapacity reports the adapter's configured context window, in
	// tokens.
	TokenCapacity() int
	// SupportsVision reports whether GenerateJSON honors Request.Image.
	SupportsVision() bool
	Close() error
}

// Metadata describes a provider adapter's static capabilities, used by
// the Model Router to pick among candidates without instantiating them.
type Metadata struct {
	Provider          string
	Model             string
	MaxContextTokens  int
	SupportsVision    bool
	SupportsStreaming bool
}
