package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AnthropicAdapter speaks the Messages API directly over net/http. No
// Anthropic Go SDK appears anywhere in the retrieved example pack, so —
// unlike Gemini (genai) and OpenAI (go-openai) — this adapter implements
// the minimal wire contract itself rather than reaching for a library
// that was never grounded. It leads the Reasoning task type's priority
// (§4.2), where its longer context window and stronger multi-step
// reasoning are worth the extra maintenance of a hand-rolled client, and
// also serves the Code and UIText tasks as a fallback.
type AnthropicAdapter struct {
	apiKey     string
	model      string
	tokenCap   int
	httpClient *http.Client
	baseURL    string
}

const anthropicVersion = "2023-06-01"

func NewAnthropicAdapter(apiKey, model string, tokenCap int) *AnthropicAdapter {
	if tokenCap <= 0 {
		tokenCap = 64000
	}
	return &AnthropicAdapter{
		apiKey:     apiKey,
		model:      model,
		tokenCap:   tokenCap,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    "https://api.anthropic.com/v1/messages",
	}
}

func (a *AnthropicAdapter) Name() string         { return "anthropic:" + a.model }
func (a *AnthropicAdapter) Close() error         { return nil }
func (a *AnthropicAdapter) TokenCapacity() int   { return a.tokenCap }
func (a *AnthropicAdapter) SupportsVision() bool { return true }
func (a *AnthropicAdapter) CountTokens(s string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return CountTokens(s)
}

type anthropicContentBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Source *struct {
		Type      string `json:"type"`
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	System      string              `json:"system,omitempty"`
	Messages    []anthropicMessage  `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float32             `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *AnthropicAdapter) GenerateJSON(ctx context.Context, req Request) (Response, error) {
	blocks := []anthropicContentBlock{{Type: "text", Text: req.Prompt + "\n\nRespond with a single JSON value and nothing else."}}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		blocks = append(blocks, anthropicContentBlock{
			Type: "image",
			Source: &struct {
				Type      string `json:"type"`
				MediaType string `json:"media_type"`
				Data      string `json:"data"`
			}{Type: "base64", MediaType: mime, Data: encodeImage(req.Image)},
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := anthropicRequest{
		Model:       a.model,
		System:      req.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: blocks}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, NewPermanentError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(payload))
	if err != nil {
		return Response{}, NewPermanentError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, fmt.Errorf("anthropic: decode response: %w", err)
	}
	if parsed.Error != nil {
		err := fmt.Errorf("anthropic: %s: %s", parsed.Error.Type, parsed.Error.Message)
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return Response{}, NewPermanentError(err)
		}
		return Response{}, err
	}
	if len(parsed.Content) == 0 {
		return Response{}, ErrInvalidJSON
	}
	return Response{
		JSON:         []byte(parsed.Content[0].Text),
		PromptTokens: parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}
