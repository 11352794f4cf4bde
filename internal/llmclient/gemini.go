package llmclient

import (
	"context"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiAdapter is a thin wrapper around the official genai client. It
// only performs the API call itself; retries, rate limiting, logging and
// circuit breaking are applied by internal/llm's Middleware chain, not
// here.
type GeminiAdapter struct {
	cli      *genai.Client
	model    string
	tokenCap int
}

// NewGeminiAdapter builds an adapter for the given model. apiKey is passed
// through genai.ClientConfig; the genai SDK also honors GEMINI_API_KEY /
// GOOGLE_API_KEY from the environment if apiKey is empty.
func NewGeminiAdapter(ctx context.Context, apiKey, model string, tokenCap int) (*GeminiAdapter, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if tokenCap <= 0 {
		tokenCap = 32000
	}
	return &GeminiAdapter{cli: cli, model: model, tokenCap: tokenCap}, nil
}

func (g *GeminiAdapter) Name() string          { return "gemini:" + g.model }
func (g *GeminiAdapter) Close() error          { return nil }
func (g *GeminiAdapter) TokenCapacity() int    { return g.tokenCap }
func (g *GeminiAdapter) SupportsVision() bool  { return true }
func (g *GeminiAdapter) CountTokens(s string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return CountTokens(s)
}

func (g *GeminiAdapter) GenerateJSON(ctx context.Context, req Request) (Response, error) {
	parts := []*genai.Part{}
	if req.SystemPrompt != "" {
		parts = append(parts, &genai.Part{Text: req.SystemPrompt})
	}
	parts = append(parts, &genai.Part{Text: req.Prompt})
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: mime, Data: req.Image},
		})
	}

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		cfg.Temperature = &temp
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: parts}},
		cfg,
	)
	if err != nil {
		return Response{}, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Response{}, ErrInvalidJSON
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	out := Response{JSON: []byte(text)}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
