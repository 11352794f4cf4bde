package llmclient

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter wraps go-openai's chat completions API, requesting
// JSON-object mode. It is the default adapter for the Code task type
// (§4.2): fast, cheap completions for file-content generation.
type OpenAIAdapter struct {
	cli      *openai.Client
	model    string
	tokenCap int
}

func NewOpenAIAdapter(apiKey, model string, tokenCap int) *OpenAIAdapter {
	if tokenCap <= 0 {
		tokenCap = 16000
	}
	return &OpenAIAdapter{cli: openai.NewClient(apiKey), model: model, tokenCap: tokenCap}
}

func (o *OpenAIAdapter) Name() string         { return "openai:" + o.model }
func (o *OpenAIAdapter) Close() error         { return nil }
func (o *OpenAIAdapter) TokenCapacity() int   { return o.tokenCap }
func (o *OpenAIAdapter) SupportsVision() bool { return strings.Contains(o.model, "vision") || strings.HasPrefix(o.model, "gpt-4o") }
func (o *OpenAIAdapter) CountTokens(s string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return CountTokens(s)
}

func (o *OpenAIAdapter) GenerateJSON(ctx context.Context, req Request) (Response, error) {
	messages := []openai.ChatCompletionMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	userMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Image) > 0 && o.SupportsVision() {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		userMsg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL: "data:" + mime + ";base64," + encodeImage(req.Image),
			}},
		}
	} else {
		userMsg.Content = req.Prompt
	}
	messages = append(messages, userMsg)

	request := openai.ChatCompletionRequest{
		Model:          o.model,
		Messages:       messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
	if req.MaxTokens > 0 {
		request.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		request.Temperature = req.Temperature
	}

	resp, err := o.cli.CreateChatCompletion(ctx, request)
	if err != nil {
		return Response{}, err
	}
	if len(resp.Choices) == 0 {
		return Response{}, ErrInvalidJSON
	}
	return Response{
		JSON:         []byte(resp.Choices[0].Message.Content),
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
