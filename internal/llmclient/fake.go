package llmclient

import (
	"context"
	"encoding/json"
)

// FakeAdapter returns a caller-supplied JSON payload (or a deterministic
// default) without touching the network. Used by tests.
type FakeAdapter struct {
	NameOverride string
	Payload      json.RawMessage
	Err          error
	tokenCap     int
	vision       bool
	calls        int
}

func NewFakeAdapter(payload json.RawMessage) *FakeAdapter {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return &FakeAdapter{Payload: payload, tokenCap: 8192}
}

func (f *FakeAdapter) Name() string {
	if f.NameOverride != "" {
		return f.NameOverride
	}
	return "fake:fake-model"
}
func (f *FakeAdapter) Close() error              { return nil }
func (f *FakeAdapter) TokenCapacity() int        { return f.tokenCap }
func (f *FakeAdapter) SupportsVision() bool      { return f.vision }
func (f *FakeAdapter) CountTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return len(s) / 4
}

// Calls reports how many times GenerateJSON was invoked.
func (f *FakeAdapter) Calls() int { return f.calls }

func (f *FakeAdapter) GenerateJSON(ctx context.Context, req Request) (Response, error) {
	f.calls++
	if f.Err != nil {
		return Response{}, f.Err
	}
	return Response{JSON: f.Payload, PromptTokens: len(req.Prompt) / 4, OutputTokens: len(f.Payload) / 4}, nil
}
