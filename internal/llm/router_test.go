package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apploom/internal/errkind"
	"apploom/internal/llmclient"
)

func TestRouter_FallsBackOnFailure(t *testing.T) {
	r := NewRouter()

	failing := llmclient.NewFakeAdapter(nil)
	failing.NameOverride = "flaky"
	failing.Err = errors.New("boom")
	r.Register("flaky", failing, llmclient.Metadata{Provider: "flaky"}, []TaskType{TaskCode})

	good := llmclient.NewFakeAdapter(json.RawMessage(`{"status":"ok"}`))
	good.NameOverride = "stable"
	r.Register("stable", good, llmclient.Metadata{Provider: "stable"}, []TaskType{TaskCode})

	resp, name, err := r.Generate(context.Background(), TaskCode, llmclient.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "stable", name)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.JSON))
}

func TestRouter_CircuitBreakerOpensAfterThreshold(t *testing.T) {
	r := NewRouter()
	failing := llmclient.NewFakeAdapter(nil)
	failing.Err = errors.New("down")
	r.Register("only", failing, llmclient.Metadata{Provider: "only"}, []TaskType{TaskReasoning})

	for i := 0; i < breakerFailureThreshold; i++ {
		_, _, err := r.Generate(context.Background(), TaskReasoning, llmclient.Request{})
		assert.Error(t, err)
	}

	health := r.Health()["only"]
	assert.True(t, health.CircuitOpen)
	assert.GreaterOrEqual(t, health.ConsecutiveFailures, breakerFailureThreshold)

	_, _, err := r.Generate(context.Background(), TaskReasoning, llmclient.Request{})
	assert.True(t, errkind.IsKind(err, errkind.ProviderUnavailable))
}

func TestRouter_ProviderOverride(t *testing.T) {
	r := NewRouter()
	a := llmclient.NewFakeAdapter(json.RawMessage(`{"from":"a"}`))
	b := llmclient.NewFakeAdapter(json.RawMessage(`{"from":"b"}`))
	r.Register("a", a, llmclient.Metadata{Provider: "a"}, []TaskType{TaskUIText})
	r.Register("b", b, llmclient.Metadata{Provider: "b"}, []TaskType{TaskUIText})

	ctx := WithProviderOverride(context.Background(), "b")
	resp, name, err := r.Generate(ctx, TaskUIText, llmclient.Request{})
	require.NoError(t, err)
	assert.Equal(t, "b", name)
	assert.JSONEq(t, `{"from":"b"}`, string(resp.JSON))
}

func TestRouter_NoCandidates(t *testing.T) {
	r := NewRouter()
	_, _, err := r.Generate(context.Background(), TaskCode, llmclient.Request{})
	assert.True(t, errkind.IsKind(err, errkind.ProviderUnavailable))
}

func TestRouter_SetPriority_OrdersTiersBeforeProviders(t *testing.T) {
	r := NewRouter()
	generalist := llmclient.NewFakeAdapter(json.RawMessage(`{"from":"generalist"}`))
	generalist.NameOverride = "generalist"
	r.Register("generalist", generalist, llmclient.Metadata{Provider: "generalist"}, []TaskType{TaskReasoning})

	specialist := llmclient.NewFakeAdapter(json.RawMessage(`{"from":"specialist"}`))
	specialist.NameOverride = "specialist"
	r.Register("specialist", specialist, llmclient.Metadata{Provider: "specialist"}, []TaskType{TaskReasoning})

	// Registration order would try generalist first; an explicit tier
	// assignment must override that and put the specialist first.
	r.SetPriority(TaskReasoning, [][]string{{"specialist"}, {"generalist"}})

	resp, name, err := r.Generate(context.Background(), TaskReasoning, llmclient.Request{})
	require.NoError(t, err)
	assert.Equal(t, "specialist", name)
	assert.JSONEq(t, `{"from":"specialist"}`, string(resp.JSON))
}

func TestRouter_SameTierOrdersBySuccessRateThenLatency(t *testing.T) {
	r := NewRouter()
	fast := llmclient.NewFakeAdapter(json.RawMessage(`{"from":"fast"}`))
	fast.NameOverride = "fast"
	r.Register("fast", fast, llmclient.Metadata{Provider: "fast"}, []TaskType{TaskCode})

	slow := llmclient.NewFakeAdapter(json.RawMessage(`{"from":"slow"}`))
	slow.NameOverride = "slow"
	r.Register("slow", slow, llmclient.Metadata{Provider: "slow"}, []TaskType{TaskCode})

	unreliable := llmclient.NewFakeAdapter(json.RawMessage(`{"from":"unreliable"}`))
	unreliable.NameOverride = "unreliable"
	r.Register("unreliable", unreliable, llmclient.Metadata{Provider: "unreliable"}, []TaskType{TaskCode})

	// All three share one tier: neither config nor registration order
	// should decide between them, only observed health.
	r.SetPriority(TaskCode, [][]string{{"fast", "slow", "unreliable"}})

	fastStats, _ := r.stats.Get("fast")
	fastStats.recordSuccess(10 * time.Millisecond)
	fastStats.recordSuccess(10 * time.Millisecond)

	slowStats, _ := r.stats.Get("slow")
	slowStats.recordSuccess(500 * time.Millisecond)
	slowStats.recordSuccess(500 * time.Millisecond)

	unreliableStats, _ := r.stats.Get("unreliable")
	unreliableStats.recordSuccess(1 * time.Millisecond)
	unreliableStats.recordFailure()

	order := r.candidateOrder(context.Background(), TaskCode)
	require.Equal(t, []string{"fast", "slow", "unreliable"}, order)
}
