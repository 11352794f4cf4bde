// Package llm implements the Model Router (§4.2): task-based provider
// selection, a functional middleware chain for retries/rate limiting/
// logging, and a circuit breaker that removes an unhealthy provider from
// rotation and re-probes it after a cooldown. Shaped like a
// Resolve/Candidates/BuildClient registry with a Wrap-based
// Retry/RateLimit middleware chain and context-based selection
// overrides, adapted from a provider+model-level registry to this
// engine's simpler provider+task priority list.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"apploom/internal/errkind"
	"apploom/internal/llmclient"
)

const (
	breakerFailureThreshold = 3
	breakerCooldown         = 60 * time.Second
)

// providerStats tracks the rolling health of one provider, used by the
// circuit breaker to decide whether to keep routing to it.
type providerStats struct {
	mu                  sync.Mutex
	attempts            int
	successes           int
	failures            int
	consecutiveFailures int
	lastFailureAt       time.Time
	totalLatency        time.Duration
}

func (s *providerStats) recordSuccess(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	s.successes++
	s.consecutiveFailures = 0
	s.totalLatency += latency
}

func (s *providerStats) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	s.failures++
	s.consecutiveFailures++
	s.lastFailureAt = time.Now()
}

// open reports whether the breaker should currently skip this provider.
// Once the cooldown has elapsed the breaker goes half-open: the next
// call is allowed through as a probe.
func (s *providerStats) open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consecutiveFailures < breakerFailureThreshold {
		return false
	}
	return time.Since(s.lastFailureAt) < breakerCooldown
}

func (s *providerStats) snapshot() ProviderHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	avg := time.Duration(0)
	if s.successes > 0 {
		avg = s.totalLatency / time.Duration(s.successes)
	}
	return ProviderHealth{
		Attempts:            s.attempts,
		Successes:           s.successes,
		Failures:            s.failures,
		ConsecutiveFailures: s.consecutiveFailures,
		AverageLatency:      avg,
		CircuitOpen:         s.consecutiveFailures >= breakerFailureThreshold && time.Since(s.lastFailureAt) < breakerCooldown,
	}
}

// ProviderHealth is the externally-visible health snapshot for one
// provider, used by operational tooling and the "Router liveness"
// testable property.
type ProviderHealth struct {
	Attempts            int
	Successes           int
	Failures            int
	ConsecutiveFailures int
	AverageLatency      time.Duration
	CircuitOpen         bool
}

type candidate struct {
	provider string
	client   llmclient.LLMClient
	meta     llmclient.Metadata
}

// Router selects a provider for a task, applies the middleware chain, and
// falls back to the next candidate in priority order on failure.
//
// priority holds, per task, an ordered list of tiers: the outer slice
// is tried front to back, and providers within the same inner slice
// (tier) are considered equally preferred by configuration and are
// instead ordered at call time by rolling success rate, then by
// average latency.
type Router struct {
	mu        sync.RWMutex
	providers map[string]candidate
	priority  map[TaskType][][]string
	stats     *lru.Cache[string, *providerStats]
	mws       []Middleware
}

// NewRouter builds a Router with the given cross-cutting middleware
// applied to every registered client (e.g. Retry, logging). Per-provider
// rate limiting is layered in by Register, since each provider has its
// own limits.
func NewRouter(mws ...Middleware) *Router {
	stats, _ := lru.New[string, *providerStats](64)
	return &Router{
		providers: map[string]candidate{},
		priority:  map[TaskType][][]string{},
		stats:     stats,
		mws:       mws,
	}
}

// Register adds a provider's client under the given name, with an
// optional per-provider rate limit middleware, and appends it as its
// own tier to the priority list for every task type it should serve.
// Providers registered without a later SetPriority call each get their
// own singleton tier, so they're tried in registration order, same as
// before tiers existed.
func (r *Router) Register(name string, client llmclient.LLMClient, meta llmclient.Metadata, tasks []TaskType, perProviderMW ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wrapped := Wrap(client, append(perProviderMW, r.mws...)...)
	r.providers[name] = candidate{provider: name, client: wrapped, meta: meta}
	r.stats.Add(name, &providerStats{})

	for _, t := range tasks {
		t = normalizeTask(t)
		r.priority[t] = append(r.priority[t], []string{name})
	}
}

// SetPriority overrides the candidate tiers for a task type explicitly,
// e.g. loaded from configuration rather than registration order. Each
// inner slice is one priority tier, tried in the given order; providers
// sharing a tier are ordered between themselves by rolling success
// rate and average latency at call time.
func (r *Router) SetPriority(task TaskType, tiers [][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make([][]string, len(tiers))
	for i, tier := range tiers {
		copied[i] = append([]string(nil), tier...)
	}
	r.priority[normalizeTask(task)] = copied
}

// Health returns a snapshot of every registered provider's stats.
func (r *Router) Health() map[string]ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ProviderHealth, len(r.providers))
	for name := range r.providers {
		if s, ok := r.stats.Get(name); ok {
			out[name] = s.snapshot()
		}
	}
	return out
}

// Generate routes req for the given task, trying candidates in priority
// order (honoring any context provider override), skipping providers
// whose circuit breaker is open, and falling back to the next candidate
// on failure. It returns errkind.ProviderUnavailable if every candidate
// is exhausted.
func (r *Router) Generate(ctx context.Context, task TaskType, req llmclient.Request) (llmclient.Response, string, error) {
	order := r.candidateOrder(ctx, task)
	if len(order) == 0 {
		return llmclient.Response{}, "", errkind.New(errkind.ProviderUnavailable, fmt.Sprintf("no provider registered for task %q", task))
	}

	var lastErr error
	for _, name := range order {
		r.mu.RLock()
		cand, ok := r.providers[name]
		stats, _ := r.stats.Get(name)
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if stats != nil && stats.open() {
			continue
		}

		start := time.Now()
		resp, err := cand.client.GenerateJSON(ctx, req)
		if err == nil {
			if stats != nil {
				stats.recordSuccess(time.Since(start))
			}
			return resp, name, nil
		}
		if stats != nil {
			stats.recordFailure()
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return llmclient.Response{}, name, errkind.Wrap(errkind.Cancelled, "generation cancelled", ctx.Err())
		default:
		}
	}

	if lastErr == nil {
		return llmclient.Response{}, "", errkind.New(errkind.ProviderUnavailable, "all candidate providers are circuit-open")
	}
	return llmclient.Response{}, "", errkind.Wrap(errkind.ProviderUnavailable, "all candidate providers failed", lastErr)
}

// candidateOrder returns the providers registered for task, tier by
// tier in priority order; within a tier, providers are stable-sorted
// by rolling success rate (descending) and tie-broken by average
// latency (ascending), so configuration sets the coarse order and
// observed health breaks ties inside it.
func (r *Router) candidateOrder(ctx context.Context, task TaskType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if override, ok := ProviderOverrideFrom(ctx); ok {
		if _, exists := r.providers[override]; exists {
			return []string{override}
		}
	}

	tiers := r.priority[normalizeTask(task)]
	out := make([]string, 0, len(tiers))
	for _, tier := range tiers {
		if len(tier) > 1 {
			members := append([]string(nil), tier...)
			sort.SliceStable(members, func(i, j int) bool {
				ri, li := r.providerRateAndLatencyLocked(members[i])
				rj, lj := r.providerRateAndLatencyLocked(members[j])
				if ri != rj {
					return ri > rj
				}
				return li < lj
			})
			out = append(out, members...)
			continue
		}
		out = append(out, tier...)
	}
	return out
}

// providerRateAndLatencyLocked returns name's rolling success rate (0
// when it has never been attempted) and average latency of its
// successful calls. Callers must already hold r.mu.
func (r *Router) providerRateAndLatencyLocked(name string) (rate float64, avgLatency time.Duration) {
	stats, ok := r.stats.Get(name)
	if !ok {
		return 0, 0
	}
	health := stats.snapshot()
	if health.Attempts > 0 {
		rate = float64(health.Successes) / float64(health.Attempts)
	}
	return rate, health.AverageLatency
}

// Providers returns the registered provider names, sorted, for
// diagnostics and tests.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
