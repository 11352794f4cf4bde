package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"apploom/internal/config"
	"apploom/internal/llm"
	"apploom/internal/llmclient"
	"apploom/internal/memory"
	"apploom/internal/orchestrator"
	"apploom/internal/preview"
	"apploom/internal/registry"
	"apploom/internal/validation"
)

// app wires every process-wide collaborator (router, memory store,
// preview manager, registry, orchestrator) behind a thin HTTP surface,
// mirroring a gateway app type: one struct owning every collaborator,
// with New/start/shutdown as its lifecycle.
type app struct {
	cfg      config.Config
	registry *registry.Registry
	orch     *orchestrator.Orchestrator
	preview  *preview.Manager
	hub      *reloadHub
	server   *http.Server
}

func newApp(cfg config.Config) (*app, error) {
	router := llm.NewRouter(llm.WithLogging(log.Default(), cfg.Debug))
	registerProviders(router, cfg)

	var store memory.Store
	if cfg.MemoryPostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pgStore, err := memory.NewPostgresStore(ctx, cfg.MemoryPostgresDSN, nil)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		store = pgStore
	}

	previewMgr := preview.NewManager(preview.NewManagerConfig(
		cfg.PreviewPortRangeStart, cfg.PreviewPortRangeEnd,
		cfg.PreviewHardExpiry, cfg.PreviewIdleExpiry,
		cfg.PreviewMaxConcurrent, cfg.ContainerMemoryMiB, cfg.ContainerCPUs, cfg.ContainerNetwork,
	))
	if !previewMgr.Available() {
		log.Println("apploomd: no container runtime found, preview endpoints will report unavailable")
	}

	reg := registry.New(store, previewMgr)
	agents := orchestrator.NewAgents(router)
	validators := validation.NewRegistry(
		validation.GoSyntaxValidator{},
		validation.GoVetValidator{},
		validation.GofmtValidator{},
		validation.SecurityScanValidator{},
		validation.JSONStructuralValidator{},
		validation.JSLintValidator{},
		validation.JSFormatValidator{},
		validation.TSCompileValidator{},
	)
	orch := orchestrator.New(agents, validators, reg)

	a := &app{
		cfg:      cfg,
		registry: reg,
		orch:     orch,
		preview:  previewMgr,
		hub:      newReloadHub(previewMgr),
	}
	a.server = &http.Server{Handler: a.routes()}
	return a, nil
}

// registerProviders registers one provider per configured credential,
// each able to serve every task type as a fallback, then assigns the
// per-task tiers that make the task-appropriate provider the first
// candidate tried: Anthropic leads Reasoning (its longer, more
// deliberate context window suits planning), OpenAI leads Code (fast,
// cheap completions for file-content generation), and Gemini leads
// UIText (its multimodal support feeds the vision-aware agents). The
// other two registered providers trail as same-tier fallbacks, ordered
// between themselves by observed success rate and latency. A caller
// wanting a one-off provider for a single request uses
// Options.ProviderOverride instead of re-registering providers.
func registerProviders(router *llm.Router, cfg config.Config) {
	mws := []llm.Middleware{llm.Retry(3, 500 * time.Millisecond), llm.RateLimit(2, 4)}

	var haveGemini, haveOpenAI, haveAnthropic bool

	if cfg.GeminiAPIKey != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := llmclient.NewGeminiAdapter(ctx, cfg.GeminiAPIKey, "gemini-2.5-flash", 1_000_000)
		if err != nil {
			log.Printf("apploomd: gemini adapter unavailable: %v", err)
		} else {
			meta := llmclient.Metadata{Provider: "gemini", Model: "gemini-2.5-flash", MaxContextTokens: 1_000_000, SupportsVision: true}
			router.Register("gemini", client, meta, []llm.TaskType{llm.TaskReasoning, llm.TaskCode, llm.TaskUIText}, mws...)
			haveGemini = true
		}
	}
	if cfg.OpenAIAPIKey != "" {
		client := llmclient.NewOpenAIAdapter(cfg.OpenAIAPIKey, "gpt-4o", 128_000)
		meta := llmclient.Metadata{Provider: "openai", Model: "gpt-4o", MaxContextTokens: 128_000, SupportsVision: true}
		router.Register("openai", client, meta, []llm.TaskType{llm.TaskReasoning, llm.TaskCode, llm.TaskUIText}, mws...)
		haveOpenAI = true
	}
	if cfg.AnthropicAPIKey != "" {
		client := llmclient.NewAnthropicAdapter(cfg.AnthropicAPIKey, "claude-3-7-sonnet-latest", 200_000)
		meta := llmclient.Metadata{Provider: "anthropic", Model: "claude-3-7-sonnet-latest", MaxContextTokens: 200_000, SupportsVision: true}
		router.Register("anthropic", client, meta, []llm.TaskType{llm.TaskReasoning, llm.TaskCode, llm.TaskUIText}, mws...)
		haveAnthropic = true
	}

	registered := map[string]bool{"gemini": haveGemini, "openai": haveOpenAI, "anthropic": haveAnthropic}
	setTieredPriority(router, llm.TaskReasoning, registered, "anthropic", "openai", "gemini")
	setTieredPriority(router, llm.TaskCode, registered, "openai", "anthropic", "gemini")
	setTieredPriority(router, llm.TaskUIText, registered, "gemini", "openai", "anthropic")
}

// setTieredPriority builds tiers for task out of specialist (the
// task-appropriate provider, tried first) and fallbacks (tried next,
// as one shared tier ordered by observed health), skipping any name
// that was never registered.
func setTieredPriority(router *llm.Router, task llm.TaskType, registered map[string]bool, specialist string, fallbacks ...string) {
	var tiers [][]string
	if registered[specialist] {
		tiers = append(tiers, []string{specialist})
	}
	var fallbackTier []string
	for _, name := range fallbacks {
		if registered[name] {
			fallbackTier = append(fallbackTier, name)
		}
	}
	if len(fallbackTier) > 0 {
		tiers = append(tiers, fallbackTier)
	}
	if len(tiers) > 0 {
		router.SetPriority(task, tiers)
	}
}

func (a *app) start(addr string) error {
	a.server.Addr = addr
	err := a.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (a *app) shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
