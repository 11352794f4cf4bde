package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"apploom/internal/agent"
	"apploom/internal/llm"
	"apploom/internal/llmclient"
	"apploom/internal/registry"
	"apploom/internal/tester"
	"apploom/internal/validation"
)

const testManifestJSON = `{
	"analysis": "a todo app",
	"app_type": "todo",
	"features": ["create", "list", "complete"],
	"tech_stack": {"backend": "flask", "frontend": "react", "styling": "css"},
	"models": [{"name": "Item", "fields": [{"name": "id", "type": "string", "required": true}]}],
	"endpoints": [{"path": "/api/items", "method": "GET"}],
	"files_to_generate": [
		{"path": "app.py", "purpose": "entry", "role": "backend_entry"},
		{"path": "requirements.txt", "purpose": "deps", "role": "dependency_manifest"},
		{"path": "frontend/src/App.jsx", "purpose": "root", "role": "frontend_entry_component"},
		{"path": "frontend/package.json", "purpose": "deps", "role": "frontend_package_manifest"},
		{"path": "frontend/index.html", "purpose": "html", "role": "html_entry"},
		{"path": "frontend/vite.config.js", "purpose": "bundler", "role": "bundler_config"},
		{"path": "frontend/src/main.jsx", "purpose": "bootstrap", "role": "frontend_bootstrap"}
	],
	"integrations": [],
	"agents_needed": ["ARCH", "BACKEND", "UIX", "TEST", "QUALITY", "DEBUG"],
	"priority": "ship it"
}`

func newTestOrchestrator(t *testing.T, registerCodeProvider bool) (*Orchestrator, *registry.Registry) {
	t.Helper()
	router := llm.NewRouter()
	router.Register("core-provider", llmclient.NewFakeAdapter(json.RawMessage(testManifestJSON)),
		llmclient.Metadata{Provider: "core-provider"}, []llm.TaskType{llm.TaskReasoning})
	if registerCodeProvider {
		router.Register("code-provider", llmclient.NewFakeAdapter(json.RawMessage(`{"app.py": "print(1)"}`)),
			llmclient.Metadata{Provider: "code-provider"}, []llm.TaskType{llm.TaskCode})
	}

	agents := NewAgents(router)
	validators := validation.NewRegistry()
	reg := registry.New(nil, nil)
	return New(agents, validators, reg), reg
}

func TestGenerate_ProducesCommitAndStoresManifest(t *testing.T) {
	orch, reg := newTestOrchestrator(t, true)

	result, err := orch.Generate(context.Background(), "proj-1", "TodoApp", "a todo list", nil, "", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Manifest.AppType != "todo" {
		t.Fatalf("got app_type %q, want todo", result.Manifest.AppType)
	}
	if result.Commit == nil {
		t.Fatalf("expected a commit")
	}
	if !result.Validation.Passed() {
		t.Fatalf("expected validation to pass with an empty registry")
	}

	handle := reg.Handle("proj-1")
	if _, err := handle.VFS.ReadFile("app.py"); err != nil {
		t.Fatalf("expected app.py to be written: %v", err)
	}
}

func TestGenerate_ArchFailsSoftLeavesArchitectureSpecNil(t *testing.T) {
	orch, _ := newTestOrchestrator(t, true)
	// Arch shares the reasoning task with Core, whose payload is
	// manifest-shaped, not artifact-shaped — Arch's parse necessarily
	// fails, exercising its documented fail-soft contract.
	result, err := orch.Generate(context.Background(), "proj-2", "TodoApp", "a todo list", nil, "", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, msg := range result.AgentMessages {
		if msg.Role == agent.RoleArch && msg.Confidence != 0 {
			t.Fatalf("expected Arch to fail soft with confidence 0, got %v", msg.Confidence)
		}
	}
}

func TestGenerate_MissingCoreRouterDecisionIsFatal(t *testing.T) {
	orch, _ := newTestOrchestrator(t, false)
	orch.agents = NewAgents(llm.NewRouter()) // no providers registered at all

	_, err := orch.Generate(context.Background(), "proj-3", "TodoApp", "a todo list", nil, "", Options{})
	if err == nil {
		t.Fatalf("expected a fatal error when no router decision is available for Core")
	}
}

func TestGenerate_SpecialistFailureDowngradesToTemplateFallback(t *testing.T) {
	orch, reg := newTestOrchestrator(t, false) // no TaskCode provider registered

	result, err := orch.Generate(context.Background(), "proj-4", "TodoApp", "a todo list", nil, "", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Commit == nil {
		t.Fatalf("expected generation to still commit with template fallback content")
	}

	handle := reg.Handle("proj-4")
	content, err := handle.VFS.ReadFile("app.py")
	if err != nil {
		t.Fatalf("expected a template fallback file at app.py: %v", err)
	}
	if content == "" {
		t.Fatalf("expected non-empty placeholder content")
	}
}

func TestGenerate_PerProjectLockSerializesConcurrentRuns(t *testing.T) {
	orch, reg := newTestOrchestrator(t, true)
	handle := reg.Handle("proj-5")

	handle.Lock()
	done := make(chan struct{})
	go func() {
		_, _ = orch.Generate(context.Background(), "proj-5", "TodoApp", "a todo list", nil, "", Options{})
		close(done)
	}()

	select {
	case <-done:
		tester.True(t, false, "generate proceeded while the project lock was held externally")
	default:
	}
	handle.Unlock()
	<-done
}
