package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apploom/internal/errkind"
	"apploom/internal/llm"
	"apploom/internal/llmclient"
)

func newTestRouter(payload json.RawMessage) *llm.Router {
	r := llm.NewRouter()
	fa := llmclient.NewFakeAdapter(payload)
	r.Register("fake", fa, llmclient.Metadata{Provider: "fake"}, []llm.TaskType{llm.TaskReasoning, llm.TaskCode, llm.TaskUIText})
	return r
}

func TestBackendAgent_ProducesArtifacts(t *testing.T) {
	router := newTestRouter(json.RawMessage(`{"app.py": "print('hi')"}`))
	a := NewBackendAgent(router)
	msg, err := a.Execute(context.Background(), AgentContext{ProjectName: "p"})
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", msg.Artifacts["app.py"])
	assert.Equal(t, RoleBackend, msg.Role)
}

func TestAgent_InvalidJSONIsSchemaInvalid(t *testing.T) {
	router := newTestRouter(json.RawMessage(`not json`))
	a := NewUIXAgent(router)
	_, err := a.Execute(context.Background(), AgentContext{})
	assert.Error(t, err)
	assert.True(t, errkind.IsKind(err, errkind.SchemaInvalid))
}

func TestArchAgent_FailsSoft(t *testing.T) {
	router := newTestRouter(json.RawMessage(`not json`))
	a := NewArchAgent(router)
	msg := a.ExecuteSoft(context.Background(), AgentContext{})
	assert.Equal(t, float64(0), msg.Confidence)
	assert.Equal(t, RoleArch, msg.Role)
}

func TestCoreAgent_ValidManifest(t *testing.T) {
	validManifestJSON := `{
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
		"agents_needed": ["BACKEND", "UIX"],
		"priority": "ship it"
	}`
	router := newTestRouter(json.RawMessage(validManifestJSON))
	core := NewCoreAgent(router)
	m, msg, err := core.Execute(context.Background(), "TodoApp", "a todo list", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "todo", string(m.AppType))
	assert.Equal(t, 1.0, msg.Confidence)
}

func TestCoreAgent_FallsBackToDefaultOnInvalidJSON(t *testing.T) {
	router := newTestRouter(json.RawMessage(`not json at all`))
	core := NewCoreAgent(router)
	m, msg, err := core.Execute(context.Background(), "TodoApp", "a todo list", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "todo", string(m.AppType))
	assert.Less(t, msg.Confidence, 1.0)
	assert.GreaterOrEqual(t, len(m.Features), 3)
}

func TestCoreAgent_MissingRouterDecisionIsFatal(t *testing.T) {
	router := llm.NewRouter() // no provider registered for any task
	core := NewCoreAgent(router)
	m, _, err := core.Execute(context.Background(), "TodoApp", "a todo list", nil, "")
	assert.Error(t, err)
	assert.Nil(t, m)
}
