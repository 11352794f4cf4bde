package agent

import (
	"context"
	"fmt"

	"apploom/internal/jsonextract"
	"apploom/internal/llm"
	"apploom/internal/llmclient"
	"apploom/internal/manifest"
)

// CoreAgent is the sole role that does not emit {filepath: content}
// artifacts: it produces the ProjectManifest every other role consumes.
// It is kept as its own type, rather than a case inside Agent.Execute,
// because its recovery path (substituting the default manifest) is a
// designed outcome, not an error, and deserves its own return shape.
type CoreAgent struct {
	router    *llm.Router
	MaxTokens int
}

func NewCoreAgent(router *llm.Router) *CoreAgent {
	return &CoreAgent{router: router, MaxTokens: 6000}
}

func (c *CoreAgent) spec(ac AgentContext) PromptSpec {
	return PromptSpec{
		Purpose: "Analyze a user's application description and produce a complete ProjectManifest plan for generating it.",
		Background: "The manifest you produce is the authoritative, immutable plan the rest of the pipeline builds from. " +
			"It must fully determine what files get generated and what they contain.",
		OutputFields: []PromptField{
			{Name: "analysis", Type: "string", Required: true, Description: "short prose analysis of the request"},
			{Name: "app_type", Type: "string", Required: true, Description: "one of: crud, ecommerce, dashboard, social, todo, blog, auth, booking, api"},
			{Name: "features", Type: "string[]", Required: true, Description: "ordered, non-empty list of features"},
			{Name: "tech_stack", Type: "object", Required: true, Description: "backend, frontend, styling, and optionally database/auth"},
			{Name: "models", Type: "object[]", Required: true, Description: "data models, each with a capitalized name and fields"},
			{Name: "endpoints", Type: "object[]", Required: true, Description: "API endpoints, each path starting with /"},
			{Name: "files_to_generate", Type: "object[]", Required: true, Description: "planned files, each with path, purpose, and role"},
			{Name: "integrations", Type: "string[]", Required: false},
			{Name: "agents_needed", Type: "string[]", Required: true, Description: "subset of ARCH, BACKEND, UIX, DEBUG, QUALITY, TEST"},
			{Name: "priority", Type: "string", Required: true},
		},
		Constraints: []string{
			"features must be non-empty",
			"every model name must begin with an uppercase letter",
			"every endpoint path must begin with \"/\"",
			"files_to_generate must include one file with role backend_entry, dependency_manifest, frontend_entry_component, frontend_package_manifest, html_entry, bundler_config, and frontend_bootstrap",
		},
		OutputContract: "Respond with a single JSON object matching the OUTPUT fields exactly, and nothing else.",
	}
}

// Execute produces a validated ProjectManifest. A missing router decision
// (no provider available for the reasoning task, or every candidate
// failing) is fatal and propagated to the caller, per §4.5's failure
// semantics: "A missing router decision for the Core task is fatal for
// generation." If the router does produce a response but its content is
// unparsable or fails validation, Execute substitutes the default
// manifest keyed by projectName/description with reduced confidence
// instead (§4.4: "On invalid LLM output, emits the default manifest with
// reduced confidence") — that failure mode is soft, not fatal.
func (c *CoreAgent) Execute(ctx context.Context, projectName, description string, image []byte, imageMIME string) (*manifest.ProjectManifest, AgentMessage, error) {
	ac := AgentContext{ProjectName: projectName, Description: description, Image: image, ImageMIME: imageMIME}
	prompt, err := c.spec(ac).Build(map[string]string{"project_name": projectName, "description": description})
	if err != nil {
		m := manifest.DefaultManifest(projectName, description)
		return m, AgentMessage{Role: RoleCore, Confidence: m.Confidence, Artifacts: nil}, nil
	}

	req := llmclient.Request{Prompt: prompt, MaxTokens: c.MaxTokens, Temperature: 0.2, Image: image, ImageMIME: imageMIME}
	resp, providerName, err := c.router.Generate(ctx, llm.TaskReasoning, req)
	if err != nil {
		return nil, AgentMessage{Role: RoleCore}, err
	}

	var m manifest.ProjectManifest
	if err := jsonextract.Unmarshal(string(resp.JSON), &m); err != nil {
		def := manifest.DefaultManifest(projectName, description)
		return def, AgentMessage{Role: RoleCore, Provider: providerName, Confidence: def.Confidence}, nil
	}
	if errs := manifest.ValidateAll(&m); len(errs) > 0 {
		def := manifest.DefaultManifest(projectName, description)
		return def, AgentMessage{Role: RoleCore, Provider: providerName, Confidence: def.Confidence}, nil
	}

	m.Confidence = 1.0
	return &m, AgentMessage{Role: RoleCore, Provider: providerName, Confidence: 1.0, Content: "manifest produced and validated"}, nil
}

// NewArchAgent refines a manifest into an architecture spec: endpoints
// with request/response models, data models with field types, a
// per-file purpose map, and optional scaling notes. It fails soft: when
// the LLM output cannot be parsed, ExecuteSoft returns a message with no
// artifacts, no architecture spec is produced, and the manifest passes
// through the pipeline unchanged, so Arch failing never blocks the
// pipeline.
func NewArchAgent(router *llm.Router) *Agent {
	a := NewAgent(RoleArch, llm.TaskReasoning, router, func(ac AgentContext) PromptSpec {
		return PromptSpec{
			Purpose:    "Refine a ProjectManifest into a detailed architecture spec.",
			Background: "Expand endpoints with request/response models and data models with explicit field types. Add a per-file purpose map.",
			OutputFields: []PromptField{
				{Name: "architecture.json", Type: "string", Required: true, Description: "JSON-encoded architecture spec as the sole artifact"},
			},
			Rules: []string{"Keep every endpoint path and model name from the input manifest unchanged."},
		}
	})
	return a
}

// ExecuteSoft runs Arch and, on any error, returns an empty artifact set
// instead of propagating the error, per its fail-soft contract.
func (a *Agent) ExecuteSoft(ctx context.Context, ac AgentContext) AgentMessage {
	msg, err := a.Execute(ctx, ac)
	if err != nil {
		return AgentMessage{Role: a.Role, Content: fmt.Sprintf("%s failed soft: %v", a.Role, err), Confidence: 0}
	}
	return msg
}

func NewBackendAgent(router *llm.Router) *Agent {
	return NewAgent(RoleBackend, llm.TaskCode, router, func(ac AgentContext) PromptSpec {
		return PromptSpec{
			Purpose:    "Generate the backend implementation for a planned application.",
			Background: "Emit the backend entrypoint, dependency manifest, routes, data models, and any supporting backend files named in the manifest.",
			Rules: []string{
				"Generate every backend file listed in files_to_generate.",
				"Implement every endpoint in the manifest.",
				"Use the tech_stack.backend framework named in the manifest.",
			},
		}
	})
}

func NewUIXAgent(router *llm.Router) *Agent {
	return NewAgent(RoleUIX, llm.TaskCode, router, func(ac AgentContext) PromptSpec {
		return PromptSpec{
			Purpose:    "Generate the frontend implementation for a planned application.",
			Background: "Emit the component tree, bundler config, HTML entry, and stylesheet named in the manifest.",
			Rules: []string{
				"Generate every frontend file listed in files_to_generate.",
				"Call every endpoint in the manifest from the appropriate component.",
				"Use the tech_stack.frontend framework named in the manifest.",
			},
		}
	})
}

func NewDebugAgent(router *llm.Router) *Agent {
	return NewAgent(RoleDebug, llm.TaskCode, router, func(ac AgentContext) PromptSpec {
		return PromptSpec{
			Purpose:      "Fix the files that failed validation.",
			Background:   "You are given the current content of the failing files and the validator's error list.",
			Constraints:  []string{"Only emit files that need to change."},
			OutputFormat: "Each emitted file must be the complete corrected content, not a diff.",
		}
	})
}

func NewQualityAgent(router *llm.Router) *Agent {
	return NewAgent(RoleQuality, llm.TaskCode, router, func(ac AgentContext) PromptSpec {
		return PromptSpec{
			Purpose:     "Resolve style, formatting, and security validation issues.",
			Background:  "You are given the current content of the flagged files and the validator's issue list.",
			Constraints: []string{"Only emit files that need to change.", "Preserve existing behavior; do not change business logic."},
		}
	})
}

func NewTestAgent(router *llm.Router) *Agent {
	return NewAgent(RoleTest, llm.TaskCode, router, func(ac AgentContext) PromptSpec {
		return PromptSpec{
			Purpose:    "Generate unit and integration tests for the chosen backend and frontend.",
			Background: "Cover the data models and endpoints in the manifest.",
			Rules:      []string{"Test files must be runnable with the test tooling implied by tech_stack."},
		}
	})
}

func NewEditAgent(router *llm.Router) *Agent {
	return NewAgent(RoleEdit, llm.TaskCode, router, func(ac AgentContext) PromptSpec {
		return PromptSpec{
			Purpose:     "Apply a natural-language edit instruction to an existing file set.",
			Background:  "You are given the full content of every existing file and a free-form instruction, optionally with a reference image.",
			Constraints: []string{"Propose new content for only the files that must change. Do not touch unrelated files."},
		}
	})
}
