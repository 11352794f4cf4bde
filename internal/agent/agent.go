// Package agent implements the Agent Set (§4.4): the eight specialist
// roles that turn a ProjectManifest into generated file content, each
// polymorphic over a common capability set — a fixed role, a bound task
// type, a system prompt, and an execute(context) -> AgentMessage
// operation. Shaped like a worker/prompt-preset pairing, adapted from
// a tool-call loop to direct single-shot JSON generation, since this
// engine's agents write files rather than call tools.
package agent

import (
	"context"
	"fmt"
	"time"

	"apploom/internal/errkind"
	"apploom/internal/jsonextract"
	"apploom/internal/llm"
	"apploom/internal/llmclient"
	"apploom/internal/manifest"
)

// Role identifies one of the eight specialist agents.
type Role string

const (
	RoleCore    Role = "CORE"
	RoleArch    Role = "ARCH"
	RoleBackend Role = "BACKEND"
	RoleUIX     Role = "UIX"
	RoleDebug   Role = "DEBUG"
	RoleQuality Role = "QUALITY"
	RoleTest    Role = "TEST"
	RoleEdit    Role = "EDIT"
)

// AgentContext is the input an agent's execute operation consumes. Not
// every field is meaningful to every role; unused fields are ignored.
type AgentContext struct {
	ProjectName string
	Description string
	Manifest    *manifest.ProjectManifest
	// ArchitectureSpec, when set, is the Arch agent's refined plan handed
	// to Backend/UIX/Test.
	ArchitectureSpec map[string]any
	ExistingFiles    map[string]string
	ValidationIssues []string
	Instruction      string
	Image            []byte
	ImageMIME        string
	MemoryContext    string
}

// AgentMessage is the result of one agent execution (§4.4).
type AgentMessage struct {
	Role             Role
	Content          string
	ReasoningSummary string
	Confidence       float64
	Artifacts        map[string]string
	Provider         string
	Model            string
}

// Agent binds a role to a task type and a system-prompt factory.
type Agent struct {
	Role      Role
	Task      llm.TaskType
	MaxTokens int
	buildSpec func(ac AgentContext) PromptSpec
	router    *llm.Router
}

// NewAgent constructs an agent bound to router, with buildSpec producing
// that role's system prompt for a given call.
func NewAgent(role Role, task llm.TaskType, router *llm.Router, buildSpec func(AgentContext) PromptSpec) *Agent {
	return &Agent{Role: role, Task: task, MaxTokens: 8000, router: router, buildSpec: buildSpec}
}

const artifactsOutputContract = `Respond with a single JSON object mapping file path (string) to complete file content (string), and nothing else — no prose, no markdown fence. Every key must be a relative file path using forward slashes. Every value must be the file's full content.`

// Execute runs one generation call for this agent and returns its
// message. On a schema violation (output that is not valid JSON) the
// caller is responsible for substituting a fallback; Execute
// itself returns an errkind.SchemaInvalid error rather than silently
// degrading, so the orchestrator can apply role-specific recovery (§7).
func (a *Agent) Execute(ctx context.Context, ac AgentContext) (AgentMessage, error) {
	spec := a.buildSpec(ac)
	if spec.OutputContract == "" {
		spec.OutputContract = artifactsOutputContract
	}

	prompt, err := spec.Build(ac)
	if err != nil {
		return AgentMessage{}, errkind.Wrap(errkind.SchemaInvalid, "build agent prompt", err)
	}

	req := llmclient.Request{
		Prompt:      prompt,
		MaxTokens:   a.MaxTokens,
		Temperature: 0.2,
		Image:       ac.Image,
		ImageMIME:   ac.ImageMIME,
	}

	resp, providerName, err := a.router.Generate(ctx, a.Task, req)
	if err != nil {
		return AgentMessage{}, err
	}

	msg := AgentMessage{
		Role:       a.Role,
		Provider:   providerName,
		Confidence: 1.0,
	}

	var artifacts map[string]string
	if err := jsonextract.Unmarshal(string(resp.JSON), &artifacts); err != nil {
		return AgentMessage{}, errkind.Wrap(errkind.SchemaInvalid, fmt.Sprintf("%s: parse artifacts JSON", a.Role), err)
	}
	msg.Artifacts = artifacts
	msg.Content = fmt.Sprintf("%s produced %d artifact(s) in %s", a.Role, len(artifacts), providerName)
	return msg, nil
}

// agentTimeout bounds a single agent execution, matching the "no
// unbounded agent call" resource discipline of §5.
const agentTimeout = 90 * time.Second

// ExecuteWithTimeout runs Execute under agentTimeout, returning
// errkind.TimedOut if it is exceeded.
func (a *Agent) ExecuteWithTimeout(ctx context.Context, ac AgentContext) (AgentMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, agentTimeout)
	defer cancel()

	type result struct {
		msg AgentMessage
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := a.Execute(ctx, ac)
		ch <- result{msg, err}
	}()

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return AgentMessage{}, errkind.Wrap(errkind.TimedOut, fmt.Sprintf("%s execution timed out", a.Role), ctx.Err())
	}
}
