// Package orchestrator implements the Orchestrator (§4.5): the generate
// and edit pipelines that drive the Agent Set against a project's VFS,
// run the Validation Pipeline, bound repair attempts, and persist
// outcomes into Project Memory. Shaped like a fixed-stage task pipeline
// — the same fixed-stage execution idiom, adapted from a single worker
// task to a fixed, named agent sequence.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"apploom/internal/agent"
	"apploom/internal/errkind"
	"apploom/internal/globalctx"
	"apploom/internal/jsonextract"
	"apploom/internal/llm"
	"apploom/internal/manifest"
	"apploom/internal/memory"
	"apploom/internal/registry"
	"apploom/internal/validation"
	"apploom/internal/vfs"
)

// specialistOrder is the fixed agent order §4.5 names for generation:
// "ARCH → BACKEND → UIX → TEST → QUALITY → DEBUG".
var specialistOrder = []agent.Role{
	agent.RoleArch, agent.RoleBackend, agent.RoleUIX,
	agent.RoleTest, agent.RoleQuality, agent.RoleDebug,
}

// DefaultMaxRepairAttempts is the repair-loop bound §4.5 names when a
// caller does not override it via internal/config's MAX_REPAIR_ATTEMPTS.
const DefaultMaxRepairAttempts = 3

// GenerationTimeout bounds one full generate pipeline run, composing
// §5's per-call bounds (LLM calls ≤120s, validators ≤60s each, test
// suite ≤120s) with headroom for the fixed six-agent sequence plus up to
// DefaultMaxRepairAttempts repair rounds.
const GenerationTimeout = 10 * time.Minute

// Options carries the caller-level knobs the generate/edit pipelines
// accept without hard-coding a specific collaborator transport: a
// pinned provider (bypassing task-priority selection for this run) and
// a GlobalContext carrying provider-tier hints consumed by any
// downstream middleware via globalctx.ProviderTierFrom.
type Options struct {
	ProviderOverride  string
	GlobalContext     globalctx.GlobalContext
	MaxRepairAttempts int
}

func (o Options) withContext(ctx context.Context) context.Context {
	if o.GlobalContext.ProviderTiers != nil || o.GlobalContext.ModelSelectionMode != "" {
		ctx = globalctx.WithGlobalContext(ctx, o.GlobalContext)
	}
	if o.ProviderOverride != "" {
		ctx = llm.WithProviderOverride(ctx, o.ProviderOverride)
	}
	return ctx
}

func (o Options) maxRepairAttempts() int {
	if o.MaxRepairAttempts > 0 {
		return o.MaxRepairAttempts
	}
	return DefaultMaxRepairAttempts
}

// Agents bundles every specialist agent the Orchestrator drives. Built
// once at process startup over a shared *llm.Router (NewAgents).
type Agents struct {
	Core    *agent.CoreAgent
	Arch    *agent.Agent
	Backend *agent.Agent
	UIX     *agent.Agent
	Test    *agent.Agent
	Quality *agent.Agent
	Debug   *agent.Agent
	Edit    *agent.Agent
}

// NewAgents constructs every specialist agent bound to router.
func NewAgents(router *llm.Router) *Agents {
	return &Agents{
		Core:    agent.NewCoreAgent(router),
		Arch:    agent.NewArchAgent(router),
		Backend: agent.NewBackendAgent(router),
		UIX:     agent.NewUIXAgent(router),
		Test:    agent.NewTestAgent(router),
		Quality: agent.NewQualityAgent(router),
		Debug:   agent.NewDebugAgent(router),
		Edit:    agent.NewEditAgent(router),
	}
}

func (a *Agents) byRole(role agent.Role) *agent.Agent {
	switch role {
	case agent.RoleArch:
		return a.Arch
	case agent.RoleBackend:
		return a.Backend
	case agent.RoleUIX:
		return a.UIX
	case agent.RoleTest:
		return a.Test
	case agent.RoleQuality:
		return a.Quality
	case agent.RoleDebug:
		return a.Debug
	default:
		return nil
	}
}

// Orchestrator drives the generate/edit pipelines over a shared Agents
// set, Validation registry, and project Registry.
type Orchestrator struct {
	agents     *Agents
	validators *validation.Registry
	registry   *registry.Registry
}

// New builds an Orchestrator over its three collaborators.
func New(agents *Agents, validators *validation.Registry, reg *registry.Registry) *Orchestrator {
	return &Orchestrator{agents: agents, validators: validators, registry: reg}
}

// GenerateResult is what one generate pipeline run produces.
type GenerateResult struct {
	Manifest        *manifest.ProjectManifest
	Commit          *vfs.Commit
	Validation      validation.AggregateResult
	RepairAttempts  int
	RepairExhausted bool
	AgentMessages   []agent.AgentMessage
}

// Generate runs the full generate pipeline (§4.5) for projectID: memory
// context retrieval, Core agent, the fixed specialist sequence, VFS
// merge, validation, a bounded repair loop, commit, and memory storage.
//
// A missing router decision for the Core task is fatal, returned wrapped
// as errkind.ProviderUnavailable; every other failure mode is
// absorbed into the result per §4.5 (specialist downgrade, repair
// exhaustion recorded as a warning, never as an error).
func (o *Orchestrator) Generate(ctx context.Context, projectID, projectName, description string, image []byte, imageMIME string, opts Options) (*GenerateResult, error) {
	ctx, cancel := context.WithTimeout(opts.withContext(ctx), GenerationTimeout)
	defer cancel()

	handle := o.registry.Handle(projectID)
	handle.Lock()
	defer handle.Unlock()

	memCtx := o.memoryContext(ctx, projectID, description)

	m, coreMsg, err := o.agents.Core.Execute(ctx, projectName, description, image, imageMIME)
	if err != nil {
		return nil, errkind.Wrap(errkind.ProviderUnavailable, "core agent: no router decision", err)
	}

	result := &GenerateResult{Manifest: m, AgentMessages: []agent.AgentMessage{coreMsg}}

	ac := agent.AgentContext{
		ProjectName:   projectName,
		Description:   description,
		Manifest:      m,
		ExistingFiles: map[string]string{},
		Image:         image,
		ImageMIME:     imageMIME,
		MemoryContext: memCtx,
	}

	needed := map[agent.Role]bool{}
	for _, r := range m.AgentsNeeded {
		needed[agent.Role(r)] = true
	}

	for _, role := range specialistOrder {
		if !needed[role] {
			continue
		}
		a := o.agents.byRole(role)
		msg := a.ExecuteSoft(ctx, ac)
		if msg.Confidence == 0 && role != agent.RoleArch {
			// Missing router decision for a specialist agent downgrades to
			// a per-role template fallback (§4.5), rather than leaving the
			// files it owned entirely unwritten.
			msg.Artifacts = templateFallback(role, m)
		}
		result.AgentMessages = append(result.AgentMessages, msg)
		for path, content := range msg.Artifacts {
			ac.ExistingFiles[path] = content
			if err := handle.VFS.WriteFile(path, content); err != nil {
				return nil, err
			}
		}
		if role == agent.RoleArch {
			ac.ArchitectureSpec = archSpecFromArtifacts(msg.Artifacts)
		}
	}

	agg, err := o.validators.Run(ctx, ac.ExistingFiles)
	if err != nil {
		return nil, err
	}
	result.Validation = agg

	warnings := o.repairLoop(ctx, &ac, handle, &agg, opts.maxRepairAttempts(), result)
	result.Validation = agg

	message := "generate: " + strings.Join(m.Features, ", ")
	if len(warnings) > 0 {
		message += "\n\nwarnings: " + strings.Join(warnings, "; ")
	}

	commit, err := handle.VFS.Commit(message)
	if err != nil {
		return nil, err
	}
	result.Commit = commit

	o.storeOutcome(ctx, projectID, m, ac.ExistingFiles)
	return result, nil
}

// repairLoop invokes Debug/Quality with the current issue list, re-merges
// their artifacts, and re-validates, up to maxAttempts times. It mutates
// agg and returns the warnings to record if repair is exhausted with
// errors still outstanding — per §4.5: "On repair exhaustion, commit
// with warnings recorded in the commit message."
func (o *Orchestrator) repairLoop(ctx context.Context, ac *agent.AgentContext, handle *registry.Handle, agg *validation.AggregateResult, maxAttempts int, result *GenerateResult) []string {
	var warnings []string
	for attempt := 0; attempt < maxAttempts && !agg.Passed(); attempt++ {
		result.RepairAttempts++
		issues := agg.ErrorIssues()
		ac.ValidationIssues = issueStrings(issues)

		for _, a := range []*agent.Agent{o.agents.Debug, o.agents.Quality} {
			msg := a.ExecuteSoft(ctx, *ac)
			result.AgentMessages = append(result.AgentMessages, msg)
			for path, content := range msg.Artifacts {
				ac.ExistingFiles[path] = content
				_ = handle.VFS.WriteFile(path, content)
			}
		}

		next, err := o.validators.Run(ctx, ac.ExistingFiles)
		if err != nil {
			break
		}
		*agg = next
	}

	if !agg.Passed() {
		result.RepairExhausted = true
		warnings = issueStrings(agg.ErrorIssues())
	}
	return warnings
}

// fileRolesOwnedBy is which manifest.FileRole values a specialist is
// responsible for, used to build its template fallback.
var fileRolesOwnedBy = map[agent.Role][]manifest.FileRole{
	agent.RoleBackend: {manifest.FileRoleBackendEntry, manifest.FileRoleDependencyManifest},
	agent.RoleUIX: {
		manifest.FileRoleFrontendEntryComponent, manifest.FileRoleFrontendPackageManifest,
		manifest.FileRoleHTMLEntry, manifest.FileRoleBundlerConfig, manifest.FileRoleFrontendBootstrap,
	},
}

// templateFallback produces minimal placeholder content for every file
// in m.FilesToGenerate that role owns, when role's agent call could not
// reach any provider. This is the "template fallback per role" §4.5
// calls for: each owned path gets a short "#"-prefixed placeholder note
// instead of being left absent. The notes are plain text, not valid
// content for JSON or JavaScript files.
func templateFallback(role agent.Role, m *manifest.ProjectManifest) map[string]string {
	owned := map[manifest.FileRole]bool{}
	for _, r := range fileRolesOwnedBy[role] {
		owned[r] = true
	}
	if len(owned) == 0 {
		return nil
	}

	out := map[string]string{}
	for _, f := range m.FilesToGenerate {
		if !owned[f.Role] {
			continue
		}
		out[f.Path] = fmt.Sprintf("# %s unavailable; placeholder for %s\n# purpose: %s\n", role, f.Path, f.Purpose)
	}
	return out
}

func issueStrings(issues []validation.ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, fmt.Sprintf("%s:%d %s: %s", i.File, i.Line, i.Validator, i.Message))
	}
	return out
}

// archSpecFromArtifacts pulls the architecture.json artifact Arch
// produces into the map Backend/UIX/Test receive as ArchitectureSpec.
// Arch's fail-soft contract means this artifact may be absent; that is
// not an error here, it just leaves ArchitectureSpec nil.
func archSpecFromArtifacts(artifacts map[string]string) map[string]any {
	raw, ok := artifacts["architecture.json"]
	if !ok {
		return nil
	}
	var spec map[string]any
	if err := jsonextract.Unmarshal(raw, &spec); err != nil {
		return nil
	}
	return spec
}

func (o *Orchestrator) memoryContext(ctx context.Context, projectID, description string) string {
	store := o.registry.MemoryStore()
	if store == nil {
		return ""
	}
	memCtx, err := memory.GetContextForGeneration(ctx, store, projectID, description, memory.DefaultContextCharBudget)
	if err != nil {
		return ""
	}
	return memCtx
}

// storeOutcome persists generated code and the manifest's top-level
// decisions into Project Memory, best-effort: a memory-store failure
// must never fail a generation that otherwise succeeded.
func (o *Orchestrator) storeOutcome(ctx context.Context, projectID string, m *manifest.ProjectManifest, files map[string]string) {
	store := o.registry.MemoryStore()
	if store == nil {
		return
	}
	for path, content := range files {
		_ = store.StoreCode(ctx, projectID, path, content, languageForPath(path))
	}
	_ = store.StoreDecision(ctx, projectID, fmt.Sprintf("app_type: %s", m.AppType), fmt.Sprintf("tech_stack=%v", m.TechStack))
	for _, feature := range m.Features {
		_ = store.StoreDecision(ctx, projectID, feature, "requested feature")
	}
}

func languageForPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".py"):
		return "python"
	case strings.HasSuffix(path, ".go"):
		return "go"
	case strings.HasSuffix(path, ".jsx") || strings.HasSuffix(path, ".js"):
		return "javascript"
	case strings.HasSuffix(path, ".tsx") || strings.HasSuffix(path, ".ts"):
		return "typescript"
	case strings.HasSuffix(path, ".json"):
		return "json"
	default:
		return "text"
	}
}
