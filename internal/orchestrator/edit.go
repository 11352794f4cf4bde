package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"apploom/internal/agent"
	"apploom/internal/astpatch"
	"apploom/internal/errkind"
	"apploom/internal/utils"
	"apploom/internal/validation"
	"apploom/internal/vfs"
)

// EditTimeout bounds one edit pipeline run: a single Edit agent call
// plus patch application and an optional non-blocking re-validation.
const EditTimeout = 3 * time.Minute

// EditResult is what one edit pipeline run produces.
type EditResult struct {
	Commit       *vfs.Commit
	ChangedFiles []string
	Patches      []*astpatch.Patch
	Validation   *validation.AggregateResult
	AgentMessage agent.AgentMessage
}

// astPatchableExtensions is the set of file extensions the AST Patcher
// supports (§4.7: the patcher's one bundled-parser language is Go
// itself). A proposed artifact for any other extension is always
// applied as a full_replace, per §4.5 step 3: "for each proposed
// artifact that corresponds to a language the AST Patcher supports,
// compute the patch; ... otherwise, substitute full_replace."
var astPatchableExtensions = map[string]bool{".go": true}

func isASTPatchable(path string) bool {
	for ext := range astPatchableExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Edit runs the edit pipeline (§4.5) for projectID: load the current
// VFS tree, invoke the Edit agent with the instruction (and optional
// reference image), compute an AST patch for every proposed Go artifact
// (falling back to full_replace for every other language or on any
// parse failure), merge and commit, then optionally re-validate
// non-blocking.
func (o *Orchestrator) Edit(ctx context.Context, projectID, instruction string, image []byte, imageMIME string, revalidate bool, opts Options) (*EditResult, error) {
	ctx, cancel := context.WithTimeout(opts.withContext(ctx), EditTimeout)
	defer cancel()

	handle := o.registry.Handle(projectID)
	handle.Lock()
	defer handle.Unlock()

	existing := currentFiles(handle.VFS)
	memCtx := o.memoryContext(ctx, projectID, instruction)

	ac := agent.AgentContext{
		ExistingFiles: existing,
		Instruction:   instruction,
		Image:         image,
		ImageMIME:     imageMIME,
		MemoryContext: memCtx,
	}

	msg, err := o.agents.Edit.Execute(ctx, ac)
	if err != nil {
		return nil, errkind.Wrap(errkind.SchemaInvalid, "edit agent", err)
	}

	result := &EditResult{AgentMessage: msg}

	for path, newContent := range msg.Artifacts {
		oldContent, hadOld := existing[path]
		if !hadOld || !isASTPatchable(path) {
			if err := handle.VFS.WriteFile(path, newContent); err != nil {
				return nil, err
			}
			result.ChangedFiles = append(result.ChangedFiles, path)
			continue
		}

		patch := astpatch.Diff(path, oldContent, newContent)
		applied := astpatch.Apply(oldContent, patch)
		if err := handle.VFS.WriteFile(path, applied); err != nil {
			return nil, err
		}
		result.Patches = append(result.Patches, patch)
		result.ChangedFiles = append(result.ChangedFiles, path)
	}

	commitMessage := fmt.Sprintf("edit: %s", instruction)
	if names := utils.BaseNames(result.ChangedFiles...); len(names) > 0 {
		commitMessage += fmt.Sprintf(" (touched: %s)", strings.Join(names, ", "))
	}
	commit, err := handle.VFS.Commit(commitMessage)
	if err != nil {
		return nil, err
	}
	result.Commit = commit

	if revalidate {
		agg, verr := o.validators.Run(ctx, currentFiles(handle.VFS))
		if verr == nil {
			result.Validation = &agg
		}
		// A re-validation failure is logged-and-ignored by the caller,
		// never blocking: §4.5 step 4 says "optionally re-validate
		// (non-blocking)".
	}

	o.storeEditOutcome(ctx, projectID, instruction, result.ChangedFiles, msg.Artifacts)
	return result, nil
}

func currentFiles(v *vfs.VFS) map[string]string {
	st := v.GetStatus()
	out := map[string]string{}
	collect := func(paths []string) {
		for _, p := range paths {
			if content, err := v.ReadFile(p); err == nil {
				out[p] = content
			}
		}
	}
	collect(st.Added)
	collect(st.Modified)
	// Unchanged files are not reported by GetStatus; walk the last
	// commit's snapshot for those.
	if st.CurrentCommitID != "" {
		for _, c := range v.GetHistory() {
			if c.ID != st.CurrentCommitID {
				continue
			}
			for path := range c.Files {
				if _, already := out[path]; already {
					continue
				}
				if content, err := v.ReadFile(path); err == nil {
					out[path] = content
				}
			}
		}
	}
	return out
}

func (o *Orchestrator) storeEditOutcome(ctx context.Context, projectID, instruction string, changedFiles []string, after map[string]string) {
	store := o.registry.MemoryStore()
	if store == nil {
		return
	}
	for _, path := range changedFiles {
		if content, ok := after[path]; ok {
			_ = store.StoreCode(ctx, projectID, path, content, languageForPath(path))
		}
	}
	_ = store.StoreDecision(ctx, projectID, instruction, fmt.Sprintf("edit touched %d file(s)", len(changedFiles)))
}
