package main

import (
	"encoding/json"
	"net/http"

	"apploom/internal/errkind"
	"apploom/internal/manifest"
	"apploom/internal/orchestrator"
)

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createProjectResponse struct {
	ProjectID string                    `json:"project_id"`
	Manifest  *manifest.ProjectManifest `json:"manifest"`
	CommitID  string                    `json:"commit_id"`
	Warnings  bool                      `json:"repair_exhausted"`
	Passed    bool                      `json:"validation_passed"`
}

func (a *app) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" || req.Description == "" {
		writeError(w, http.StatusBadRequest, errkind.New(errkind.SchemaInvalid, "name and description are required"))
		return
	}

	projectID := a.registry.NewProjectID(req.Name)
	result, err := a.orch.Generate(r.Context(), projectID, req.Name, req.Description, nil, "", orchestrator.Options{MaxRepairAttempts: a.cfg.MaxRepairAttempts})
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, createProjectResponse{
		ProjectID: projectID,
		Manifest:  result.Manifest,
		CommitID:  result.Commit.ID,
		Warnings:  result.RepairExhausted,
		Passed:    result.Validation.Passed(),
	})
}

func (a *app) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	handle := a.registry.Handle(id)
	files, err := handle.Files(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": id,
		"commit_id":  handle.VFS.CurrentCommitID(),
		"files":      files,
	})
}

type editProjectRequest struct {
	Instruction string `json:"instruction"`
	Revalidate  bool   `json:"revalidate"`
}

func (a *app) handleEditProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req editProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Instruction == "" {
		writeError(w, http.StatusBadRequest, errkind.New(errkind.SchemaInvalid, "instruction is required"))
		return
	}

	result, err := a.orch.Edit(r.Context(), id, req.Instruction, nil, "", req.Revalidate, orchestrator.Options{})
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commit_id":     result.Commit.ID,
		"changed_files": result.ChangedFiles,
		"patched_files": len(result.Patches),
	})
}

func (a *app) handleCreatePreview(w http.ResponseWriter, r *http.Request) {
	if a.preview == nil || !a.preview.Available() {
		writeError(w, http.StatusServiceUnavailable, errkind.New(errkind.ProviderUnavailable, "no container runtime available"))
		return
	}
	id := r.PathValue("id")
	handle := a.registry.Handle(id)
	files, err := handle.Files(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	env, err := a.preview.CreatePreview(r.Context(), id, files)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	a.registry.WatchPreview(r.Context(), id, a.cfg.PreviewPollInterval)
	writeJSON(w, http.StatusCreated, env)
}

func (a *app) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	if a.preview == nil {
		writeError(w, http.StatusServiceUnavailable, errkind.New(errkind.ProviderUnavailable, "no container runtime available"))
		return
	}
	id := r.PathValue("id")
	env, ok := a.preview.GetStatus(id)
	if !ok {
		writeError(w, http.StatusNotFound, errkind.New(errkind.SchemaInvalid, "no preview for this project"))
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (a *app) handleStopPreview(w http.ResponseWriter, r *http.Request) {
	if a.preview == nil {
		writeError(w, http.StatusServiceUnavailable, errkind.New(errkind.ProviderUnavailable, "no container runtime available"))
		return
	}
	id := r.PathValue("id")
	if err := a.preview.StopPreview(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusForErr(err error) int {
	switch {
	case errkind.IsKind(err, errkind.ProviderUnavailable), errkind.IsKind(err, errkind.ResourceExhausted):
		return http.StatusServiceUnavailable
	case errkind.IsKind(err, errkind.SchemaInvalid), errkind.IsKind(err, errkind.PatchInapplicable):
		return http.StatusBadRequest
	case errkind.IsKind(err, errkind.TimedOut), errkind.IsKind(err, errkind.Cancelled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
