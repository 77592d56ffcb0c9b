package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Maestro/internal/engine"
)

// ListWorkflows возвращает список всех workflows.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.workflowRepo.List(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowResponse, len(workflows))
	for i, wf := range workflows {
		result[i] = WorkflowFromDomain(wf)
	}

	List(w, result, len(result))
}

// CreateWorkflow создаёт новый workflow.
// POST /api/v1/workflows
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	// Черновик определения свободно редактируется и валидируется только
	// при коммите версии или запуске
	definition := req.Definition
	if len(definition) == 0 {
		definition = json.RawMessage(`{"nodes": []}`)
	}

	wf, err := h.workflowRepo.Create(r.Context(), req.Name, req.Description, definition)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Created(w, WorkflowFromDomain(*wf))
}

// GetWorkflow возвращает workflow по ID.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.workflowRepo.GetByID(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, WorkflowFromDomain(*wf))
}

// UpdateWorkflow обновляет контейнер workflow и его черновик.
// PUT /api/v1/workflows/{id}
func (h *Handler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req UpdateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	wf, err := h.workflowRepo.GetByID(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "workflow not found") {
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			BadRequest(w, "name must not be empty")
			return
		}
		wf.Name = *req.Name
	}
	if req.Description != nil {
		wf.Description = *req.Description
	}
	if req.Definition != nil {
		wf.Definition = *req.Definition
	}

	if err := h.workflowRepo.Update(r.Context(), wf); err != nil {
		HandleError(w, h.logger, err, "workflow not found")
		return
	}

	Success(w, WorkflowFromDomain(*wf))
}

// DeleteWorkflow удаляет workflow.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.workflowRepo.Delete(r.Context(), r.PathValue("id")); err != nil {
		HandleError(w, h.logger, err, "workflow not found")
		return
	}

	NoContent(w)
}

// ListWorkflowVersions возвращает список версий workflow.
// GET /api/v1/workflows/{id}/versions
func (h *Handler) ListWorkflowVersions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Проверяем, что workflow существует
	if _, err := h.workflowRepo.GetByID(r.Context(), id); HandleError(w, h.logger, err, "workflow not found") {
		return
	}

	versions, err := h.workflowRepo.ListVersions(r.Context(), id)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowVersionResponse, len(versions))
	for i, v := range versions {
		result[i] = VersionFromDomain(v)
	}

	List(w, result, len(result))
}

// CreateWorkflowVersion коммитит текущий черновик workflow в версию.
// POST /api/v1/workflows/{id}/versions
//
// Коммит идемпотентен по содержимому: если черновик не менялся с
// последней версии, возвращается существующая версия.
func (h *Handler) CreateWorkflowVersion(w http.ResponseWriter, r *http.Request) {
	wf, err := h.workflowRepo.GetByID(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "workflow not found") {
		return
	}

	// Версия выпускается только из валидного определения
	if _, err := engine.Parse(wf.Definition); err != nil {
		BadRequest(w, err.Error())
		return
	}

	version, err := h.workflowRepo.CreateVersion(r.Context(), wf.ID, wf.Definition)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Created(w, VersionFromDomain(*version))
}

// GetWorkflowVersion возвращает версию workflow по номеру или "latest".
// GET /api/v1/workflows/{id}/versions/{version}
func (h *Handler) GetWorkflowVersion(w http.ResponseWriter, r *http.Request) {
	version, err := h.workflowRepo.GetVersion(r.Context(), r.PathValue("id"), r.PathValue("version"))
	if HandleError(w, h.logger, err, "workflow version not found") {
		return
	}

	Success(w, VersionFromDomain(*version))
}
