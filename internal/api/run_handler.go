package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/orchestrator"
	"github.com/shaiso/Maestro/internal/repo"
)

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?workflow_id=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.RunFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		Status:     domain.RunStatus(r.URL.Query().Get("status")),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	}

	runs, err := h.runRepo.List(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// CreateRun создаёт run для workflow в статусе PENDING.
// POST /api/v1/workflows/{id}/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	run, err := h.orch.CreateRun(r.Context(), orchestrator.CreateRunParams{
		WorkflowID:    r.PathValue("id"),
		VersionRef:    req.Version,
		RunType:       domain.RunType(req.RunType),
		InitialInputs: req.InitialInputs,
		DatasetID:     req.DatasetID,
	})
	if HandleError(w, h.logger, err, "") {
		return
	}

	Created(w, RunFromDomain(*run))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runRepo.GetByID(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// StartRun запускает выполнение run в фоне.
// POST /api/v1/runs/{id}/start
//
// Выполнение длится произвольно долго, поэтому ответ — 202 с run в
// текущем состоянии. Повторный запуск отклоняет CAS-переход статуса,
// гонка двух start-запросов безопасна.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "run not found") {
		return
	}

	if run.Status != domain.RunStatusPending {
		InvalidState(w, "run already started")
		return
	}

	// Выполнение отвязано от жизни HTTP-запроса
	go func() {
		if err := h.orch.StartRun(context.Background(), id); err != nil {
			h.logger.Error("run execution failed", "run_id", id, "error", err)
		}
	}()

	Accepted(w, RunFromDomain(*run))
}

// CancelRun запрашивает отмену run.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.orch.CancelRun(r.Context(), id); HandleError(w, h.logger, err, "run not found") {
		return
	}

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// ListRunTasks возвращает дерево tasks для run.
// GET /api/v1/runs/{id}/tasks
func (h *Handler) ListRunTasks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Проверяем, что run существует
	if _, err := h.runRepo.GetByID(r.Context(), id); HandleError(w, h.logger, err, "run not found") {
		return
	}

	tasks, err := h.taskRepo.ListByRun(r.Context(), id)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromDomain(t)
	}

	List(w, result, len(result))
}

// queryInt парсит числовой query-параметр с дефолтом.
func queryInt(r *http.Request, name string, defaultVal int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
