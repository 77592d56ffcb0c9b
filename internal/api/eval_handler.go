package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Maestro/internal/evals"
)

// ListEvalRuns возвращает список eval runs.
// GET /api/v1/evals
func (h *Handler) ListEvalRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.evalRepo.List(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]EvalRunResponse, len(runs))
	for i, er := range runs {
		result[i] = EvalRunFromDomain(er)
	}

	List(w, result, len(result))
}

// RunEvaluation запускает evaluation и дожидается её завершения.
// POST /api/v1/evals
//
// Семплы прогоняются последовательно, их количество ограничено, поэтому
// запрос выполняется синхронно и возвращает eval run в терминальном
// статусе вместе с накопленными results.
func (h *Handler) RunEvaluation(w http.ResponseWriter, r *http.Request) {
	var req RunEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.EvalName == "" {
		BadRequest(w, "eval_name is required")
		return
	}
	if req.WorkflowID == "" {
		BadRequest(w, "workflow_id is required")
		return
	}
	if req.DatasetID == "" {
		BadRequest(w, "dataset_id is required")
		return
	}
	if req.OutputVariable == "" {
		BadRequest(w, "output_variable is required")
		return
	}

	er, err := h.evaluator.RunEvaluation(r.Context(), evals.RunEvaluationParams{
		EvalName:       req.EvalName,
		WorkflowID:     req.WorkflowID,
		DatasetID:      req.DatasetID,
		OutputVariable: req.OutputVariable,
		NumSamples:     req.NumSamples,
	})
	if HandleError(w, h.logger, err, "") {
		return
	}

	Created(w, EvalRunFromDomain(*er))
}

// GetEvalRun возвращает eval run по ID.
// GET /api/v1/evals/{id}
func (h *Handler) GetEvalRun(w http.ResponseWriter, r *http.Request) {
	er, err := h.evalRepo.GetByID(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "eval run not found") {
		return
	}

	Success(w, EvalRunFromDomain(*er))
}
