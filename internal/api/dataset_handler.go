package api

import (
	"encoding/json"
	"net/http"
)

// ListDatasets возвращает список всех datasets.
// GET /api/v1/datasets
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.datasetRepo.List(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]DatasetResponse, len(datasets))
	for i, ds := range datasets {
		result[i] = DatasetFromDomain(ds)
	}

	List(w, result, len(result))
}

// CreateDataset регистрирует dataset-файл.
// POST /api/v1/datasets
func (h *Handler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	var req CreateDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if req.FilePath == "" {
		BadRequest(w, "file_path is required")
		return
	}

	ds, err := h.datasetRepo.Create(r.Context(), req.Name, req.Description, req.FilePath)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Created(w, DatasetFromDomain(*ds))
}

// GetDataset возвращает dataset по ID.
// GET /api/v1/datasets/{id}
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := h.datasetRepo.GetByID(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "dataset not found") {
		return
	}

	Success(w, DatasetFromDomain(*ds))
}

// GetOutputFile возвращает метаданные артефакта batch-запуска.
// GET /api/v1/output-files/{id}
func (h *Handler) GetOutputFile(w http.ResponseWriter, r *http.Request) {
	of, err := h.datasetRepo.GetOutputFile(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "output file not found") {
		return
	}

	Success(w, OutputFileFromDomain(*of))
}
