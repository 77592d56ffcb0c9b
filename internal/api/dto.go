package api

import (
	"encoding/json"
	"time"

	"github.com/shaiso/Maestro/internal/domain"
)

// Workflow DTOs

// CreateWorkflowRequest — запрос на создание workflow.
type CreateWorkflowRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Definition  json.RawMessage `json:"definition,omitempty"`
}

// UpdateWorkflowRequest — запрос на обновление workflow.
// Обновляется контейнер и текущий черновик; выпущенные версии неизменяемы.
type UpdateWorkflowRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Definition  *json.RawMessage `json:"definition,omitempty"`
}

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Definition  json.RawMessage `json:"definition"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(wf domain.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Definition:  wf.Definition,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
}

// WorkflowVersion DTOs

// WorkflowVersionResponse — ответ с версией workflow.
type WorkflowVersionResponse struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	Version        int             `json:"version"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Definition     json.RawMessage `json:"definition"`
	DefinitionHash string          `json:"definition_hash"`
	CreatedAt      time.Time       `json:"created_at"`
}

// VersionFromDomain конвертирует domain.WorkflowVersion в ответ.
func VersionFromDomain(v domain.WorkflowVersion) WorkflowVersionResponse {
	return WorkflowVersionResponse{
		ID:             v.ID,
		WorkflowID:     v.WorkflowID,
		Version:        v.Version,
		Name:           v.Name,
		Description:    v.Description,
		Definition:     v.Definition,
		DefinitionHash: v.DefinitionHash,
		CreatedAt:      v.CreatedAt,
	}
}

// Run DTOs

// CreateRunRequest — запрос на создание run.
//
// Version — "", "latest" или номер версии; пустое значение коммитит
// текущий черновик workflow в версию перед запуском.
type CreateRunRequest struct {
	RunType       string         `json:"run_type"`
	Version       string         `json:"version,omitempty"`
	InitialInputs map[string]any `json:"initial_inputs,omitempty"`
	DatasetID     string         `json:"dataset_id,omitempty"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID                string         `json:"id"`
	WorkflowID        string         `json:"workflow_id"`
	WorkflowVersionID string         `json:"workflow_version_id"`
	ParentRunID       string         `json:"parent_run_id,omitempty"`
	Status            string         `json:"status"`
	RunType           string         `json:"run_type"`
	InitialInputs     map[string]any `json:"initial_inputs,omitempty"`
	InputDatasetID    string         `json:"input_dataset_id,omitempty"`
	StartTime         *time.Time     `json:"start_time,omitempty"`
	EndTime           *time.Time     `json:"end_time,omitempty"`
	Outputs           map[string]any `json:"outputs,omitempty"`
	OutputFileID      string         `json:"output_file_id,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:                r.ID,
		WorkflowID:        r.WorkflowID,
		WorkflowVersionID: r.WorkflowVersionID,
		ParentRunID:       r.ParentRunID,
		Status:            string(r.Status),
		RunType:           string(r.RunType),
		InitialInputs:     r.InitialInputs,
		InputDatasetID:    r.InputDatasetID,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		Outputs:           r.Outputs,
		OutputFileID:      r.OutputFileID,
		Error:             r.Error,
	}
}

// Task DTOs

// TaskResponse — ответ с task.
type TaskResponse struct {
	ID                string          `json:"id"`
	RunID             string          `json:"run_id"`
	NodeID            string          `json:"node_id"`
	ParentTaskID      string          `json:"parent_task_id,omitempty"`
	Status            string          `json:"status"`
	Inputs            map[string]any  `json:"inputs,omitempty"`
	Outputs           map[string]any  `json:"outputs,omitempty"`
	StartTime         *time.Time      `json:"start_time,omitempty"`
	EndTime           *time.Time      `json:"end_time,omitempty"`
	Subworkflow       json.RawMessage `json:"subworkflow,omitempty"`
	SubworkflowOutput map[string]any  `json:"subworkflow_output,omitempty"`
	Error             string          `json:"error,omitempty"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:                t.ID,
		RunID:             t.RunID,
		NodeID:            t.NodeID,
		ParentTaskID:      t.ParentTaskID,
		Status:            string(t.Status),
		Inputs:            t.Inputs,
		Outputs:           t.Outputs,
		StartTime:         t.StartTime,
		EndTime:           t.EndTime,
		Subworkflow:       t.Subworkflow,
		SubworkflowOutput: t.SubworkflowOutput,
		Error:             t.Error,
	}
}

// Dataset DTOs

// CreateDatasetRequest — запрос на регистрацию dataset.
// FilePath указывает на JSONL-файл, доступный серверу.
type CreateDatasetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	FilePath    string `json:"file_path"`
}

// DatasetResponse — ответ с dataset.
type DatasetResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	FilePath    string    `json:"file_path"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// DatasetFromDomain конвертирует domain.Dataset в DatasetResponse.
func DatasetFromDomain(ds domain.Dataset) DatasetResponse {
	return DatasetResponse{
		ID:          ds.ID,
		Name:        ds.Name,
		Description: ds.Description,
		FilePath:    ds.FilePath,
		UploadedAt:  ds.UploadedAt,
	}
}

// OutputFileResponse — артефакт batch-запуска в API ответе.
type OutputFileResponse struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}

// OutputFileFromDomain конвертирует domain.OutputFile в OutputFileResponse.
func OutputFileFromDomain(of domain.OutputFile) OutputFileResponse {
	return OutputFileResponse{
		ID:        of.ID,
		FileName:  of.FileName,
		FilePath:  of.FilePath,
		CreatedAt: of.CreatedAt,
	}
}

// Eval DTOs

// RunEvaluationRequest — запрос на запуск evaluation.
type RunEvaluationRequest struct {
	EvalName       string `json:"eval_name"`
	WorkflowID     string `json:"workflow_id"`
	DatasetID      string `json:"dataset_id"`
	OutputVariable string `json:"output_variable"`
	NumSamples     int    `json:"num_samples,omitempty"`
}

// EvalRunResponse — ответ с eval run.
type EvalRunResponse struct {
	ID             string         `json:"id"`
	EvalName       string         `json:"eval_name"`
	WorkflowID     string         `json:"workflow_id"`
	Status         string         `json:"status"`
	OutputVariable string         `json:"output_variable"`
	NumSamples     int            `json:"num_samples"`
	StartTime      *time.Time     `json:"start_time,omitempty"`
	EndTime        *time.Time     `json:"end_time,omitempty"`
	Results        map[string]any `json:"results,omitempty"`
}

// EvalRunFromDomain конвертирует domain.EvalRun в EvalRunResponse.
func EvalRunFromDomain(er domain.EvalRun) EvalRunResponse {
	return EvalRunResponse{
		ID:             er.ID,
		EvalName:       er.EvalName,
		WorkflowID:     er.WorkflowID,
		Status:         string(er.Status),
		OutputVariable: er.OutputVariable,
		NumSamples:     er.NumSamples,
		StartTime:      er.StartTime,
		EndTime:        er.EndTime,
		Results:        er.Results,
	}
}
