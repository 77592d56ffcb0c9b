package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Definition  json.RawMessage `json:"definition"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

// WorkflowVersionResponse — версия workflow из API.
type WorkflowVersionResponse struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	Version        int             `json:"version"`
	Name           string          `json:"name"`
	Definition     json.RawMessage `json:"definition"`
	DefinitionHash string          `json:"definition_hash"`
	CreatedAt      string          `json:"created_at"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID                string         `json:"id"`
	WorkflowID        string         `json:"workflow_id"`
	WorkflowVersionID string         `json:"workflow_version_id"`
	ParentRunID       string         `json:"parent_run_id,omitempty"`
	Status            string         `json:"status"`
	RunType           string         `json:"run_type"`
	InitialInputs     map[string]any `json:"initial_inputs,omitempty"`
	InputDatasetID    string         `json:"input_dataset_id,omitempty"`
	StartTime         string         `json:"start_time,omitempty"`
	EndTime           string         `json:"end_time,omitempty"`
	Outputs           map[string]any `json:"outputs,omitempty"`
	OutputFileID      string         `json:"output_file_id,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// TaskResponse — task из API.
type TaskResponse struct {
	ID                string         `json:"id"`
	RunID             string         `json:"run_id"`
	NodeID            string         `json:"node_id"`
	ParentTaskID      string         `json:"parent_task_id,omitempty"`
	Status            string         `json:"status"`
	Inputs            map[string]any `json:"inputs,omitempty"`
	Outputs           map[string]any `json:"outputs,omitempty"`
	StartTime         string         `json:"start_time,omitempty"`
	EndTime           string         `json:"end_time,omitempty"`
	SubworkflowOutput map[string]any `json:"subworkflow_output,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// DatasetResponse — dataset из API.
type DatasetResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	FilePath    string `json:"file_path"`
	UploadedAt  string `json:"uploaded_at"`
}

// EvalRunResponse — eval run из API.
type EvalRunResponse struct {
	ID             string         `json:"id"`
	EvalName       string         `json:"eval_name"`
	WorkflowID     string         `json:"workflow_id"`
	Status         string         `json:"status"`
	OutputVariable string         `json:"output_variable"`
	NumSamples     int            `json:"num_samples"`
	StartTime      string         `json:"start_time,omitempty"`
	EndTime        string         `json:"end_time,omitempty"`
	Results        map[string]any `json:"results,omitempty"`
}

// --- Request types ---

// CreateWorkflowRequest — создание workflow.
type CreateWorkflowRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Definition  json.RawMessage `json:"definition,omitempty"`
}

// UpdateWorkflowRequest — обновление workflow.
type UpdateWorkflowRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Definition  *json.RawMessage `json:"definition,omitempty"`
}

// CreateRunRequest — создание run.
type CreateRunRequest struct {
	RunType       string         `json:"run_type"`
	Version       string         `json:"version,omitempty"`
	InitialInputs map[string]any `json:"initial_inputs,omitempty"`
	DatasetID     string         `json:"dataset_id,omitempty"`
}

// CreateDatasetRequest — регистрация dataset.
type CreateDatasetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	FilePath    string `json:"file_path"`
}

// RunEvaluationRequest — запуск evaluation.
type RunEvaluationRequest struct {
	EvalName       string `json:"eval_name"`
	WorkflowID     string `json:"workflow_id"`
	DatasetID      string `json:"dataset_id"`
	OutputVariable string `json:"output_variable"`
	NumSamples     int    `json:"num_samples,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	WorkflowID string
	Status     string
	Limit      int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Maestro API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workflows ---

// ListWorkflows возвращает все workflows.
func (c *Client) ListWorkflows() ([]WorkflowResponse, error) {
	var workflows []WorkflowResponse
	err := c.list("/api/v1/workflows", nil, &workflows)
	return workflows, err
}

// CreateWorkflow создаёт новый workflow.
func (c *Client) CreateWorkflow(req CreateWorkflowRequest) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.post("/api/v1/workflows", req, &wf)
	return &wf, err
}

// GetWorkflow возвращает workflow по ID.
func (c *Client) GetWorkflow(id string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get("/api/v1/workflows/"+id, &wf)
	return &wf, err
}

// UpdateWorkflow обновляет workflow.
func (c *Client) UpdateWorkflow(id string, req UpdateWorkflowRequest) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.put("/api/v1/workflows/"+id, req, &wf)
	return &wf, err
}

// DeleteWorkflow удаляет workflow.
func (c *Client) DeleteWorkflow(id string) error {
	return c.delete("/api/v1/workflows/" + id)
}

// ListVersions возвращает версии workflow.
func (c *Client) ListVersions(workflowID string) ([]WorkflowVersionResponse, error) {
	var versions []WorkflowVersionResponse
	err := c.list("/api/v1/workflows/"+workflowID+"/versions", nil, &versions)
	return versions, err
}

// PublishVersion коммитит текущий черновик workflow в версию.
func (c *Client) PublishVersion(workflowID string) (*WorkflowVersionResponse, error) {
	var version WorkflowVersionResponse
	err := c.post("/api/v1/workflows/"+workflowID+"/versions", nil, &version)
	return &version, err
}

// GetVersion возвращает версию по номеру или "latest".
func (c *Client) GetVersion(workflowID, ref string) (*WorkflowVersionResponse, error) {
	var version WorkflowVersionResponse
	err := c.get("/api/v1/workflows/"+workflowID+"/versions/"+ref, &version)
	return &version, err
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.WorkflowID != "" {
		params.Set("workflow_id", opts.WorkflowID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// CreateRun создаёт run для workflow.
func (c *Client) CreateRun(workflowID string, req CreateRunRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/workflows/"+workflowID+"/runs", req, &run)
	return &run, err
}

// StartRun запускает выполнение run.
func (c *Client) StartRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs/"+id+"/start", nil, &run)
	return &run, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// CancelRun отменяет run.
func (c *Client) CancelRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs/"+id+"/cancel", nil, &run)
	return &run, err
}

// ListTasks возвращает tasks для run.
func (c *Client) ListTasks(runID string) ([]TaskResponse, error) {
	var tasks []TaskResponse
	err := c.list("/api/v1/runs/"+runID+"/tasks", nil, &tasks)
	return tasks, err
}

// --- Datasets ---

// ListDatasets возвращает все datasets.
func (c *Client) ListDatasets() ([]DatasetResponse, error) {
	var datasets []DatasetResponse
	err := c.list("/api/v1/datasets", nil, &datasets)
	return datasets, err
}

// CreateDataset регистрирует dataset-файл.
func (c *Client) CreateDataset(req CreateDatasetRequest) (*DatasetResponse, error) {
	var ds DatasetResponse
	err := c.post("/api/v1/datasets", req, &ds)
	return &ds, err
}

// GetDataset возвращает dataset по ID.
func (c *Client) GetDataset(id string) (*DatasetResponse, error) {
	var ds DatasetResponse
	err := c.get("/api/v1/datasets/"+id, &ds)
	return &ds, err
}

// --- Evals ---

// ListEvalRuns возвращает eval runs.
func (c *Client) ListEvalRuns() ([]EvalRunResponse, error) {
	var runs []EvalRunResponse
	err := c.list("/api/v1/evals", nil, &runs)
	return runs, err
}

// RunEvaluation запускает evaluation и ждёт результатов.
func (c *Client) RunEvaluation(req RunEvaluationRequest) (*EvalRunResponse, error) {
	var er EvalRunResponse
	err := c.post("/api/v1/evals", req, &er)
	return &er, err
}

// GetEvalRun возвращает eval run по ID.
func (c *Client) GetEvalRun(id string) (*EvalRunResponse, error) {
	var er EvalRunResponse
	err := c.get("/api/v1/evals/"+id, &er)
	return &er, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
