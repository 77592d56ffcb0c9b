package domain

import "time"

// RunType — способ запуска run.
type RunType string

const (
	// RunTypeSingle — одиночный запуск с initial_inputs.
	RunTypeSingle RunType = "single"

	// RunTypeBatch — batch-запуск по строкам dataset.
	RunTypeBatch RunType = "batch"
)

// Valid проверяет, известен ли тип запуска.
func (t RunType) Valid() bool {
	return t == RunTypeSingle || t == RunTypeBatch
}

// Run — одно выполнение запиненной WorkflowVersion.
//
// Run создаётся когда:
//   - Пользователь запускает workflow через API/CLI
//   - Orchestrator разворачивает dataset в batch-запуск
//   - Sub-workflow узел родительского run'а порождает дочерний run
//   - Evaluation aggregator выпускает sample runs
//
// WorkflowID и WorkflowVersionID пиннятся при создании и никогда не
// обновляются: run всегда выполняется против тех самых байтов definition,
// с которыми был создан.
type Run struct {
	// ID — публичный идентификатор ("R" + счётчик).
	ID string `json:"id"`

	// WorkflowID — workflow, которому принадлежит run.
	WorkflowID string `json:"workflow_id"`

	// WorkflowVersionID — запиненная версия. Неизменяема после создания.
	WorkflowVersionID string `json:"workflow_version_id"`

	// ParentRunID — родительский run, если этот run порождён sub-workflow
	// узлом. Родитель может принадлежать другому workflow.
	ParentRunID string `json:"parent_run_id,omitempty"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// RunType — single или batch.
	RunType RunType `json:"run_type"`

	// InitialInputs — входные данные для single-запуска.
	InitialInputs map[string]any `json:"initial_inputs,omitempty"`

	// InputDatasetID — dataset для batch-запуска.
	InputDatasetID string `json:"input_dataset_id,omitempty"`

	// StartTime — устанавливается ровно один раз при PENDING → RUNNING.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime — устанавливается ровно один раз при переходе в терминальный
	// статус.
	EndTime *time.Time `json:"end_time,omitempty"`

	// Outputs — агрегированные выходы run'а (выходы sink-узлов; для batch —
	// свод по строкам).
	Outputs map[string]any `json:"outputs,omitempty"`

	// OutputFileID — артефакт с построчными результатами batch-запуска.
	OutputFileID string `json:"output_file_id,omitempty"`

	// Error — причина падения (в том числе "cancelled").
	Error string `json:"error,omitempty"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartTime == nil || r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(*r.StartTime)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now().UTC()
	r.Status = RunStatusRunning
	r.StartTime = &now
}

// MarkCompleted переводит run в статус COMPLETED с выходами.
func (r *Run) MarkCompleted(outputs map[string]any) {
	now := time.Now().UTC()
	r.Status = RunStatusCompleted
	r.EndTime = &now
	r.Outputs = outputs
}

// MarkFailed переводит run в статус FAILED с причиной.
func (r *Run) MarkFailed(reason string) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.EndTime = &now
	r.Error = reason
}
