package domain

import (
	"encoding/json"
	"time"
)

// Task — запись о выполнении одного узла графа внутри run.
//
// Task создаётся Task Tree Executor'ом когда узел диспетчеризуется (все
// зависимости дали COMPLETED tasks) либо когда узел пропускается из-за
// падения выше по графу — тогда task создаётся сразу в FAILED без
// start_time.
//
// Если узел — sub-workflow, task владеет вложенным выполнением: дочерний
// run создаётся с parent_run_id текущего run'а, а tasks дочернего
// выполнения получают parent_task_id этого task'а. Снимок определения
// дочернего workflow хранится в Subworkflow, а выходы дочернего run'а —
// в SubworkflowOutput.
type Task struct {
	// ID — публичный идентификатор ("T" + счётчик).
	ID string `json:"id"`

	// RunID — run, которому принадлежит task. Неизменяем.
	RunID string `json:"run_id"`

	// NodeID — идентификатор узла графа, который выполняет task.
	NodeID string `json:"node_id"`

	// ParentTaskID — sub-workflow task, породивший это выполнение.
	ParentTaskID string `json:"parent_task_id,omitempty"`

	// Status — текущий статус task.
	Status TaskStatus `json:"status"`

	// Inputs — разрешённые входы узла (выходы задач-зависимостей; для
	// корневых узлов — initial_inputs run'а).
	Inputs map[string]any `json:"inputs,omitempty"`

	// Outputs — выходы узла после успешного выполнения.
	Outputs map[string]any `json:"outputs,omitempty"`

	// StartTime — устанавливается ровно один раз при PENDING → RUNNING.
	// У пропущенных (short-circuit) tasks остаётся NULL.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime — устанавливается ровно один раз при входе в терминальный
	// статус.
	EndTime *time.Time `json:"end_time,omitempty"`

	// Subworkflow — снимок определения дочернего workflow (только для
	// sub-workflow узлов).
	Subworkflow json.RawMessage `json:"subworkflow,omitempty"`

	// SubworkflowOutput — выходы дочернего run'а по завершении.
	SubworkflowOutput map[string]any `json:"subworkflow_output,omitempty"`

	// Error — причина падения или пропуска.
	Error string `json:"error,omitempty"`
}

// Duration возвращает продолжительность выполнения.
func (t *Task) Duration() time.Duration {
	if t.StartTime == nil || t.EndTime == nil {
		return 0
	}
	return t.EndTime.Sub(*t.StartTime)
}

// IsFinished возвращает true, если task завершён.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// MarkRunning переводит task в статус RUNNING.
func (t *Task) MarkRunning() {
	now := time.Now().UTC()
	t.Status = TaskStatusRunning
	t.StartTime = &now
}

// MarkCompleted переводит task в статус COMPLETED с результатами.
func (t *Task) MarkCompleted(outputs map[string]any) {
	now := time.Now().UTC()
	t.Status = TaskStatusCompleted
	t.EndTime = &now
	t.Outputs = outputs
}

// MarkFailed переводит task в статус FAILED с причиной.
func (t *Task) MarkFailed(reason string) {
	now := time.Now().UTC()
	t.Status = TaskStatusFailed
	t.EndTime = &now
	t.Error = reason
}
