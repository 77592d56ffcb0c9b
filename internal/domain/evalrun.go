package domain

import "time"

// EvalRun — серия sample-запусков workflow, сведённая в один результат.
//
// Evaluation aggregator выпускает по одному run на sample (против последней
// версии workflow), извлекает OutputVariable из выходов каждого
// завершённого run'а и накапливает Results: записи по samples плюс сводная
// статистика. Падение отдельного sample — это запись в Results, а не
// падение всей оценки (зеркально политике batch-запусков).
type EvalRun struct {
	// ID — публичный идентификатор ("ER" + счётчик).
	ID string `json:"id"`

	// EvalName — имя evaluation (определяет источник samples).
	EvalName string `json:"eval_name"`

	// WorkflowID — оцениваемый workflow.
	WorkflowID string `json:"workflow_id"`

	// Status — текущий статус evaluation.
	Status EvalRunStatus `json:"status"`

	// OutputVariable — переменная, извлекаемая из выходов каждого sample run.
	OutputVariable string `json:"output_variable"`

	// NumSamples — количество запрошенных samples.
	NumSamples int `json:"num_samples"`

	// StartTime — устанавливается при первой диспетчеризации.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime — устанавливается при входе в терминальный статус.
	EndTime *time.Time `json:"end_time,omitempty"`

	// Results — агрегированный результат: записи по samples + сводка.
	Results map[string]any `json:"results,omitempty"`
}

// IsFinished возвращает true, если evaluation завершён.
func (e *EvalRun) IsFinished() bool {
	return e.Status.IsTerminal()
}

// MarkRunning переводит evaluation в статус RUNNING.
func (e *EvalRun) MarkRunning() {
	now := time.Now().UTC()
	e.Status = EvalRunStatusRunning
	e.StartTime = &now
}

// MarkCompleted переводит evaluation в статус COMPLETED с результатами.
func (e *EvalRun) MarkCompleted(results map[string]any) {
	now := time.Now().UTC()
	e.Status = EvalRunStatusCompleted
	e.EndTime = &now
	e.Results = results
}

// MarkFailed переводит evaluation в статус FAILED.
func (e *EvalRun) MarkFailed(results map[string]any) {
	now := time.Now().UTC()
	e.Status = EvalRunStatusFailed
	e.EndTime = &now
	if results != nil {
		e.Results = results
	}
}
