package evals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/events"
	"github.com/shaiso/Maestro/internal/orchestrator"
	"github.com/shaiso/Maestro/internal/repo"
	"github.com/shaiso/Maestro/internal/telemetry"
)

// Default configuration values.
const (
	defaultNumSamples = 10
)

// EvalStore — подмножество операций репозитория eval runs.
// Реализуется repo.EvalRunRepo.
type EvalStore interface {
	Create(ctx context.Context, er *domain.EvalRun) error
	MarkRunning(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, results map[string]any) error
	MarkFailed(ctx context.Context, id string, results map[string]any) error
}

// Runner — создание и запуск runs. Реализуется orchestrator.Orchestrator.
type Runner interface {
	CreateRun(ctx context.Context, p orchestrator.CreateRunParams) (*domain.Run, error)
	StartRun(ctx context.Context, runID string) error
}

// WorkflowStore — резолв workflow под оценкой. Реализуется repo.WorkflowRepo.
type WorkflowStore interface {
	GetByID(ctx context.Context, id string) (*domain.Workflow, error)
}

// RunStore — чтение терминального состояния run'а.
type RunStore interface {
	GetByID(ctx context.Context, id string) (*domain.Run, error)
}

// Sampler отдаёт семплы строк dataset'а. Реализуется dataset.HeadSampler.
type Sampler interface {
	Sample(ctx context.Context, datasetID string, n int) ([]map[string]any, error)
}

// Evaluator запускает evaluations.
type Evaluator struct {
	evals     EvalStore
	runner    Runner
	runs      RunStore
	workflows WorkflowStore
	sampler   Sampler

	publisher *events.Publisher
	logger    *slog.Logger
}

// Config — конфигурация Evaluator.
type Config struct {
	Evals     EvalStore
	Runner    Runner
	Runs      RunStore
	Workflows WorkflowStore
	Sampler   Sampler

	// Publisher — исходящий поток событий (может быть nil).
	Publisher *events.Publisher

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Evaluator.
func New(cfg Config) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Evaluator{
		evals:     cfg.Evals,
		runner:    cfg.Runner,
		runs:      cfg.Runs,
		workflows: cfg.Workflows,
		sampler:   cfg.Sampler,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}

// RunEvaluationParams — параметры evaluation.
type RunEvaluationParams struct {
	// EvalName — имя evaluation.
	EvalName string

	// WorkflowID — workflow под оценкой; семплы выполняются против его
	// последней версии.
	WorkflowID string

	// DatasetID — источник семплов.
	DatasetID string

	// OutputVariable — ключ, извлекаемый из выходов каждого run'а.
	OutputVariable string

	// NumSamples — количество семплов (default: 10).
	NumSamples int
}

// sampleResult — итог одного семпла.
type sampleResult struct {
	Sample int    `json:"sample"`
	RunID  string `json:"run_id,omitempty"`
	Status string `json:"status"`
	Value  any    `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RunEvaluation создаёт eval run и синхронно прогоняет все семплы.
//
// EvalRun переходит в RUNNING перед первым семплом и в COMPLETED после
// последнего независимо от исходов отдельных семплов. FAILED
// устанавливается только если семплирование само не удалось.
func (e *Evaluator) RunEvaluation(ctx context.Context, p RunEvaluationParams) (*domain.EvalRun, error) {
	numSamples := p.NumSamples
	if numSamples <= 0 {
		numSamples = defaultNumSamples
	}

	// Workflow резолвится до записи eval run'а: неизвестный id — это
	// NotFound, а не ошибка вставки по FK.
	if _, err := e.workflows.GetByID(ctx, p.WorkflowID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", orchestrator.ErrWorkflowNotFound, p.WorkflowID)
		}
		return nil, fmt.Errorf("resolve workflow %s: %w", p.WorkflowID, err)
	}

	er := &domain.EvalRun{
		EvalName:       p.EvalName,
		WorkflowID:     p.WorkflowID,
		OutputVariable: p.OutputVariable,
		NumSamples:     numSamples,
	}
	if err := e.evals.Create(ctx, er); err != nil {
		return nil, fmt.Errorf("create eval run: %w", err)
	}

	logger := e.logger.With("eval_run_id", er.ID, "workflow_id", p.WorkflowID)

	// Финализация переживает отмену ctx, как и у runs.
	pctx := context.WithoutCancel(ctx)

	rows, err := e.sampler.Sample(ctx, p.DatasetID, numSamples)
	if err != nil {
		logger.Warn("sampling failed", "error", err)
		return e.finalize(pctx, er, domain.EvalRunStatusFailed, map[string]any{
			"error": fmt.Sprintf("sampling failed: %v", err),
		})
	}

	if err := e.evals.MarkRunning(ctx, er.ID); err != nil {
		return nil, err
	}

	logger.Info("evaluation started", "samples", len(rows))

	samples := make([]any, 0, len(rows))
	succeeded, failed := 0, 0
	sum, numeric := 0.0, 0

	for i, row := range rows {
		entry := e.runSample(ctx, p, i, row)
		samples = append(samples, entry)

		if entry.Status == string(domain.RunStatusCompleted) {
			succeeded++
			if v, ok := toFloat(entry.Value); ok {
				sum += v
				numeric++
			}
		} else {
			failed++
		}
	}

	summary := map[string]any{
		"total":     len(rows),
		"succeeded": succeeded,
		"failed":    failed,
	}
	if numeric > 0 {
		summary["mean"] = sum / float64(numeric)
	}

	return e.finalize(pctx, er, domain.EvalRunStatusCompleted, map[string]any{
		"samples": samples,
		"summary": summary,
	})
}

// runSample выполняет один семпл: run против последней версии workflow.
func (e *Evaluator) runSample(ctx context.Context, p RunEvaluationParams, idx int, row map[string]any) sampleResult {
	run, err := e.runner.CreateRun(ctx, orchestrator.CreateRunParams{
		WorkflowID:    p.WorkflowID,
		VersionRef:    "latest",
		RunType:       domain.RunTypeSingle,
		InitialInputs: row,
	})
	if err != nil {
		return sampleResult{Sample: idx, Status: string(domain.RunStatusFailed), Error: err.Error()}
	}

	if err := e.runner.StartRun(ctx, run.ID); err != nil {
		return sampleResult{Sample: idx, RunID: run.ID, Status: string(domain.RunStatusFailed), Error: err.Error()}
	}

	terminal, err := e.runs.GetByID(ctx, run.ID)
	if err != nil {
		return sampleResult{Sample: idx, RunID: run.ID, Status: string(domain.RunStatusFailed), Error: err.Error()}
	}

	entry := sampleResult{Sample: idx, RunID: run.ID, Status: string(terminal.Status)}
	if terminal.Status != domain.RunStatusCompleted {
		entry.Error = terminal.Error
		return entry
	}

	value, ok := terminal.Outputs[p.OutputVariable]
	if !ok {
		entry.Status = string(domain.RunStatusFailed)
		entry.Error = fmt.Sprintf("output variable %q not found in run outputs", p.OutputVariable)
		return entry
	}
	entry.Value = value
	return entry
}

// finalize переводит eval run в терминальный статус и публикует событие.
func (e *Evaluator) finalize(ctx context.Context, er *domain.EvalRun, status domain.EvalRunStatus, results map[string]any) (*domain.EvalRun, error) {
	var err error
	if status == domain.EvalRunStatusCompleted {
		err = e.evals.MarkCompleted(ctx, er.ID, results)
	} else {
		err = e.evals.MarkFailed(ctx, er.ID, results)
	}
	if err != nil {
		return nil, fmt.Errorf("finalize eval run %s: %w", er.ID, err)
	}

	telemetry.EvalRunsFinished.WithLabelValues(string(status)).Inc()
	if perr := e.publisher.PublishEvalFinished(ctx, events.EvalEventPayload{
		EvalRunID:  er.ID,
		EvalName:   er.EvalName,
		WorkflowID: er.WorkflowID,
		Status:     string(status),
	}); perr != nil {
		e.logger.Warn("failed to publish eval event", "eval_run_id", er.ID, "error", perr)
	}

	er.Status = status
	er.Results = results
	return er, nil
}

// toFloat приводит JSON-значение к float64 для сводной статистики.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
