package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/events"
	"github.com/shaiso/Maestro/internal/executor"
	"github.com/shaiso/Maestro/internal/repo"
	"github.com/shaiso/Maestro/internal/telemetry"
)

// CreateRunParams — параметры создания run.
type CreateRunParams struct {
	// WorkflowID — workflow для выполнения.
	WorkflowID string

	// VersionRef — "" (закоммитить текущий черновик), "latest" либо
	// номер версии.
	VersionRef string

	// RunType — single или batch.
	RunType domain.RunType

	// InitialInputs — входы корневых узлов (только single).
	InitialInputs map[string]any

	// DatasetID — источник строк (только batch).
	DatasetID string

	// ParentRunID — родительский run для sub-workflow выполнений.
	ParentRunID string
}

// CreateRun создаёт run в статусе PENDING с запиненной версией workflow.
//
// Пустой VersionRef коммитит текущий черновик workflow в версию
// (идемпотентно по содержимому) — run всегда привязан к неизменяемому
// снимку определения.
func (o *Orchestrator) CreateRun(ctx context.Context, p CreateRunParams) (*domain.Run, error) {
	if !p.RunType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunType, p.RunType)
	}

	switch p.RunType {
	case domain.RunTypeSingle:
		if p.DatasetID != "" {
			return nil, fmt.Errorf("%w: single run must not reference a dataset", ErrInvalidRunInput)
		}
	case domain.RunTypeBatch:
		if p.DatasetID == "" {
			return nil, fmt.Errorf("%w: batch run requires a dataset", ErrInvalidRunInput)
		}
		if len(p.InitialInputs) > 0 {
			return nil, fmt.Errorf("%w: batch run must not carry initial inputs", ErrInvalidRunInput)
		}
	}

	if p.ParentRunID != "" {
		if err := o.checkNestingDepth(ctx, p.ParentRunID); err != nil {
			return nil, err
		}
	}

	version, err := o.resolveVersion(ctx, p.WorkflowID, p.VersionRef)
	if err != nil {
		return nil, err
	}

	if p.DatasetID != "" {
		if _, err := o.datasets.GetByID(ctx, p.DatasetID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, p.DatasetID)
			}
			return nil, fmt.Errorf("get dataset: %w", err)
		}
	}

	run := &domain.Run{
		WorkflowID:        p.WorkflowID,
		WorkflowVersionID: version.ID,
		ParentRunID:       p.ParentRunID,
		RunType:           p.RunType,
		InitialInputs:     p.InitialInputs,
		InputDatasetID:    p.DatasetID,
	}
	if err := o.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	o.logger.Info("run created",
		"run_id", run.ID,
		"workflow_id", p.WorkflowID,
		"version_id", version.ID,
		"run_type", p.RunType,
		"parent_run_id", p.ParentRunID,
	)

	return run, nil
}

// resolveVersion резолвит версию для пиннинга.
func (o *Orchestrator) resolveVersion(ctx context.Context, workflowID, versionRef string) (*domain.WorkflowVersion, error) {
	if versionRef == "" {
		// Коммитим текущий черновик. CreateVersion идемпотентна,
		// конкурентный конфликт номера версии ретраится один раз.
		wf, err := o.workflows.GetByID(ctx, workflowID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
			}
			return nil, fmt.Errorf("get workflow: %w", err)
		}

		version, err := o.workflows.CreateVersion(ctx, workflowID, wf.Definition)
		if errors.Is(err, repo.ErrAlreadyExists) {
			version, err = o.workflows.CreateVersion(ctx, workflowID, wf.Definition)
		}
		if err != nil {
			return nil, fmt.Errorf("commit draft version: %w", err)
		}
		return version, nil
	}

	version, err := o.workflows.GetVersion(ctx, workflowID, versionRef)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s v%s", ErrVersionNotFound, workflowID, versionRef)
		}
		return nil, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// checkNestingDepth проходит цепочку parent_run_id вверх и отклоняет
// создание run'а глубже maxDepth. Защита от self-referential workflows.
func (o *Orchestrator) checkNestingDepth(ctx context.Context, parentRunID string) error {
	depth := 1
	id := parentRunID

	for id != "" {
		if depth >= o.maxDepth {
			return fmt.Errorf("%w: depth %d", ErrMaxDepthExceeded, depth)
		}

		parent, err := o.runs.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("%w: parent %s", ErrRunNotFound, id)
			}
			return fmt.Errorf("walk parent chain: %w", err)
		}

		id = parent.ParentRunID
		depth++
	}

	return nil
}

// StartRun выполняет run синхронно: PENDING → RUNNING → терминальный
// статус. Повторный запуск отклоняется со StateTransitionError.
func (o *Orchestrator) StartRun(ctx context.Context, runID string) error {
	_, err := o.startRun(ctx, runID, "")
	return err
}

// startRun — общий путь запуска для верхнеуровневых и дочерних runs.
// Возвращает run в терминальном статусе.
func (o *Orchestrator) startRun(ctx context.Context, runID, parentTaskID string) (*domain.Run, error) {
	run, err := o.runs.MarkRunning(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	telemetry.RunsStarted.WithLabelValues(string(run.RunType)).Inc()
	if perr := o.publisher.PublishRunStarted(ctx, events.RunEventPayload{
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		RunType:    string(run.RunType),
		Status:     string(domain.RunStatusRunning),
	}); perr != nil {
		o.logger.Warn("failed to publish run event", "run_id", run.ID, "error", perr)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.addActiveRun(run.ID, cancel)
	defer o.removeActiveRun(run.ID)

	// Финализация должна переживать отмену runCtx.
	pctx := context.WithoutCancel(ctx)

	version, err := o.workflows.GetVersionByID(ctx, run.WorkflowVersionID)
	if err != nil {
		return o.finalizeFailed(pctx, run, fmt.Sprintf("load pinned version: %v", err), nil, "")
	}

	var (
		outputs      map[string]any
		outputFileID string
		failReason   string
	)

	switch run.RunType {
	case domain.RunTypeBatch:
		outputs, outputFileID, failReason, err = o.runBatch(runCtx, pctx, run, version)
	default:
		outputs, failReason, err = o.runSingle(runCtx, run, version, parentTaskID)
	}
	if err != nil {
		// Невалидное определение или инфраструктурный сбой: run падает,
		// ошибка поднимается вызывающему.
		if _, ferr := o.finalizeFailed(pctx, run, err.Error(), nil, ""); ferr != nil {
			o.logger.Error("failed to finalize run", "run_id", run.ID, "error", ferr)
		}
		return nil, err
	}

	if failReason != "" {
		return o.finalizeFailed(pctx, run, failReason, outputs, outputFileID)
	}
	return o.finalizeCompleted(pctx, run, outputs, outputFileID)
}

// runSingle выполняет одно дерево с initial_inputs run'а.
// Возвращает выходы и причину падения (пустая строка — успех).
func (o *Orchestrator) runSingle(ctx context.Context, run *domain.Run, version *domain.WorkflowVersion, parentTaskID string) (map[string]any, string, error) {
	res, err := o.exec.Execute(ctx, executor.Params{
		Run:          run,
		Definition:   version.Definition,
		Inputs:       run.InitialInputs,
		ParentTaskID: parentTaskID,
	})
	if err != nil {
		return nil, "", err
	}

	switch {
	case res.Cancelled:
		return res.Outputs, "cancelled", nil
	case res.Failed():
		return res.Outputs, fmt.Sprintf("nodes failed: %v", res.FailedNodes), nil
	default:
		return res.Outputs, "", nil
	}
}

// rowResult — итог выполнения одной строки batch run'а.
type rowResult struct {
	Row     int            `json:"row"`
	Status  string         `json:"status"`
	Outputs map[string]any `json:"outputs,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// runBatch выполняет дерево на каждую строку dataset'а.
//
// Политика best-effort: падение строки не прерывает соседние, но run
// в целом становится FAILED, если упала хотя бы одна строка.
// Агрегированные результаты пишутся в OutputFile (JSONL) и в outputs.
func (o *Orchestrator) runBatch(ctx, pctx context.Context, run *domain.Run, version *domain.WorkflowVersion) (map[string]any, string, string, error) {
	ds, err := o.datasets.GetByID(ctx, run.InputDatasetID)
	if err != nil {
		return nil, "", "", fmt.Errorf("get dataset %s: %w", run.InputDatasetID, err)
	}

	iter, err := o.rows.Rows(ctx, ds.FilePath)
	if err != nil {
		return nil, "", "", fmt.Errorf("open dataset %s: %w", run.InputDatasetID, err)
	}
	defer iter.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []rowResult
		sem     = make(chan struct{}, o.batchWorkers)
	)

	rowIdx := 0
	for {
		row, rerr := iter.Next()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			wg.Wait()
			return nil, "", "", fmt.Errorf("read dataset row %d: %w", rowIdx, rerr)
		}

		idx := rowIdx
		rowIdx++

		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			entry := o.executeRow(ctx, run, version, idx, row)

			mu.Lock()
			results = append(results, entry)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Стабильный порядок строк в агрегате.
	ordered := make([]rowResult, len(results))
	for _, entry := range results {
		ordered[entry.Row] = entry
	}

	failed := 0
	rows := make([]any, 0, len(ordered))
	for _, entry := range ordered {
		if entry.Status != string(domain.RunStatusCompleted) {
			failed++
		}
		rows = append(rows, entry)
	}
	outputs := map[string]any{"rows": rows}

	outputFileID := o.writeOutputFile(pctx, run, ordered)

	failReason := ""
	if ctx.Err() != nil {
		failReason = "cancelled"
	} else if failed > 0 {
		failReason = fmt.Sprintf("%d of %d rows failed", failed, len(ordered))
	}

	return outputs, outputFileID, failReason, nil
}

// executeRow выполняет одну строку batch run'а.
func (o *Orchestrator) executeRow(ctx context.Context, run *domain.Run, version *domain.WorkflowVersion, idx int, row map[string]any) rowResult {
	res, err := o.exec.Execute(ctx, executor.Params{
		Run:        run,
		Definition: version.Definition,
		Inputs:     row,
	})
	if err != nil {
		return rowResult{Row: idx, Status: string(domain.RunStatusFailed), Error: err.Error()}
	}

	entry := rowResult{Row: idx, Status: string(domain.RunStatusCompleted), Outputs: res.Outputs}
	switch {
	case res.Cancelled:
		entry.Status = string(domain.RunStatusFailed)
		entry.Error = "cancelled"
	case res.Failed():
		entry.Status = string(domain.RunStatusFailed)
		entry.Error = fmt.Sprintf("nodes failed: %v", res.FailedNodes)
	}
	return entry
}

// writeOutputFile сохраняет построчные результаты batch run'а как JSONL
// под DataDir и регистрирует OutputFile. Best-effort: сбой записи
// логируется, run финализируется без файла.
func (o *Orchestrator) writeOutputFile(ctx context.Context, run *domain.Run, rows []rowResult) string {
	if len(rows) == 0 {
		return ""
	}

	if err := os.MkdirAll(o.dataDir, 0o755); err != nil {
		o.logger.Warn("failed to create data dir", "run_id", run.ID, "error", err)
		return ""
	}

	fileName := fmt.Sprintf("%s_outputs.jsonl", run.ID)
	filePath := filepath.Join(o.dataDir, fileName)

	f, err := os.Create(filePath)
	if err != nil {
		o.logger.Warn("failed to create output file", "run_id", run.ID, "error", err)
		return ""
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, entry := range rows {
		if err := enc.Encode(entry); err != nil {
			o.logger.Warn("failed to write output file", "run_id", run.ID, "error", err)
			return ""
		}
	}

	of, err := o.datasets.CreateOutputFile(ctx, fileName, filePath)
	if err != nil {
		o.logger.Warn("failed to register output file", "run_id", run.ID, "error", err)
		return ""
	}

	o.logger.Info("output file written",
		"run_id", run.ID,
		"output_file_id", of.ID,
		"rows", len(rows),
	)
	return of.ID
}

// finalizeCompleted переводит run в COMPLETED.
func (o *Orchestrator) finalizeCompleted(ctx context.Context, run *domain.Run, outputs map[string]any, outputFileID string) (*domain.Run, error) {
	if err := o.runs.MarkCompleted(ctx, run.ID, outputs, outputFileID); err != nil {
		return nil, fmt.Errorf("finalize run %s: %w", run.ID, err)
	}

	telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusCompleted)).Inc()
	o.publishRunFinished(ctx, run.ID, run.WorkflowID, string(run.RunType), string(domain.RunStatusCompleted), "")
	o.logger.Info("run completed", "run_id", run.ID)

	return o.runs.GetByID(ctx, run.ID)
}

// finalizeFailed переводит run в FAILED с причиной.
func (o *Orchestrator) finalizeFailed(ctx context.Context, run *domain.Run, reason string, outputs map[string]any, outputFileID string) (*domain.Run, error) {
	if err := o.runs.MarkFailed(ctx, run.ID, reason, outputs, outputFileID); err != nil {
		return nil, fmt.Errorf("finalize run %s: %w", run.ID, err)
	}

	telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusFailed)).Inc()
	o.publishRunFinished(ctx, run.ID, run.WorkflowID, string(run.RunType), string(domain.RunStatusFailed), reason)
	o.logger.Warn("run failed", "run_id", run.ID, "reason", reason)

	return o.runs.GetByID(ctx, run.ID)
}

// LaunchChild создаёт и синхронно выполняет дочерний run для
// sub-workflow узла. Реализует executor.RunLauncher.
func (o *Orchestrator) LaunchChild(ctx context.Context, req executor.ChildRunRequest) (*executor.ChildRunResult, error) {
	versionRef := "latest"
	if req.Version != nil {
		versionRef = strconv.Itoa(*req.Version)
	}

	run, err := o.CreateRun(ctx, CreateRunParams{
		WorkflowID:    req.WorkflowID,
		VersionRef:    versionRef,
		RunType:       domain.RunTypeSingle,
		InitialInputs: req.Inputs,
		ParentRunID:   req.ParentRunID,
	})
	if err != nil {
		return nil, err
	}

	version, err := o.workflows.GetVersionByID(ctx, run.WorkflowVersionID)
	if err != nil {
		return nil, fmt.Errorf("load child version: %w", err)
	}

	// Дочерний run падает штатно (его узлы упали) — это не ошибка
	// запуска, статус увидит вызывающий executor.
	terminal, err := o.startRun(ctx, run.ID, req.ParentTaskID)
	if err != nil {
		return nil, err
	}

	return &executor.ChildRunResult{
		Run:        terminal,
		Definition: version.Definition,
	}, nil
}
