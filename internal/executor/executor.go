package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/engine"
	"github.com/shaiso/Maestro/internal/events"
	"github.com/shaiso/Maestro/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxWorkers = 8
)

// cancelReason — причина, записываемая в tasks при отмене run'а.
const cancelReason = "cancelled"

// TreeExecutor выполняет definition в рамках одного run.
//
// Диспетчеризует готовые узлы в пул воркеров, ведёт tasks через их
// жизненный цикл и разрешает входы узлов из выходов зависимостей.
// Один экземпляр обслуживает произвольное число параллельных Execute.
type TreeExecutor struct {
	tasks    TaskStore
	nodes    NodeExecutor
	launcher RunLauncher

	publisher *events.Publisher

	maxWorkers int
	logger     *slog.Logger
}

// Config — конфигурация TreeExecutor.
type Config struct {
	// Tasks — хранилище tasks. Обязательно.
	Tasks TaskStore

	// Nodes — исполнитель обычных узлов. Обязательно, если в
	// определениях есть ordinary узлы.
	Nodes NodeExecutor

	// Launcher — запуск дочерних runs для sub-workflow узлов.
	Launcher RunLauncher

	// Publisher — исходящий поток событий (может быть nil).
	Publisher *events.Publisher

	// MaxWorkers — размер пула воркеров на один Execute (default: 8).
	MaxWorkers int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый TreeExecutor.
func New(cfg Config) *TreeExecutor {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TreeExecutor{
		tasks:      cfg.Tasks,
		nodes:      cfg.Nodes,
		launcher:   cfg.Launcher,
		publisher:  cfg.Publisher,
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

// Params — параметры одного выполнения дерева.
type Params struct {
	// Run — run, которому принадлежат создаваемые tasks.
	Run *domain.Run

	// Definition — сырое определение workflow.
	Definition json.RawMessage

	// Inputs — начальные входы: их получают корневые узлы.
	Inputs map[string]any

	// ParentTaskID — task sub-workflow узла родительского run'а,
	// породившего это выполнение. Пустой для верхнеуровневых runs.
	ParentTaskID string
}

// Result — итог выполнения дерева.
type Result struct {
	// Outputs — слитые выходы завершённых sink-узлов.
	Outputs map[string]any

	// FailedNodes — узлы, упавшие или пропущенные (отсортированы).
	FailedNodes []string

	// Cancelled — true, если выполнение было прервано отменой ctx.
	Cancelled bool
}

// Failed возвращает true, если хотя бы один узел не завершился успешно.
func (r *Result) Failed() bool {
	return len(r.FailedNodes) > 0
}

// nodeResult — результат обработки одного узла.
type nodeResult struct {
	nodeID  string
	task    *domain.Task
	outputs map[string]any

	failed     bool
	failReason string

	// skipped — узел снят с диспетчеризации до создания task (отмена).
	skipped bool

	// infra — инфраструктурная ошибка (БД); прерывает выполнение.
	infra error
}

// Execute выполняет дерево и возвращает его итог.
//
// Ошибка возвращается только при невалидном определении или
// инфраструктурном сбое; падения узлов отражаются в Result.FailedNodes.
// Отмена ctx переводит недиспетчеризованные узлы в FAILED tasks с
// причиной "cancelled"; запись в хранилище продолжается и после отмены.
func (e *TreeExecutor) Execute(ctx context.Context, p Params) (*Result, error) {
	def, err := engine.Parse(p.Definition)
	if err != nil {
		return nil, err
	}

	dag, err := engine.BuildDAG(def)
	if err != nil {
		return nil, err
	}

	logger := telemetry.WithRunID(e.logger, p.Run.ID)
	logger.Info("executing task tree",
		"nodes", dag.Size(),
		"max_workers", e.maxWorkers,
	)

	// Записи в хранилище должны переживать отмену ctx: терминальные
	// статусы tasks фиксируются всегда.
	pctx := context.WithoutCancel(ctx)

	state := newExecState(dag)
	results := make(chan nodeResult)
	sem := make(chan struct{}, e.maxWorkers)

	var infraErr error
	cancelled := false

	for {
		if infraErr == nil && !cancelled {
			for _, node := range state.Ready() {
				inputs := state.InputsFor(node, p.Inputs)
				state.MarkStarted(node.ID)
				go e.runNode(ctx, pctx, p, node, inputs, results, sem)
			}
		}

		if state.InFlight() == 0 {
			break
		}

		select {
		case <-ctx.Done():
			cancelled = true
			// In-flight узлы обязаны прислать результат — дожидаемся.
			e.handleResult(pctx, p, state, <-results, &infraErr)
		case res := <-results:
			if ctx.Err() != nil {
				cancelled = true
			}
			e.handleResult(pctx, p, state, res, &infraErr)
		}
	}

	if ctx.Err() != nil {
		cancelled = true
	}

	if cancelled {
		e.failRemaining(pctx, p, state)
	}

	if infraErr != nil {
		return nil, infraErr
	}

	result := &Result{
		Outputs:     state.RunOutputs(),
		FailedNodes: state.FailedNodes(),
		Cancelled:   cancelled,
	}

	logger.Info("task tree finished",
		"failed_nodes", len(result.FailedNodes),
		"cancelled", result.Cancelled,
	)

	return result, nil
}

// runNode обрабатывает один узел: ведёт task через жизненный цикл и
// выполняет payload либо дочерний run. Всегда отправляет результат.
func (e *TreeExecutor) runNode(ctx, pctx context.Context, p Params, node *engine.Node, inputs map[string]any, results chan<- nodeResult, sem chan struct{}) {
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		results <- nodeResult{nodeID: node.ID, skipped: true}
		return
	}
	defer func() { <-sem }()

	task := &domain.Task{
		RunID:        p.Run.ID,
		NodeID:       node.ID,
		ParentTaskID: p.ParentTaskID,
		Inputs:       inputs,
	}

	if err := e.tasks.Create(pctx, task); err != nil {
		results <- nodeResult{nodeID: node.ID, infra: fmt.Errorf("create task for node %s: %w", node.ID, err)}
		return
	}

	if err := e.tasks.MarkRunning(pctx, task.ID); err != nil {
		results <- nodeResult{nodeID: node.ID, infra: fmt.Errorf("mark task %s running: %w", task.ID, err)}
		return
	}
	startedAt := time.Now()

	var (
		outputs map[string]any
		execErr error
	)
	if node.Def.IsSubworkflow() {
		outputs, execErr = e.runSubworkflow(ctx, pctx, p, node, task, inputs)
	} else if e.nodes == nil {
		execErr = ErrNoNodeExecutor
	} else {
		outputs, execErr = e.nodes.Execute(ctx, node.Def, inputs)
	}

	if execErr != nil {
		var infra *infraError
		if errors.As(execErr, &infra) {
			results <- nodeResult{nodeID: node.ID, infra: infra.err}
			return
		}

		// Причина «cancelled» только при отмене ctx самого run'а:
		// deadline внутри узла (например, таймаут HTTP клиента) —
		// обычное падение узла.
		reason := execErr.Error()
		if ctx.Err() != nil &&
			(errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded)) {
			reason = cancelReason
		}

		if err := e.tasks.MarkFailed(pctx, task.ID, reason); err != nil {
			results <- nodeResult{nodeID: node.ID, infra: fmt.Errorf("mark task %s failed: %w", task.ID, err)}
			return
		}

		telemetry.ObserveTaskFinished(string(domain.TaskStatusFailed), time.Since(startedAt))
		e.publishTaskFinished(pctx, p, task, string(domain.TaskStatusFailed), reason)
		results <- nodeResult{nodeID: node.ID, task: task, failed: true, failReason: reason}
		return
	}

	if err := e.tasks.MarkCompleted(pctx, task.ID, outputs); err != nil {
		results <- nodeResult{nodeID: node.ID, infra: fmt.Errorf("mark task %s completed: %w", task.ID, err)}
		return
	}

	telemetry.ObserveTaskFinished(string(domain.TaskStatusCompleted), time.Since(startedAt))
	e.publishTaskFinished(pctx, p, task, string(domain.TaskStatusCompleted), "")
	results <- nodeResult{nodeID: node.ID, task: task, outputs: outputs}
}

// runSubworkflow запускает дочерний run и дожидается его завершения.
func (e *TreeExecutor) runSubworkflow(ctx, pctx context.Context, p Params, node *engine.Node, task *domain.Task, inputs map[string]any) (map[string]any, error) {
	if e.launcher == nil {
		return nil, ErrNoLauncher
	}

	res, err := e.launcher.LaunchChild(ctx, ChildRunRequest{
		WorkflowID:   node.Def.WorkflowID,
		Version:      node.Def.Version,
		Inputs:       inputs,
		ParentRunID:  p.Run.ID,
		ParentTaskID: task.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("launch subworkflow %s: %w", node.Def.WorkflowID, err)
	}

	if err := e.tasks.RecordSubworkflow(pctx, task.ID, res.Definition, res.Run.Outputs); err != nil {
		return nil, &infraError{err: fmt.Errorf("record subworkflow for task %s: %w", task.ID, err)}
	}

	if res.Run.Status != domain.RunStatusCompleted {
		return nil, fmt.Errorf("%w: run %s finished %s: %s",
			ErrSubworkflowFailed, res.Run.ID, res.Run.Status, res.Run.Error)
	}

	return res.Run.Outputs, nil
}

// handleResult применяет результат узла к состоянию.
func (e *TreeExecutor) handleResult(pctx context.Context, p Params, state *execState, res nodeResult, infraErr *error) {
	state.Finish()

	switch {
	case res.infra != nil:
		if *infraErr == nil {
			*infraErr = res.infra
		}
		e.logger.Error("node execution aborted",
			"run_id", p.Run.ID,
			"node_id", res.nodeID,
			"error", res.infra,
		)

	case res.skipped:
		// Task создаст финальная зачистка failRemaining.

	case res.failed:
		state.Fail(res.nodeID)
		state.SetTask(res.nodeID, res.task)
		e.logger.Warn("node failed",
			"run_id", p.Run.ID,
			"node_id", res.nodeID,
			"task_id", res.task.ID,
			"reason", res.failReason,
		)
		// Узел, упавший из-за отмены, не «роняет» потомков как upstream
		// failure: недиспетчеризованные узлы заберёт failRemaining с
		// причиной отмены.
		if res.failReason != cancelReason {
			e.shortCircuit(pctx, p, state, res.nodeID)
		}

	default:
		state.Complete(res.nodeID, res.outputs)
		state.SetTask(res.nodeID, res.task)
	}
}

// shortCircuit пропускает всех потомков упавшего узла: их tasks
// создаются сразу в FAILED, без start_time.
func (e *TreeExecutor) shortCircuit(pctx context.Context, p Params, state *execState, failedNodeID string) {
	reason := fmt.Sprintf("upstream node %s failed", failedNodeID)

	for _, desc := range state.dag.Descendants(failedNodeID) {
		if state.Started(desc.ID) {
			continue
		}
		state.Skip(desc.ID)

		task := &domain.Task{
			RunID:        p.Run.ID,
			NodeID:       desc.ID,
			ParentTaskID: p.ParentTaskID,
		}
		if err := e.tasks.CreateFailed(pctx, task, reason); err != nil {
			e.logger.Error("failed to create skipped task",
				"run_id", p.Run.ID,
				"node_id", desc.ID,
				"error", err,
			)
			continue
		}
		state.SetTask(desc.ID, task)

		telemetry.ObserveTaskFinished(string(domain.TaskStatusFailed), 0)
		e.publishTaskFinished(pctx, p, task, string(domain.TaskStatusFailed), reason)
	}
}

// failRemaining создаёт FAILED tasks для узлов, до которых
// диспетчеризация не дошла к моменту отмены.
func (e *TreeExecutor) failRemaining(pctx context.Context, p Params, state *execState) {
	for _, node := range state.dag.Order {
		if state.Terminal(node.ID) || state.HasTask(node.ID) {
			continue
		}
		state.Skip(node.ID)

		task := &domain.Task{
			RunID:        p.Run.ID,
			NodeID:       node.ID,
			ParentTaskID: p.ParentTaskID,
		}
		if err := e.tasks.CreateFailed(pctx, task, cancelReason); err != nil {
			e.logger.Error("failed to create cancelled task",
				"run_id", p.Run.ID,
				"node_id", node.ID,
				"error", err,
			)
			continue
		}
		state.SetTask(node.ID, task)

		telemetry.ObserveTaskFinished(string(domain.TaskStatusFailed), 0)
		e.publishTaskFinished(pctx, p, task, string(domain.TaskStatusFailed), cancelReason)
	}
}

// publishTaskFinished отправляет терминальное событие task.
func (e *TreeExecutor) publishTaskFinished(ctx context.Context, p Params, task *domain.Task, status, reason string) {
	err := e.publisher.PublishTaskFinished(ctx, events.TaskEventPayload{
		TaskID: task.ID,
		RunID:  p.Run.ID,
		NodeID: task.NodeID,
		Status: status,
		Error:  reason,
	})
	if err != nil {
		e.logger.Warn("failed to publish task event",
			"task_id", task.ID,
			"error", err,
		)
	}
}

// infraError помечает ошибку как инфраструктурную: выполнение дерева
// прерывается, run помечается FAILED вызывающей стороной.
type infraError struct {
	err error
}

func (e *infraError) Error() string {
	return e.err.Error()
}

func (e *infraError) Unwrap() error {
	return e.err
}
