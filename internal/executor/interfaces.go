package executor

import (
	"context"
	"encoding/json"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/engine"
)

// TaskStore — подмножество операций репозитория tasks, нужное executor'у.
//
// Реализуется repo.TaskRepo; тесты подставляют in-memory реализацию.
type TaskStore interface {
	// Create создаёт task в статусе PENDING и присваивает публичный id.
	Create(ctx context.Context, task *domain.Task) error

	// CreateFailed создаёт task сразу в FAILED (short-circuit, отмена).
	CreateFailed(ctx context.Context, task *domain.Task, reason string) error

	// MarkRunning переводит task PENDING → RUNNING.
	MarkRunning(ctx context.Context, id string) error

	// MarkCompleted переводит task RUNNING → COMPLETED с выходами.
	MarkCompleted(ctx context.Context, id string, outputs map[string]any) error

	// MarkFailed переводит task в FAILED с причиной.
	MarkFailed(ctx context.Context, id, reason string) error

	// RecordSubworkflow сохраняет снимок определения дочернего workflow
	// и выходы дочернего run'а в sub-workflow task.
	RecordSubworkflow(ctx context.Context, id string, definition json.RawMessage, output map[string]any) error
}

// NodeExecutor выполняет payload обычного узла.
//
// Инфраструктурные и логические ошибки возвращаются через error;
// executor переводит task в FAILED с текстом ошибки. Реализация обязана
// уважать отмену ctx.
type NodeExecutor interface {
	Execute(ctx context.Context, node *engine.NodeDef, inputs map[string]any) (map[string]any, error)
}

// ChildRunRequest — запрос на запуск дочернего run для sub-workflow узла.
type ChildRunRequest struct {
	// WorkflowID — workflow, который нужно запустить.
	WorkflowID string

	// Version — запиненная версия. Nil означает последнюю на момент запуска.
	Version *int

	// Inputs — начальные входы дочернего run'а (разрешённые входы узла).
	Inputs map[string]any

	// ParentRunID — run, внутри которого выполняется sub-workflow узел.
	ParentRunID string

	// ParentTaskID — task sub-workflow узла; tasks дочернего выполнения
	// получают его как parent_task_id.
	ParentTaskID string
}

// ChildRunResult — результат синхронного выполнения дочернего run'а.
type ChildRunResult struct {
	// Run — дочерний run в терминальном статусе.
	Run *domain.Run

	// Definition — снимок определения выполненной версии workflow.
	Definition json.RawMessage
}

// RunLauncher запускает дочерний run и дожидается его завершения.
//
// Реализуется orchestrator'ом; там же живёт защита от превышения
// глубины вложенности.
type RunLauncher interface {
	LaunchChild(ctx context.Context, req ChildRunRequest) (*ChildRunResult, error)
}
