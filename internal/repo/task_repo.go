package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Maestro/internal/domain"
)

// TaskRepo — репозиторий для работы с tasks.
//
// Переходы статуса — compare-and-set, как в RunRepo: двойная
// диспетчеризация одного узла отклоняется с StateTransitionError.
type TaskRepo struct {
	pool  *pgxpool.Pool
	ident *Allocator
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool, ident *Allocator) *TaskRepo {
	return &TaskRepo{pool: pool, ident: ident}
}

// Create создаёт task в статусе PENDING и присваивает публичный id.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	id, intid, err := r.ident.Allocate(ctx, domain.KindTask)
	if err != nil {
		return err
	}
	task.ID = id
	task.Status = domain.TaskStatusPending

	return r.insert(ctx, intid, task)
}

// CreateFailed создаёт task сразу в FAILED — short-circuit для узлов,
// недостижимых из-за падения выше по графу, и для отменённых до
// диспетчеризации. start_time не устанавливается; end_time фиксирует
// вход в терминальный статус.
func (r *TaskRepo) CreateFailed(ctx context.Context, task *domain.Task, reason string) error {
	id, intid, err := r.ident.Allocate(ctx, domain.KindTask)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	task.ID = id
	task.Status = domain.TaskStatusFailed
	task.EndTime = &now
	task.Error = reason

	return r.insert(ctx, intid, task)
}

// GetByID возвращает task по публичному идентификатору.
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query := selectTask + ` WHERE id = $1`
	task, err := scanTaskColumns(r.pool.QueryRow(ctx, query, id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, err
}

// ListByRun возвращает все tasks для run в порядке создания.
func (r *TaskRepo) ListByRun(ctx context.Context, runID string) ([]domain.Task, error) {
	query := selectTask + ` WHERE run_id = $1 ORDER BY _intid ASC`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListByParentTask возвращает дочерние tasks для sub-workflow task.
// Дети ищутся индексированным запросом по parent_task_id: иерархия
// никогда не держится обратными ссылками в памяти.
func (r *TaskRepo) ListByParentTask(ctx context.Context, parentTaskID string) ([]domain.Task, error) {
	query := selectTask + ` WHERE parent_task_id = $1 ORDER BY _intid ASC`
	rows, err := r.pool.Query(ctx, query, parentTaskID)
	if err != nil {
		return nil, fmt.Errorf("list child tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// MarkRunning переводит task PENDING → RUNNING, устанавливая start_time
// ровно один раз.
func (r *TaskRepo) MarkRunning(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $2, start_time = $3
		WHERE id = $1 AND status = $4
	`, id, domain.TaskStatusRunning, now, domain.TaskStatusPending)
	if err != nil {
		return fmt.Errorf("mark task running: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.transitionError(ctx, id, string(domain.TaskStatusRunning))
	}
	return nil
}

// MarkCompleted переводит task RUNNING → COMPLETED с результатами.
// Статус, end_time и outputs пишутся одним UPDATE.
func (r *TaskRepo) MarkCompleted(ctx context.Context, id string, outputs map[string]any) error {
	outputsJSON, err := marshalMap(outputs)
	if err != nil {
		return fmt.Errorf("marshal task outputs: %w", err)
	}

	now := time.Now().UTC()
	result, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $2, end_time = $3, outputs = $4
		WHERE id = $1 AND status = $5
	`, id, domain.TaskStatusCompleted, now, outputsJSON, domain.TaskStatusRunning)
	if err != nil {
		return fmt.Errorf("mark task completed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.transitionError(ctx, id, string(domain.TaskStatusCompleted))
	}
	return nil
}

// MarkFailed переводит task в FAILED из PENDING или RUNNING.
func (r *TaskRepo) MarkFailed(ctx context.Context, id, reason string) error {
	now := time.Now().UTC()
	result, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $2, end_time = $3, error = $4
		WHERE id = $1 AND status IN ($5, $6)
	`, id, domain.TaskStatusFailed, now, reason,
		domain.TaskStatusPending, domain.TaskStatusRunning)
	if err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.transitionError(ctx, id, string(domain.TaskStatusFailed))
	}
	return nil
}

// RecordSubworkflow записывает в sub-workflow task снимок определения
// дочернего workflow и выходы дочернего run'а.
func (r *TaskRepo) RecordSubworkflow(ctx context.Context, id string, definition json.RawMessage, output map[string]any) error {
	outputJSON, err := marshalMap(output)
	if err != nil {
		return fmt.Errorf("marshal subworkflow output: %w", err)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE tasks SET subworkflow = $2, subworkflow_output = $3 WHERE id = $1
	`, id, []byte(definition), outputJSON)
	if err != nil {
		return fmt.Errorf("record subworkflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

const selectTask = `
	SELECT id, run_id, node_id, parent_task_id, status, inputs, outputs,
	       start_time, end_time, subworkflow, subworkflow_output, error
	FROM tasks
`

// insert вставляет task со всеми полями.
func (r *TaskRepo) insert(ctx context.Context, intid int64, task *domain.Task) error {
	inputsJSON, err := marshalMap(task.Inputs)
	if err != nil {
		return fmt.Errorf("marshal task inputs: %w", err)
	}
	outputsJSON, err := marshalMap(task.Outputs)
	if err != nil {
		return fmt.Errorf("marshal task outputs: %w", err)
	}

	var subworkflow []byte
	if task.Subworkflow != nil {
		subworkflow = []byte(task.Subworkflow)
	}

	query := `
		INSERT INTO tasks
			(_intid, id, run_id, node_id, parent_task_id, status, inputs, outputs,
			 start_time, end_time, subworkflow, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.pool.Exec(ctx, query,
		intid,
		task.ID,
		task.RunID,
		task.NodeID,
		nullString(task.ParentTaskID),
		task.Status,
		inputsJSON,
		outputsJSON,
		task.StartTime,
		task.EndTime,
		subworkflow,
		nullString(task.Error),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// transitionError строит StateTransitionError с текущим статусом записи.
func (r *TaskRepo) transitionError(ctx context.Context, id, to string) error {
	var current string
	err := r.pool.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read task status: %w", err)
	}
	return &domain.StateTransitionError{Entity: "task", ID: id, From: current, To: to}
}

// collectTasks собирает все строки результата в слайс.
func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTaskColumns(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// scanTaskColumns сканирует колонки selectTask в Task.
func scanTaskColumns(scan func(...any) error) (*domain.Task, error) {
	var task domain.Task
	var parentTaskID, taskError *string
	var inputsJSON, outputsJSON, subworkflow, subworkflowOutput []byte

	err := scan(
		&task.ID,
		&task.RunID,
		&task.NodeID,
		&parentTaskID,
		&task.Status,
		&inputsJSON,
		&outputsJSON,
		&task.StartTime,
		&task.EndTime,
		&subworkflow,
		&subworkflowOutput,
		&taskError,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.ParentTaskID = derefString(parentTaskID)
	task.Error = derefString(taskError)
	task.Subworkflow = json.RawMessage(subworkflow)

	if err := unmarshalMap(inputsJSON, &task.Inputs); err != nil {
		return nil, fmt.Errorf("unmarshal task inputs: %w", err)
	}
	if err := unmarshalMap(outputsJSON, &task.Outputs); err != nil {
		return nil, fmt.Errorf("unmarshal task outputs: %w", err)
	}
	if err := unmarshalMap(subworkflowOutput, &task.SubworkflowOutput); err != nil {
		return nil, fmt.Errorf("unmarshal subworkflow output: %w", err)
	}

	return &task, nil
}
