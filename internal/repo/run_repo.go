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

// RunRepo — репозиторий для работы с runs.
//
// Все переходы статуса выполняются compare-and-set по текущему статусу:
// UPDATE с условием WHERE status = <ожидаемый>. Конкурентный писатель,
// пытающийся применить переход повторно, получает StateTransitionError —
// терминальное состояние и timestamps никогда не перезаписываются.
// Статус, timestamp и outputs пишутся одним UPDATE, атомарно.
type RunRepo struct {
	pool  *pgxpool.Pool
	ident *Allocator
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool, ident *Allocator) *RunRepo {
	return &RunRepo{pool: pool, ident: ident}
}

// Create создаёт новый run в статусе PENDING и присваивает публичный id.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	id, intid, err := r.ident.Allocate(ctx, domain.KindRun)
	if err != nil {
		return err
	}
	run.ID = id
	run.Status = domain.RunStatusPending

	inputsJSON, err := marshalMap(run.InitialInputs)
	if err != nil {
		return fmt.Errorf("marshal initial inputs: %w", err)
	}

	query := `
		INSERT INTO runs
			(_intid, id, workflow_id, workflow_version_id, parent_run_id, status,
			 run_type, initial_inputs, input_dataset_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		intid,
		run.ID,
		run.WorkflowID,
		run.WorkflowVersionID,
		nullString(run.ParentRunID),
		run.Status,
		run.RunType,
		inputsJSON,
		nullString(run.InputDatasetID),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по публичному идентификатору.
func (r *RunRepo) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	query := selectRun + ` WHERE id = $1`
	return r.scanRun(r.pool.QueryRow(ctx, query, id))
}

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	WorkflowID string
	Status     domain.RunStatus
	Limit      int
	Offset     int
}

// List возвращает список runs с фильтрацией.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := selectRun + `
		WHERE ($1::text IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY _intid DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.WorkflowID),
		nullString(string(filter.Status)),
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	return r.collectRuns(rows)
}

// ListByParent возвращает дочерние runs для родительского run.
// Иерархия всегда обходится индексированным запросом по parent_run_id,
// без материализации обратных ссылок в памяти.
func (r *RunRepo) ListByParent(ctx context.Context, parentRunID string) ([]domain.Run, error) {
	query := selectRun + ` WHERE parent_run_id = $1 ORDER BY _intid ASC`
	rows, err := r.pool.Query(ctx, query, parentRunID)
	if err != nil {
		return nil, fmt.Errorf("list child runs: %w", err)
	}
	defer rows.Close()

	return r.collectRuns(rows)
}

// MarkRunning переводит run PENDING → RUNNING, устанавливая start_time
// ровно один раз.
func (r *RunRepo) MarkRunning(ctx context.Context, id string) (*domain.Run, error) {
	now := time.Now().UTC()
	result, err := r.pool.Exec(ctx, `
		UPDATE runs
		SET status = $2, start_time = $3
		WHERE id = $1 AND status = $4
	`, id, domain.RunStatusRunning, now, domain.RunStatusPending)
	if err != nil {
		return nil, fmt.Errorf("mark run running: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, r.transitionError(ctx, id, string(domain.RunStatusRunning))
	}
	return r.GetByID(ctx, id)
}

// MarkCompleted переводит run RUNNING → COMPLETED с выходами.
func (r *RunRepo) MarkCompleted(ctx context.Context, id string, outputs map[string]any, outputFileID string) error {
	outputsJSON, err := marshalMap(outputs)
	if err != nil {
		return fmt.Errorf("marshal run outputs: %w", err)
	}

	now := time.Now().UTC()
	result, err := r.pool.Exec(ctx, `
		UPDATE runs
		SET status = $2, end_time = $3, outputs = $4, output_file_id = $5
		WHERE id = $1 AND status = $6
	`, id, domain.RunStatusCompleted, now, outputsJSON, nullString(outputFileID), domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.transitionError(ctx, id, string(domain.RunStatusCompleted))
	}
	return nil
}

// MarkFailed переводит run в FAILED из PENDING или RUNNING.
// Частичные outputs (например, успешные строки batch-запуска) сохраняются.
func (r *RunRepo) MarkFailed(ctx context.Context, id, reason string, outputs map[string]any, outputFileID string) error {
	outputsJSON, err := marshalMap(outputs)
	if err != nil {
		return fmt.Errorf("marshal run outputs: %w", err)
	}

	now := time.Now().UTC()
	result, err := r.pool.Exec(ctx, `
		UPDATE runs
		SET status = $2, end_time = $3, error = $4, outputs = $5, output_file_id = $6
		WHERE id = $1 AND status IN ($7, $8)
	`, id, domain.RunStatusFailed, now, reason, outputsJSON, nullString(outputFileID),
		domain.RunStatusPending, domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("mark run failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.transitionError(ctx, id, string(domain.RunStatusFailed))
	}
	return nil
}

// --- Helpers ---

const selectRun = `
	SELECT id, workflow_id, workflow_version_id, parent_run_id, status, run_type,
	       initial_inputs, input_dataset_id, start_time, end_time, outputs,
	       output_file_id, error
	FROM runs
`

// transitionError строит StateTransitionError с текущим статусом записи.
func (r *RunRepo) transitionError(ctx context.Context, id, to string) error {
	var current string
	err := r.pool.QueryRow(ctx, `SELECT status FROM runs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read run status: %w", err)
	}
	return &domain.StateTransitionError{Entity: "run", ID: id, From: current, To: to}
}

// scanRun сканирует одну строку в Run.
func (r *RunRepo) scanRun(row pgx.Row) (*domain.Run, error) {
	run, err := scanRunColumns(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// collectRuns собирает все строки результата в слайс.
func (r *RunRepo) collectRuns(rows pgx.Rows) ([]domain.Run, error) {
	var runs []domain.Run
	for rows.Next() {
		run, err := scanRunColumns(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRunColumns сканирует колонки selectRun в Run.
func scanRunColumns(scan func(...any) error) (*domain.Run, error) {
	var run domain.Run
	var parentRunID, inputDatasetID, outputFileID, runError *string
	var inputsJSON, outputsJSON []byte

	err := scan(
		&run.ID,
		&run.WorkflowID,
		&run.WorkflowVersionID,
		&parentRunID,
		&run.Status,
		&run.RunType,
		&inputsJSON,
		&inputDatasetID,
		&run.StartTime,
		&run.EndTime,
		&outputsJSON,
		&outputFileID,
		&runError,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.ParentRunID = derefString(parentRunID)
	run.InputDatasetID = derefString(inputDatasetID)
	run.OutputFileID = derefString(outputFileID)
	run.Error = derefString(runError)

	if err := unmarshalMap(inputsJSON, &run.InitialInputs); err != nil {
		return nil, fmt.Errorf("unmarshal initial inputs: %w", err)
	}
	if err := unmarshalMap(outputsJSON, &run.Outputs); err != nil {
		return nil, fmt.Errorf("unmarshal outputs: %w", err)
	}

	return &run, nil
}

// marshalMap сериализует map в JSON, nil остаётся NULL.
func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// unmarshalMap десериализует JSON в map, NULL остаётся nil.
func unmarshalMap(data []byte, dst *map[string]any) error {
	if data == nil {
		return nil
	}
	return json.Unmarshal(data, dst)
}
