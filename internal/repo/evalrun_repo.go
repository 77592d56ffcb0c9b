package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Maestro/internal/domain"
)

// EvalRunRepo — репозиторий для eval_runs.
// Переходы статуса — compare-and-set, как у runs и tasks.
type EvalRunRepo struct {
	pool  *pgxpool.Pool
	ident *Allocator
}

// NewEvalRunRepo создаёт новый EvalRunRepo.
func NewEvalRunRepo(pool *pgxpool.Pool, ident *Allocator) *EvalRunRepo {
	return &EvalRunRepo{pool: pool, ident: ident}
}

// Create создаёт eval run в статусе PENDING.
func (r *EvalRunRepo) Create(ctx context.Context, er *domain.EvalRun) error {
	id, intid, err := r.ident.Allocate(ctx, domain.KindEvalRun)
	if err != nil {
		return err
	}
	er.ID = id
	er.Status = domain.EvalRunStatusPending

	_, err = r.pool.Exec(ctx, `
		INSERT INTO eval_runs
			(_intid, id, eval_name, workflow_id, status, output_variable, num_samples)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, intid, er.ID, er.EvalName, er.WorkflowID, er.Status, er.OutputVariable, er.NumSamples)
	if err != nil {
		return fmt.Errorf("insert eval run: %w", err)
	}
	return nil
}

// GetByID возвращает eval run по публичному идентификатору.
func (r *EvalRunRepo) GetByID(ctx context.Context, id string) (*domain.EvalRun, error) {
	er, err := scanEvalRunColumns(r.pool.QueryRow(ctx, selectEvalRun+` WHERE id = $1`, id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return er, err
}

// List возвращает все eval runs.
func (r *EvalRunRepo) List(ctx context.Context) ([]domain.EvalRun, error) {
	rows, err := r.pool.Query(ctx, selectEvalRun+` ORDER BY _intid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list eval runs: %w", err)
	}
	defer rows.Close()

	var evalRuns []domain.EvalRun
	for rows.Next() {
		er, err := scanEvalRunColumns(rows.Scan)
		if err != nil {
			return nil, err
		}
		evalRuns = append(evalRuns, *er)
	}
	return evalRuns, rows.Err()
}

// MarkRunning переводит eval run PENDING → RUNNING.
func (r *EvalRunRepo) MarkRunning(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := r.pool.Exec(ctx, `
		UPDATE eval_runs
		SET status = $2, start_time = $3
		WHERE id = $1 AND status = $4
	`, id, domain.EvalRunStatusRunning, now, domain.EvalRunStatusPending)
	if err != nil {
		return fmt.Errorf("mark eval run running: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.transitionError(ctx, id, string(domain.EvalRunStatusRunning))
	}
	return nil
}

// MarkCompleted переводит eval run RUNNING → COMPLETED с результатами.
func (r *EvalRunRepo) MarkCompleted(ctx context.Context, id string, results map[string]any) error {
	return r.finish(ctx, id, domain.EvalRunStatusCompleted, results)
}

// MarkFailed переводит eval run в FAILED из PENDING или RUNNING.
func (r *EvalRunRepo) MarkFailed(ctx context.Context, id string, results map[string]any) error {
	return r.finish(ctx, id, domain.EvalRunStatusFailed, results)
}

// finish применяет терминальный переход.
func (r *EvalRunRepo) finish(ctx context.Context, id string, status domain.EvalRunStatus, results map[string]any) error {
	resultsJSON, err := marshalMap(results)
	if err != nil {
		return fmt.Errorf("marshal eval results: %w", err)
	}

	now := time.Now().UTC()
	result, err := r.pool.Exec(ctx, `
		UPDATE eval_runs
		SET status = $2, end_time = $3, results = $4
		WHERE id = $1 AND status IN ($5, $6)
	`, id, status, now, resultsJSON,
		domain.EvalRunStatusPending, domain.EvalRunStatusRunning)
	if err != nil {
		return fmt.Errorf("finish eval run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.transitionError(ctx, id, string(status))
	}
	return nil
}

// transitionError строит StateTransitionError с текущим статусом записи.
func (r *EvalRunRepo) transitionError(ctx context.Context, id, to string) error {
	var current string
	err := r.pool.QueryRow(ctx, `SELECT status FROM eval_runs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read eval run status: %w", err)
	}
	return &domain.StateTransitionError{Entity: "eval_run", ID: id, From: current, To: to}
}

const selectEvalRun = `
	SELECT id, eval_name, workflow_id, status, output_variable, num_samples,
	       start_time, end_time, results
	FROM eval_runs
`

// scanEvalRunColumns сканирует колонки selectEvalRun в EvalRun.
func scanEvalRunColumns(scan func(...any) error) (*domain.EvalRun, error) {
	var er domain.EvalRun
	var resultsJSON []byte

	err := scan(
		&er.ID,
		&er.EvalName,
		&er.WorkflowID,
		&er.Status,
		&er.OutputVariable,
		&er.NumSamples,
		&er.StartTime,
		&er.EndTime,
		&resultsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan eval run: %w", err)
	}

	if err := unmarshalMap(resultsJSON, &er.Results); err != nil {
		return nil, fmt.Errorf("unmarshal eval results: %w", err)
	}

	return &er, nil
}
