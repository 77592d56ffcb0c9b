package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/engine"
)

// WorkflowRepo — репозиторий для работы с workflows и workflow_versions.
type WorkflowRepo struct {
	pool  *pgxpool.Pool
	ident *Allocator
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool, ident *Allocator) *WorkflowRepo {
	return &WorkflowRepo{pool: pool, ident: ident}
}

// --- Workflow CRUD ---

// Create создаёт новый workflow.
// Возвращает ErrAlreadyExists, если имя занято.
func (r *WorkflowRepo) Create(ctx context.Context, name, description string, definition json.RawMessage) (*domain.Workflow, error) {
	id, intid, err := r.ident.Allocate(ctx, domain.KindWorkflow)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	wf := &domain.Workflow{
		ID:          id,
		Name:        name,
		Description: description,
		Definition:  definition,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := `
		INSERT INTO workflows (_intid, id, name, description, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		intid,
		wf.ID,
		wf.Name,
		nullString(wf.Description),
		[]byte(wf.Definition),
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("workflow name %q: %w", name, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert workflow: %w", err)
	}
	return wf, nil
}

// GetByID возвращает workflow по публичному идентификатору.
func (r *WorkflowRepo) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	query := `
		SELECT id, name, description, definition, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`
	return r.scanWorkflow(r.pool.QueryRow(ctx, query, id))
}

// GetByName возвращает workflow по имени.
func (r *WorkflowRepo) GetByName(ctx context.Context, name string) (*domain.Workflow, error) {
	query := `
		SELECT id, name, description, definition, created_at, updated_at
		FROM workflows
		WHERE name = $1
	`
	return r.scanWorkflow(r.pool.QueryRow(ctx, query, name))
}

// List возвращает список всех workflows.
func (r *WorkflowRepo) List(ctx context.Context) ([]domain.Workflow, error) {
	query := `
		SELECT id, name, description, definition, created_at, updated_at
		FROM workflows
		ORDER BY _intid DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.Workflow
	for rows.Next() {
		var wf domain.Workflow
		var description *string
		var definition []byte
		if err := rows.Scan(
			&wf.ID,
			&wf.Name,
			&description,
			&definition,
			&wf.CreatedAt,
			&wf.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		wf.Description = derefString(description)
		wf.Definition = definition
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// Update обновляет имя, описание и черновик definition.
// Версии не затрагиваются: снимки неизменяемы.
func (r *WorkflowRepo) Update(ctx context.Context, wf *domain.Workflow) error {
	wf.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE workflows
		SET name = $2, description = $3, definition = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		wf.ID,
		wf.Name,
		nullString(wf.Description),
		[]byte(wf.Definition),
		wf.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("workflow name %q: %w", wf.Name, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет workflow.
// Удаление — административная операция; ядро оркестрации runs не удаляет.
func (r *WorkflowRepo) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- WorkflowVersion ---

// CreateVersion создаёт новую неизменяемую версию workflow.
//
// Вычисляет content hash определения; если хэш совпадает с хэшем последней
// версии этого workflow, возвращает существующую версию без изменений
// (идемпотентный no-op). Иначе выделяет следующий номер версии и
// сохраняет снимок.
func (r *WorkflowRepo) CreateVersion(ctx context.Context, workflowID string, definition json.RawMessage) (*domain.WorkflowVersion, error) {
	wf, err := r.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	hash, err := engine.HashDefinition(definition)
	if err != nil {
		return nil, err
	}

	latest, err := r.GetLatestVersion(ctx, workflowID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if latest != nil && latest.DefinitionHash == hash {
		return latest, nil
	}

	nextVersion := 1
	if latest != nil {
		nextVersion = latest.Version + 1
	}

	id, intid, err := r.ident.Allocate(ctx, domain.KindWorkflowVersion)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	version := &domain.WorkflowVersion{
		ID:             id,
		WorkflowID:     workflowID,
		Version:        nextVersion,
		Name:           wf.Name,
		Description:    wf.Description,
		Definition:     definition,
		DefinitionHash: hash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	query := `
		INSERT INTO workflow_versions
			(_intid, id, workflow_id, version, name, description, definition, definition_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		intid,
		version.ID,
		version.WorkflowID,
		version.Version,
		version.Name,
		nullString(version.Description),
		[]byte(version.Definition),
		version.DefinitionHash,
		version.CreatedAt,
		version.UpdatedAt,
	)
	if isUniqueViolation(err) {
		// Конкурентный CreateVersion успел занять номер — вызывающий повторяет попытку.
		return nil, fmt.Errorf("workflow %s version %d: %w", workflowID, nextVersion, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert workflow version: %w", err)
	}

	return version, nil
}

// GetVersion возвращает версию workflow по ссылке.
//
// versionRef — номер версии ("3") либо "latest" / "" для последней.
func (r *WorkflowRepo) GetVersion(ctx context.Context, workflowID, versionRef string) (*domain.WorkflowVersion, error) {
	if versionRef == "" || versionRef == "latest" {
		return r.GetLatestVersion(ctx, workflowID)
	}

	number, err := strconv.Atoi(versionRef)
	if err != nil {
		return nil, fmt.Errorf("bad version reference %q: %w", versionRef, ErrNotFound)
	}
	return r.GetVersionByNumber(ctx, workflowID, number)
}

// GetVersionByNumber возвращает конкретную версию workflow.
func (r *WorkflowRepo) GetVersionByNumber(ctx context.Context, workflowID string, version int) (*domain.WorkflowVersion, error) {
	query := `
		SELECT id, workflow_id, version, name, description, definition, definition_hash, created_at, updated_at
		FROM workflow_versions
		WHERE workflow_id = $1 AND version = $2
	`
	return r.scanVersion(r.pool.QueryRow(ctx, query, workflowID, version))
}

// GetVersionByID возвращает версию по публичному идентификатору.
func (r *WorkflowRepo) GetVersionByID(ctx context.Context, id string) (*domain.WorkflowVersion, error) {
	query := `
		SELECT id, workflow_id, version, name, description, definition, definition_hash, created_at, updated_at
		FROM workflow_versions
		WHERE id = $1
	`
	return r.scanVersion(r.pool.QueryRow(ctx, query, id))
}

// GetLatestVersion возвращает последнюю версию workflow.
func (r *WorkflowRepo) GetLatestVersion(ctx context.Context, workflowID string) (*domain.WorkflowVersion, error) {
	query := `
		SELECT id, workflow_id, version, name, description, definition, definition_hash, created_at, updated_at
		FROM workflow_versions
		WHERE workflow_id = $1
		ORDER BY version DESC
		LIMIT 1
	`
	return r.scanVersion(r.pool.QueryRow(ctx, query, workflowID))
}

// ListVersions возвращает все версии workflow.
func (r *WorkflowRepo) ListVersions(ctx context.Context, workflowID string) ([]domain.WorkflowVersion, error) {
	query := `
		SELECT id, workflow_id, version, name, description, definition, definition_hash, created_at, updated_at
		FROM workflow_versions
		WHERE workflow_id = $1
		ORDER BY version DESC
	`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.WorkflowVersion
	for rows.Next() {
		var v domain.WorkflowVersion
		var description *string
		var definition []byte
		if err := rows.Scan(
			&v.ID,
			&v.WorkflowID,
			&v.Version,
			&v.Name,
			&description,
			&definition,
			&v.DefinitionHash,
			&v.CreatedAt,
			&v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan workflow version: %w", err)
		}
		v.Description = derefString(description)
		v.Definition = definition
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Helpers ---

// scanWorkflow сканирует одну строку в Workflow.
func (r *WorkflowRepo) scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var description *string
	var definition []byte

	err := row.Scan(
		&wf.ID,
		&wf.Name,
		&description,
		&definition,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	wf.Description = derefString(description)
	wf.Definition = definition
	return &wf, nil
}

// scanVersion сканирует одну строку в WorkflowVersion.
func (r *WorkflowRepo) scanVersion(row pgx.Row) (*domain.WorkflowVersion, error) {
	var v domain.WorkflowVersion
	var description *string
	var definition []byte

	err := row.Scan(
		&v.ID,
		&v.WorkflowID,
		&v.Version,
		&v.Name,
		&description,
		&definition,
		&v.DefinitionHash,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow version: %w", err)
	}

	v.Description = derefString(description)
	v.Definition = definition
	return &v, nil
}
