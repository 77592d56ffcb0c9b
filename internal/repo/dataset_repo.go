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

// DatasetRepo — репозиторий для datasets и output_files.
// Тонкий учётный слой: содержимое файлов здесь не читается.
type DatasetRepo struct {
	pool  *pgxpool.Pool
	ident *Allocator
}

// NewDatasetRepo создаёт новый DatasetRepo.
func NewDatasetRepo(pool *pgxpool.Pool, ident *Allocator) *DatasetRepo {
	return &DatasetRepo{pool: pool, ident: ident}
}

// --- Dataset ---

// Create регистрирует dataset.
// Возвращает ErrAlreadyExists, если имя занято.
func (r *DatasetRepo) Create(ctx context.Context, name, description, filePath string) (*domain.Dataset, error) {
	id, intid, err := r.ident.Allocate(ctx, domain.KindDataset)
	if err != nil {
		return nil, err
	}

	ds := &domain.Dataset{
		ID:          id,
		Name:        name,
		Description: description,
		FilePath:    filePath,
		UploadedAt:  time.Now().UTC(),
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO datasets (_intid, id, name, description, file_path, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, intid, ds.ID, ds.Name, nullString(ds.Description), ds.FilePath, ds.UploadedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("dataset name %q: %w", name, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert dataset: %w", err)
	}
	return ds, nil
}

// GetByID возвращает dataset по публичному идентификатору.
func (r *DatasetRepo) GetByID(ctx context.Context, id string) (*domain.Dataset, error) {
	return r.scanDataset(r.pool.QueryRow(ctx, `
		SELECT id, name, description, file_path, uploaded_at
		FROM datasets WHERE id = $1
	`, id))
}

// GetByName возвращает dataset по имени.
func (r *DatasetRepo) GetByName(ctx context.Context, name string) (*domain.Dataset, error) {
	return r.scanDataset(r.pool.QueryRow(ctx, `
		SELECT id, name, description, file_path, uploaded_at
		FROM datasets WHERE name = $1
	`, name))
}

// List возвращает все datasets.
func (r *DatasetRepo) List(ctx context.Context) ([]domain.Dataset, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, file_path, uploaded_at
		FROM datasets ORDER BY _intid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []domain.Dataset
	for rows.Next() {
		var ds domain.Dataset
		var description *string
		if err := rows.Scan(&ds.ID, &ds.Name, &description, &ds.FilePath, &ds.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		ds.Description = derefString(description)
		datasets = append(datasets, ds)
	}
	return datasets, rows.Err()
}

// --- OutputFile ---

// CreateOutputFile регистрирует артефакт batch-запуска.
func (r *DatasetRepo) CreateOutputFile(ctx context.Context, fileName, filePath string) (*domain.OutputFile, error) {
	id, intid, err := r.ident.Allocate(ctx, domain.KindOutputFile)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	of := &domain.OutputFile{
		ID:        id,
		FileName:  fileName,
		FilePath:  filePath,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO output_files (_intid, id, file_name, file_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, intid, of.ID, of.FileName, of.FilePath, of.CreatedAt, of.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert output file: %w", err)
	}
	return of, nil
}

// GetOutputFile возвращает артефакт по публичному идентификатору.
func (r *DatasetRepo) GetOutputFile(ctx context.Context, id string) (*domain.OutputFile, error) {
	var of domain.OutputFile
	err := r.pool.QueryRow(ctx, `
		SELECT id, file_name, file_path, created_at, updated_at
		FROM output_files WHERE id = $1
	`, id).Scan(&of.ID, &of.FileName, &of.FilePath, &of.CreatedAt, &of.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get output file: %w", err)
	}
	return &of, nil
}

// scanDataset сканирует одну строку в Dataset.
func (r *DatasetRepo) scanDataset(row pgx.Row) (*domain.Dataset, error) {
	var ds domain.Dataset
	var description *string
	err := row.Scan(&ds.ID, &ds.Name, &description, &ds.FilePath, &ds.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan dataset: %w", err)
	}
	ds.Description = derefString(description)
	return &ds, nil
}
