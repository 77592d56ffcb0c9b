package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/shaiso/Maestro/internal/domain"
)

// RunStore — подмножество операций репозитория runs.
// Реализуется repo.RunRepo.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id string) (*domain.Run, error)
	MarkRunning(ctx context.Context, id string) (*domain.Run, error)
	MarkCompleted(ctx context.Context, id string, outputs map[string]any, outputFileID string) error
	MarkFailed(ctx context.Context, id, reason string, outputs map[string]any, outputFileID string) error
}

// WorkflowStore — операции чтения workflows и версий плюс снапшот
// текущего черновика. Реализуется repo.WorkflowRepo.
type WorkflowStore interface {
	GetByID(ctx context.Context, id string) (*domain.Workflow, error)

	// CreateVersion идемпотентна по содержимому: неизменённый definition
	// возвращает существующую версию.
	CreateVersion(ctx context.Context, workflowID string, definition json.RawMessage) (*domain.WorkflowVersion, error)

	// GetVersion принимает номер версии либо "latest".
	GetVersion(ctx context.Context, workflowID, versionRef string) (*domain.WorkflowVersion, error)
	GetVersionByID(ctx context.Context, id string) (*domain.WorkflowVersion, error)
}

// DatasetStore — операции над datasets и output files.
// Реализуется repo.DatasetRepo.
type DatasetStore interface {
	GetByID(ctx context.Context, id string) (*domain.Dataset, error)
	CreateOutputFile(ctx context.Context, fileName, filePath string) (*domain.OutputFile, error)
}

// RowIterator — ленивый итератор по строкам dataset'а.
type RowIterator interface {
	// Next возвращает следующую строку; io.EOF означает конец.
	Next() (map[string]any, error)
	Close() error
}

// RowSource отдаёт строки dataset-файла для batch runs.
// Реализуется dataset.JSONLSource.
type RowSource interface {
	Rows(ctx context.Context, filePath string) (RowIterator, error)
}
