package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/events"
	"github.com/shaiso/Maestro/internal/executor"
	"github.com/shaiso/Maestro/internal/repo"
	"github.com/shaiso/Maestro/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxNestingDepth = 10
	defaultBatchWorkers    = 4
	defaultDataDir         = "data"
)

// Orchestrator управляет жизненным циклом runs.
//
// Создаёт runs с запиненной версией workflow, выполняет их через
// TreeExecutor (single — одно дерево, batch — дерево на строку dataset'а),
// финализирует статус и реализует executor.RunLauncher для sub-workflow
// узлов.
type Orchestrator struct {
	// Stores
	runs      RunStore
	workflows WorkflowStore
	datasets  DatasetStore
	rows      RowSource

	// Executor
	exec *executor.TreeExecutor

	// Events
	publisher *events.Publisher

	// Active runs — выполняющиеся runs (runID → cancel).
	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex

	// Configuration
	maxDepth     int
	batchWorkers int
	dataDir      string

	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Stores
	Runs      RunStore
	Workflows WorkflowStore
	Datasets  DatasetStore
	Rows      RowSource

	// Tasks и Nodes передаются создаваемому TreeExecutor'у.
	Tasks executor.TaskStore
	Nodes executor.NodeExecutor

	// Publisher — исходящий поток событий (может быть nil).
	Publisher *events.Publisher

	// MaxTaskWorkers — размер пула воркеров одного дерева (default: 8).
	MaxTaskWorkers int

	// BatchWorkers — параллелизм строк batch run'а (default: 4).
	BatchWorkers int

	// MaxNestingDepth — максимальная глубина вложенности sub-workflow
	// runs (default: 10).
	MaxNestingDepth int

	// DataDir — каталог для output files batch runs (default: "data").
	DataDir string

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
//
// TreeExecutor создаётся здесь же: оркестратор выступает его
// RunLauncher'ом, замыкая рекурсию sub-workflow узлов.
func New(cfg Config) *Orchestrator {
	maxDepth := cfg.MaxNestingDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxNestingDepth
	}

	batchWorkers := cfg.BatchWorkers
	if batchWorkers <= 0 {
		batchWorkers = defaultBatchWorkers
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = defaultDataDir
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		runs:         cfg.Runs,
		workflows:    cfg.Workflows,
		datasets:     cfg.Datasets,
		rows:         cfg.Rows,
		publisher:    cfg.Publisher,
		activeRuns:   make(map[string]context.CancelFunc),
		maxDepth:     maxDepth,
		batchWorkers: batchWorkers,
		dataDir:      dataDir,
		logger:       logger,
	}

	o.exec = executor.New(executor.Config{
		Tasks:      cfg.Tasks,
		Nodes:      cfg.Nodes,
		Launcher:   o,
		Publisher:  cfg.Publisher,
		MaxWorkers: cfg.MaxTaskWorkers,
		Logger:     logger,
	})

	return o
}

// CancelRun запрашивает кооперативную отмену run'а.
//
// Активный run получает отмену контекста: in-flight узлы прерываются,
// недиспетчеризованные tasks создаются FAILED с причиной "cancelled",
// run финализируется как FAILED. Для PENDING run'а (ещё не запущенного)
// статус переводится в FAILED напрямую; терминальный run отклоняется
// со StateTransitionError.
func (o *Orchestrator) CancelRun(ctx context.Context, runID string) error {
	o.mu.RLock()
	cancel, active := o.activeRuns[runID]
	o.mu.RUnlock()

	if active {
		o.logger.Info("cancelling active run", "run_id", runID)
		cancel()
		return nil
	}

	// Run не в работе: отменяем до запуска.
	if err := o.runs.MarkFailed(ctx, runID, "cancelled", nil, ""); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRunNotFound
		}
		return err
	}

	o.logger.Info("cancelled pending run", "run_id", runID)
	o.publishRunFinished(ctx, runID, "", "", string(domain.RunStatusFailed), "cancelled")
	return nil
}

// IsRunActive проверяет, выполняется ли run этим процессом.
func (o *Orchestrator) IsRunActive(runID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, exists := o.activeRuns[runID]
	return exists
}

// ActiveRunsCount возвращает количество активных runs.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// addActiveRun регистрирует run как выполняющийся.
func (o *Orchestrator) addActiveRun(runID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.activeRuns[runID] = cancel
	telemetry.ActiveRuns.Set(float64(len(o.activeRuns)))
}

// removeActiveRun снимает run с учёта.
func (o *Orchestrator) removeActiveRun(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.activeRuns, runID)
	telemetry.ActiveRuns.Set(float64(len(o.activeRuns)))
}

// publishRunFinished отправляет терминальное событие run.
func (o *Orchestrator) publishRunFinished(ctx context.Context, runID, workflowID, runType, status, reason string) {
	err := o.publisher.PublishRunFinished(ctx, events.RunEventPayload{
		RunID:      runID,
		WorkflowID: workflowID,
		RunType:    runType,
		Status:     status,
		Error:      reason,
	})
	if err != nil {
		o.logger.Warn("failed to publish run event", "run_id", runID, "error", err)
	}
}
