package api

import (
	"log/slog"

	"github.com/shaiso/Maestro/internal/evals"
	"github.com/shaiso/Maestro/internal/orchestrator"
	"github.com/shaiso/Maestro/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflowRepo *repo.WorkflowRepo
	runRepo      *repo.RunRepo
	taskRepo     *repo.TaskRepo
	datasetRepo  *repo.DatasetRepo
	evalRepo     *repo.EvalRunRepo
	orch         *orchestrator.Orchestrator
	evaluator    *evals.Evaluator
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	WorkflowRepo *repo.WorkflowRepo
	RunRepo      *repo.RunRepo
	TaskRepo     *repo.TaskRepo
	DatasetRepo  *repo.DatasetRepo
	EvalRepo     *repo.EvalRunRepo
	Orchestrator *orchestrator.Orchestrator
	Evaluator    *evals.Evaluator
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		workflowRepo: cfg.WorkflowRepo,
		runRepo:      cfg.RunRepo,
		taskRepo:     cfg.TaskRepo,
		datasetRepo:  cfg.DatasetRepo,
		evalRepo:     cfg.EvalRepo,
		orch:         cfg.Orchestrator,
		evaluator:    cfg.Evaluator,
		logger:       cfg.Logger,
	}
}
