package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shaiso/Maestro/internal/api"
	"github.com/shaiso/Maestro/internal/dataset"
	"github.com/shaiso/Maestro/internal/evals"
	"github.com/shaiso/Maestro/internal/events"
	"github.com/shaiso/Maestro/internal/nodes"
	"github.com/shaiso/Maestro/internal/orchestrator"
	"github.com/shaiso/Maestro/internal/repo"
	"github.com/shaiso/Maestro/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maestro_api_http_requests_total",
		Help: "Total HTTP requests handled by maestro_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting maestro-api")

	// Подключаемся к базе данных
	pool, err := repo.NewPool(context.Background())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Применяем миграции
	if err := repo.ApplyMigrations(context.Background(), pool, logger); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	// Создаём репозитории
	ident := repo.NewAllocator(pool)
	workflowRepo := repo.NewWorkflowRepo(pool, ident)
	runRepo := repo.NewRunRepo(pool, ident)
	taskRepo := repo.NewTaskRepo(pool, ident)
	datasetRepo := repo.NewDatasetRepo(pool, ident)
	evalRepo := repo.NewEvalRunRepo(pool, ident)

	// Подключаемся к RabbitMQ. Без брокера работаем дальше:
	// publisher nil-безопасен, события просто не публикуются.
	var publisher *events.Publisher
	conn, err := events.NewConnection(events.DefaultURL(), logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable, events disabled", "error", err)
	} else {
		defer conn.Close()
		if err := events.SetupTopology(context.Background(), conn); err != nil {
			logger.Error("failed to setup rabbitmq topology", "error", err)
			os.Exit(1)
		}
		publisher = events.NewPublisher(conn, logger)
		logger.Info("connected to rabbitmq")
	}

	// Собираем orchestrator и evaluator
	orch := orchestrator.New(orchestrator.Config{
		Runs:            runRepo,
		Workflows:       workflowRepo,
		Datasets:        datasetRepo,
		Rows:            dataset.NewJSONLSource(),
		Tasks:           taskRepo,
		Nodes:           nodes.DefaultRegistry(),
		Publisher:       publisher,
		MaxTaskWorkers:  envInt("MAX_TASK_WORKERS", 0),
		BatchWorkers:    envInt("BATCH_WORKERS", 0),
		MaxNestingDepth: envInt("MAX_NESTING_DEPTH", 0),
		DataDir:         os.Getenv("DATA_DIR"),
		Logger:          logger,
	})

	evaluator := evals.New(evals.Config{
		Evals:     evalRepo,
		Runner:    orch,
		Runs:      runRepo,
		Workflows: workflowRepo,
		Sampler:   dataset.NewHeadSampler(datasetRepo),
		Publisher: publisher,
		Logger:    logger,
	})

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		WorkflowRepo: workflowRepo,
		RunRepo:      runRepo,
		TaskRepo:     taskRepo,
		DatasetRepo:  datasetRepo,
		EvalRepo:     evalRepo,
		Orchestrator: orch,
		Evaluator:    evaluator,
		Logger:       logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

// envInt читает целочисленную переменную окружения.
// Возвращает def, если переменная не задана или невалидна.
func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid env value, using default", "name", name, "value", v)
		return def
	}
	return n
}
