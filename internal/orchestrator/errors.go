package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRunNotFound — run не найден в БД.
	ErrRunNotFound = errors.New("run not found")

	// ErrWorkflowNotFound — workflow не найден.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrVersionNotFound — версия workflow не найдена.
	ErrVersionNotFound = errors.New("workflow version not found")

	// ErrDatasetNotFound — dataset не найден.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrInvalidRunType — неизвестный run_type.
	ErrInvalidRunType = errors.New("invalid run type")

	// ErrInvalidRunInput — входы не соответствуют типу run'а:
	// single запрещает dataset, batch требует dataset и запрещает
	// initial inputs.
	ErrInvalidRunInput = errors.New("run inputs do not match run type")

	// ErrMaxDepthExceeded — цепочка parent_run_id превысила максимальную
	// глубину вложенности sub-workflow.
	ErrMaxDepthExceeded = errors.New("max subworkflow nesting depth exceeded")

	// ErrRunNotActive — run не выполняется этим процессом (для отмены).
	ErrRunNotActive = errors.New("run not in active runs")
)
