package executor

import "errors"

// Ошибки executor'а.
var (
	// ErrNoNodeExecutor — в определении есть обычный узел, но NodeExecutor
	// не сконфигурирован.
	ErrNoNodeExecutor = errors.New("no node executor configured")

	// ErrNoLauncher — в определении есть sub-workflow узел, но RunLauncher
	// не сконфигурирован.
	ErrNoLauncher = errors.New("no run launcher configured")

	// ErrSubworkflowFailed — дочерний run завершился не в COMPLETED.
	ErrSubworkflowFailed = errors.New("subworkflow run failed")
)
