package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
//	PENDING → FAILED (отмена до запуска)
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCompleted — run успешно завершён.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusFailed — run завершился с ошибкой (или отменён).
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// CanTransitionTo проверяет допустимость перехода статуса.
// Переходы строго монотонны: PENDING → RUNNING → терминальный,
// каждый применяется ровно один раз.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunStatusPending:
		return next == RunStatusRunning || next == RunStatusFailed
	case RunStatusRunning:
		return next == RunStatusCompleted || next == RunStatusFailed
	default:
		return false
	}
}

// TaskStatus — статус выполнения task.
//
// Машина состояний идентична RunStatus. Task, пропущенный из-за падения
// зависимости, переходит PENDING → FAILED без установки start_time.
type TaskStatus string

const (
	// TaskStatusPending — task создан, ожидает диспетчеризации.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusRunning — task выполняется node executor'ом.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusCompleted — task успешно завершён.
	TaskStatusCompleted TaskStatus = "COMPLETED"

	// TaskStatusFailed — task завершился с ошибкой или пропущен.
	TaskStatusFailed TaskStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo проверяет допустимость перехода статуса.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning || next == TaskStatusFailed
	case TaskStatusRunning:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}

// EvalRunStatus — статус evaluation run.
//
// Падения отдельных sample runs не переводят EvalRun в FAILED — они
// записываются внутри results. FAILED означает, что сама агрегация
// не смогла выполниться (например, недоступен dataset).
type EvalRunStatus string

const (
	// EvalRunStatusPending — evaluation создан, но не начал выполняться.
	EvalRunStatusPending EvalRunStatus = "PENDING"

	// EvalRunStatusRunning — sample runs в процессе выполнения.
	EvalRunStatusRunning EvalRunStatus = "RUNNING"

	// EvalRunStatusCompleted — все samples обработаны.
	EvalRunStatusCompleted EvalRunStatus = "COMPLETED"

	// EvalRunStatusFailed — агрегация не смогла выполниться.
	EvalRunStatusFailed EvalRunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s EvalRunStatus) IsTerminal() bool {
	return s == EvalRunStatusCompleted || s == EvalRunStatusFailed
}

// CanTransitionTo проверяет допустимость перехода статуса.
func (s EvalRunStatus) CanTransitionTo(next EvalRunStatus) bool {
	switch s {
	case EvalRunStatusPending:
		return next == EvalRunStatusRunning || next == EvalRunStatusFailed
	case EvalRunStatusRunning:
		return next == EvalRunStatusCompleted || next == EvalRunStatusFailed
	default:
		return false
	}
}
