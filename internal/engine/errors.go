package engine

import "errors"

// Ошибки валидации определения. Любая из них означает malformed definition:
// run помечается FAILED до диспетчеризации первого task'а.
var (
	// ErrEmptyDefinition — определение пустое или не содержит узлов.
	ErrEmptyDefinition = errors.New("definition has no nodes")

	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownNodeKind — неизвестный вид узла.
	ErrUnknownNodeKind = errors.New("unknown node kind")

	// ErrMissingDependency — ребро ссылается на несуществующий узел.
	ErrMissingDependency = errors.New("edge references unknown node")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency — узел зависит от самого себя.
	ErrSelfDependency = errors.New("node depends on itself")

	// ErrMissingWorkflowRef — sub-workflow узел не называет workflow.
	ErrMissingWorkflowRef = errors.New("subworkflow node has no workflow reference")
)

// ValidationError — ошибка валидации определения с контекстом.
type ValidationError struct {
	NodeID  string // ID узла, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// IsMalformed сообщает, является ли ошибка ошибкой malformed definition
// (в отличие от инфраструктурной).
func IsMalformed(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	for _, sentinel := range []error{
		ErrEmptyDefinition,
		ErrEmptyNodeID,
		ErrDuplicateNodeID,
		ErrUnknownNodeKind,
		ErrMissingDependency,
		ErrCyclicDependency,
		ErrSelfDependency,
		ErrMissingWorkflowRef,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
