package executor

import (
	"maps"
	"slices"
	"sync"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/engine"
)

// execState — состояние выполнения одного дерева в памяти.
//
// Содержит DAG и отслеживание статуса каждого узла: какие узлы
// диспетчеризованы, завершены, упали или пропущены, и выходы
// завершённых узлов для разрешения входов зависимых.
type execState struct {
	dag *engine.DAG

	// completed — успешно завершённые узлы (nodeID → true).
	completed map[string]bool

	// started — узлы, уже диспетчеризованные или терминальные.
	// Повторная диспетчеризация исключена.
	started map[string]bool

	// failed — упавшие и пропущенные узлы (nodeID → true).
	failed map[string]bool

	// outputs — выходы завершённых узлов (nodeID → outputs).
	outputs map[string]map[string]any

	// tasks — созданные tasks (nodeID → Task).
	tasks map[string]*domain.Task

	// inFlight — количество узлов в обработке.
	inFlight int

	mu sync.RWMutex
}

// newExecState создаёт состояние для DAG.
func newExecState(dag *engine.DAG) *execState {
	return &execState{
		dag:       dag,
		completed: make(map[string]bool),
		started:   make(map[string]bool),
		failed:    make(map[string]bool),
		outputs:   make(map[string]map[string]any),
		tasks:     make(map[string]*domain.Task),
	}
}

// Ready возвращает узлы, готовые к диспетчеризации.
func (s *execState) Ready() []*engine.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.dag.ReadyNodes(s.completed, s.started)
}

// InputsFor разрешает входы узла: слитые выходы его зависимостей.
// Корневые узлы получают initial. При коллизии ключей побеждает
// зависимость, идущая позже в порядке объявления.
func (s *execState) InputsFor(node *engine.Node, initial map[string]any) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(node.DependsOn) == 0 {
		return maps.Clone(initial)
	}

	inputs := make(map[string]any)
	for _, dep := range node.DependsOn {
		maps.Copy(inputs, s.outputs[dep.ID])
	}
	return inputs
}

// MarkStarted помечает узел как диспетчеризованный.
func (s *execState) MarkStarted(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started[nodeID] = true
	s.inFlight++
}

// Finish фиксирует получение результата in-flight узла.
func (s *execState) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight--
}

// Complete помечает узел как успешно завершённый и запоминает выходы.
func (s *execState) Complete(nodeID string, outputs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed[nodeID] = true
	s.outputs[nodeID] = outputs
}

// Fail помечает узел как упавший.
func (s *execState) Fail(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failed[nodeID] = true
}

// Skip помечает узел как пропущенный: терминален, диспетчеризации не будет.
func (s *execState) Skip(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started[nodeID] = true
	s.failed[nodeID] = true
}

// Started проверяет, диспетчеризован ли узел (включая пропущенные).
func (s *execState) Started(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.started[nodeID]
}

// Terminal проверяет, завершён ли узел (успешно или нет).
func (s *execState) Terminal(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.completed[nodeID] || s.failed[nodeID]
}

// SetTask запоминает task узла.
func (s *execState) SetTask(nodeID string, task *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[nodeID] = task
}

// HasTask проверяет, создан ли task для узла.
func (s *execState) HasTask(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tasks[nodeID] != nil
}

// InFlight возвращает количество узлов в обработке.
func (s *execState) InFlight() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.inFlight
}

// FailedNodes возвращает отсортированный список упавших узлов.
func (s *execState) FailedNodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]string, 0, len(s.failed))
	for nodeID := range s.failed {
		nodes = append(nodes, nodeID)
	}
	slices.Sort(nodes)
	return nodes
}

// RunOutputs возвращает выходы run'а: слитые выходы завершённых
// sink-узлов в порядке объявления.
func (s *execState) RunOutputs() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outputs := make(map[string]any)
	for _, sink := range s.dag.Sinks() {
		if s.completed[sink.ID] {
			maps.Copy(outputs, s.outputs[sink.ID])
		}
	}
	return outputs
}
