package engine

import (
	"encoding/json"
	"fmt"
)

// NodeKind — вид узла графа.
//
// Полиморфизм узлов моделируется tagged-вариантом, а не наследованием:
// executor диспетчеризует по Kind.
type NodeKind string

const (
	// NodeKindOrdinary — обычный узел, выполняется node executor'ом.
	NodeKindOrdinary NodeKind = "ordinary"

	// NodeKindSubworkflow — узел, запускающий дочерний run другого workflow.
	NodeKindSubworkflow NodeKind = "subworkflow"
)

// NodeDef — определение узла в конверте definition.
type NodeDef struct {
	// ID — уникальный идентификатор узла в рамках определения.
	ID string `json:"id"`

	// Kind — вид узла. Пустое значение трактуется как ordinary.
	Kind NodeKind `json:"kind,omitempty"`

	// Payload — непрозрачная конфигурация узла для node executor'а.
	Payload json.RawMessage `json:"payload,omitempty"`

	// WorkflowID — workflow, запускаемый sub-workflow узлом.
	WorkflowID string `json:"workflow_id,omitempty"`

	// Version — запиненная версия дочернего workflow.
	// Nil означает последнюю версию на момент запуска.
	Version *int `json:"version,omitempty"`
}

// IsSubworkflow возвращает true для sub-workflow узлов.
func (n *NodeDef) IsSubworkflow() bool {
	return n.Kind == NodeKindSubworkflow
}

// EdgeDef — направленное ребро графа: Target зависит от Source.
type EdgeDef struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Definition — конверт определения workflow: узлы и рёбра зависимостей.
//
// Это единственная часть definition, которую понимает планировщик;
// всё остальное — дело node executor'а.
type Definition struct {
	Nodes []NodeDef `json:"nodes"`
	Edges []EdgeDef `json:"edges,omitempty"`
}

// Parse разбирает сырое определение в конверт.
func Parse(raw json.RawMessage) (*Definition, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyDefinition
	}

	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, NewValidationError("", "",
			fmt.Sprintf("definition is not valid JSON: %v", err), ErrEmptyDefinition)
	}

	if err := Validate(&def); err != nil {
		return nil, err
	}

	return &def, nil
}

// Validate выполняет полную валидацию конверта.
//
// Проверяет:
//   - Наличие узлов
//   - Уникальность и непустоту ID узлов
//   - Корректность вида узла
//   - Наличие workflow-ссылки у sub-workflow узлов
//   - Валидность рёбер (оба конца существуют, нет self-loop)
//
// Циклы обнаруживаются при построении DAG.
func Validate(def *Definition) error {
	if def == nil || len(def.Nodes) == 0 {
		return ErrEmptyDefinition
	}

	nodeIDs := make(map[string]bool, len(def.Nodes))

	for i := range def.Nodes {
		node := &def.Nodes[i]

		if node.ID == "" {
			return NewValidationError("", "id", "node has empty ID", ErrEmptyNodeID)
		}
		if nodeIDs[node.ID] {
			return NewValidationError(node.ID, "id",
				fmt.Sprintf("duplicate node ID: %s", node.ID), ErrDuplicateNodeID)
		}
		nodeIDs[node.ID] = true

		switch node.Kind {
		case "", NodeKindOrdinary:
			// ок
		case NodeKindSubworkflow:
			if node.WorkflowID == "" {
				return NewValidationError(node.ID, "workflow_id",
					"subworkflow node must reference a workflow", ErrMissingWorkflowRef)
			}
		default:
			return NewValidationError(node.ID, "kind",
				fmt.Sprintf("unknown node kind: %s", node.Kind), ErrUnknownNodeKind)
		}
	}

	for _, edge := range def.Edges {
		if edge.Source == edge.Target {
			return NewValidationError(edge.Source, "edges",
				"node depends on itself", ErrSelfDependency)
		}
		if !nodeIDs[edge.Source] {
			return NewValidationError(edge.Target, "edges",
				fmt.Sprintf("edge references unknown node: %s", edge.Source), ErrMissingDependency)
		}
		if !nodeIDs[edge.Target] {
			return NewValidationError(edge.Source, "edges",
				fmt.Sprintf("edge references unknown node: %s", edge.Target), ErrMissingDependency)
		}
	}

	return nil
}
