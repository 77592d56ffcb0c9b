package engine

// Node — узел в DAG.
type Node struct {
	// Def — определение узла из конверта.
	Def *NodeDef

	// ID — идентификатор узла (копия Def.ID).
	ID string

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// DAG — направленный ациклический граф узлов определения.
type DAG struct {
	// Nodes — все узлы графа (nodeID → Node).
	Nodes map[string]*Node

	// RootNodes — узлы без зависимостей (точки входа).
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node
}

// BuildDAG строит DAG из определения.
//
// Возвращает ошибку валидации, если определение malformed: пустое, с
// дублями ID, с висячими рёбрами или с циклом.
func BuildDAG(def *Definition) (*DAG, error) {
	if err := Validate(def); err != nil {
		return nil, err
	}

	dag := &DAG{
		Nodes:     make(map[string]*Node, len(def.Nodes)),
		RootNodes: make([]*Node, 0),
	}

	// Первый проход: создаём все узлы
	for i := range def.Nodes {
		nd := &def.Nodes[i]
		dag.Nodes[nd.ID] = &Node{
			Def:        nd,
			ID:         nd.ID,
			DependsOn:  make([]*Node, 0),
			Dependents: make([]*Node, 0),
		}
	}

	// Второй проход: связываем узлы по рёбрам
	for _, edge := range def.Edges {
		dag.addEdge(dag.Nodes[edge.Source], dag.Nodes[edge.Target])
	}

	// Находим корневые узлы
	for _, node := range dag.Nodes {
		if node.InDegree == 0 {
			dag.RootNodes = append(dag.RootNodes, node)
		}
	}

	// Проверяем на циклы и строим топологический порядок
	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// addEdge добавляет ребро между узлами.
// Дубликаты рёбер игнорируются, чтобы не завышать InDegree.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return // уже связаны
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(d.Nodes))
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}

	queue := make([]*Node, len(d.RootNodes))
	copy(queue, d.RootNodes)

	order := make([]*Node, 0, len(d.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(d.Nodes) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// ReadyNodes возвращает узлы, готовые к диспетчеризации.
//
// Узел готов, если все его зависимости в completed, а сам он ещё не
// стартовал и не завершился. started покрывает и running, и терминальные
// узлы: повторная диспетчеризация исключена.
func (d *DAG) ReadyNodes(completed, started map[string]bool) []*Node {
	ready := make([]*Node, 0)

	for _, node := range d.Order {
		if started[node.ID] {
			continue
		}

		allDepsCompleted := true
		for _, dep := range node.DependsOn {
			if !completed[dep.ID] {
				allDepsCompleted = false
				break
			}
		}

		if allDepsCompleted {
			ready = append(ready, node)
		}
	}

	return ready
}

// Descendants возвращает все узлы, транзитивно зависящие от данного.
//
// Используется для short-circuit: при падении узла все его потомки
// никогда не диспетчеризуются.
func (d *DAG) Descendants(id string) []*Node {
	seen := make(map[string]bool)
	result := make([]*Node, 0)

	var walk func(n *Node)
	walk = func(n *Node) {
		for _, dep := range n.Dependents {
			if seen[dep.ID] {
				continue
			}
			seen[dep.ID] = true
			result = append(result, dep)
			walk(dep)
		}
	}

	start, ok := d.Nodes[id]
	if !ok {
		return result
	}
	walk(start)

	return result
}

// Sinks возвращает узлы без зависимых (выходные узлы графа).
// Их выходы образуют outputs всего run'а.
func (d *DAG) Sinks() []*Node {
	sinks := make([]*Node, 0)
	for _, node := range d.Order {
		if len(node.Dependents) == 0 {
			sinks = append(sinks, node)
		}
	}
	return sinks
}

// GetNode возвращает узел по ID.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}
