// Package engine разбирает определения workflow и строит граф выполнения.
//
// Включает:
//   - definition.go — конверт определения (nodes + edges) и его валидация
//   - dag.go        — построение и обход DAG (directed acyclic graph)
//   - hash.go       — детерминированный content hash определения
//
// Engine отвечает за понимание структуры графа и определение порядка
// выполнения узлов на основе их зависимостей. Содержимое payload узла для
// engine непрозрачно — его интерпретирует node executor.
package engine
