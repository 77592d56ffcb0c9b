// Package executor реализует Task Tree Executor — выполнение одного
// definition в рамках run.
//
// Алгоритм:
//  1. Definition разбирается и превращается в DAG.
//  2. Узлы без незавершённых зависимостей диспетчеризуются в пул
//     воркеров; на каждую диспетчеризацию создаётся task PENDING → RUNNING.
//  3. Входы узла — слитые выходы tasks его зависимостей; корневые узлы
//     получают начальные входы выполнения.
//  4. При падении узла все его транзитивные потомки пропускаются:
//     tasks создаются сразу в FAILED, без start_time.
//  5. Sub-workflow узлы запускают дочерний run через RunLauncher и
//     ждут его терминального статуса.
//  6. Выходы run'а — слитые выходы завершённых sink-узлов.
//
// Зависимости описаны интерфейсами (TaskStore, NodeExecutor,
// RunLauncher), поэтому executor тестируется in-memory без БД.
package executor
