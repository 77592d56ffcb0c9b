// Package orchestrator управляет жизненным циклом runs.
//
// Orchestrator отвечает за:
//   - Создание runs: валидация типа, резолв и пиннинг версии workflow,
//     защита от глубокой вложенности sub-workflow
//   - Запуск run'а: single-input — одно выполнение дерева, dataset-batch —
//     по выполнению на строку dataset'а с агрегацией результатов
//   - Финализацию run (COMPLETED/FAILED) и запись OutputFile для batch
//   - Кооперативную отмену
//   - Запуск дочерних runs для sub-workflow узлов (executor.RunLauncher)
//
// Orchestrator — это "мозг" системы, который координирует выполнение.
package orchestrator
