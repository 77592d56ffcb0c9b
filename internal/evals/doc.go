// Package evals агрегирует результаты повторных выполнений workflow.
//
// Evaluator семплирует строки dataset'а, запускает по одному run на
// семпл против последней версии workflow, извлекает output_variable из
// выходов каждого run'а и собирает агрегат: per-sample записи плюс
// сводную статистику. Падения отдельных семплов попадают в results,
// а не в статус eval run'а — FAILED означает, что сама агрегация не
// смогла состояться (например, dataset недоступен).
package evals
