// Package dataset читает файлы datasets.
//
// Поддерживается формат JSONL: одна строка файла — один JSON-объект,
// отображаемый во входы одного выполнения дерева. Итерация ленивая и
// перезапускаемая: каждый вызов Rows открывает файл заново.
package dataset
