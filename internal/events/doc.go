// Package events публикует события жизненного цикла в RabbitMQ.
//
// Исполнение workflow происходит in-process, поэтому очередь используется
// только как исходящий поток событий для внешних подписчиков (аудит,
// нотификации, интеграции) — внутри системы consumers нет.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchange, очередей, bindings
//   - publisher.go  — публикация событий
//
// Типы событий:
//   - run.started / run.completed / run.failed
//   - task.completed / task.failed
//   - eval.completed / eval.failed
//
// Publisher безопасен при nil: система полностью работоспособна без
// RabbitMQ, события просто не публикуются.
package events
