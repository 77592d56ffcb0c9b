// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (репозитории, orchestrator, evaluator)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - workflow_handler.go — обработчики для /workflows
//   - run_handler.go      — обработчики для /runs
//   - dataset_handler.go  — обработчики для /datasets
//   - eval_handler.go     — обработчики для /evals
//
// API предоставляет REST endpoints для управления workflows, runs,
// datasets и evaluations. Все сущности адресуются публичными
// идентификаторами ("S1", "R340").
package api
