// Package nodes содержит исполнители обычных узлов workflow.
//
// # Обзор
//
// Payload узла в определении workflow — непрозрачный JSON. Этот пакет
// задаёт одну его интерпретацию: объект с полем "type", по которому
// Registry выбирает Handler. Executor работает только с интерфейсом
// executor.NodeExecutor, поэтому интерпретацию payload'а можно заменить
// целиком, не трогая движок.
//
// # Интерфейс Handler
//
//	type Handler interface {
//	    Type() string
//	    Execute(ctx context.Context, req *Request) (*Response, error)
//	}
//
// Request содержит NodeID, Config (распарсенный payload), Inputs
// (начальные inputs run'а плюс выходы зависимостей) и Timeout.
// Response содержит Outputs — переменные для узлов ниже по графу.
//
// # Registry
//
//	registry := nodes.DefaultRegistry()  // passthrough, transform, http, delay
//	outputs, err := registry.Execute(ctx, &nodeDef, inputs)
//
// Узел без payload'а или без поля "type" выполняется как passthrough.
//
// # Типы узлов
//
//   - passthrough (passthrough.go) — копирует входы на выход, накладывает
//     статические values; точка слияния веток и источник констант
//   - transform (transform.go) — Go templates над входами узла
//   - http (http.go) — запрос к внешнему API, body литеральный или из
//     входной переменной (body_var)
//   - delay (delay.go) — пауза с пропуском входов дальше
//
// # Обработка ошибок
//
// Handlers возвращают типизированные ошибки (ErrTypeNotFound,
// ErrInvalidConfig, ErrCancelled); executor переводит task в FAILED с
// текстом ошибки. Retry-политики здесь нет.
package nodes
