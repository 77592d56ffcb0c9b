package nodes

import (
	"context"
	"errors"
	"time"
)

// Ошибки узлов.
var (
	// ErrTypeNotFound — тип узла не зарегистрирован в реестре.
	ErrTypeNotFound = errors.New("node type not found")

	// ErrInvalidConfig — невалидный payload узла.
	ErrInvalidConfig = errors.New("invalid node config")

	// ErrCancelled — выполнение узла отменено.
	ErrCancelled = errors.New("node execution cancelled")
)

// Handler — исполнитель одного типа обычных узлов.
//
// Каждый тип (passthrough, transform, http, delay) реализует этот
// интерфейс. Реализация обязана проверять ctx.Done().
type Handler interface {
	// Type возвращает тип узла, по которому идёт диспетчеризация.
	Type() string

	// Execute выполняет узел и возвращает его выходы.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения узла.
type Request struct {
	// NodeID — идентификатор узла в определении workflow.
	NodeID string

	// Config — распарсенный payload узла.
	Config map[string]any

	// Inputs — разрешённые входы узла: начальные inputs run'а плюс
	// выходы завершённых зависимостей.
	Inputs map[string]any

	// Timeout — таймаут выполнения узла. 0 — таймаут по умолчанию.
	Timeout time.Duration
}

// Response — результат выполнения узла.
type Response struct {
	// Outputs — выходные переменные узла. Доступны узлам ниже по графу
	// и попадают в выходы run'а, если узел — sink.
	Outputs map[string]any
}

// NewRequest создаёт Request с инициализированными картами.
func NewRequest(nodeID string, config, inputs map[string]any, timeout time.Duration) *Request {
	if config == nil {
		config = make(map[string]any)
	}
	if inputs == nil {
		inputs = make(map[string]any)
	}
	return &Request{
		NodeID:  nodeID,
		Config:  config,
		Inputs:  inputs,
		Timeout: timeout,
	}
}

// EmptyResponse возвращает Response без выходов.
func EmptyResponse() *Response {
	return &Response{Outputs: make(map[string]any)}
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из конфига.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetConfigMap извлекает map из конфига.
func GetConfigMap(config map[string]any, key string) map[string]any {
	if v, ok := config[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// GetConfigMapString извлекает map[string]string из конфига.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}
