package nodes

import (
	"context"
	"fmt"
	"time"
)

const (
	// NodeTypeDelay — тип узла задержки.
	NodeTypeDelay = "delay"

	// Ключи конфигурации delay.
	configDurationSec = "duration_sec"
	configDurationMs  = "duration_ms"
)

// DelayNode — узел задержки.
//
// Приостанавливает ветку графа на указанное время и пропускает входы
// дальше. Поддерживает graceful shutdown через context cancellation.
//
// Конфигурация:
//
//	{"type": "delay", "duration_sec": 10}   // или
//	{"type": "delay", "duration_ms": 500}
type DelayNode struct{}

// NewDelayNode создаёт новый DelayNode.
func NewDelayNode() *DelayNode {
	return &DelayNode{}
}

// Type возвращает тип узла.
func (n *DelayNode) Type() string {
	return NodeTypeDelay
}

// Execute выполняет задержку.
func (n *DelayNode) Execute(ctx context.Context, req *Request) (*Response, error) {
	duration, err := n.parseDuration(req.Config)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case <-timer.C:
	}

	// Входы проходят сквозь узел, чтобы задержка не рвала поток данных.
	outputs := make(map[string]any, len(req.Inputs)+1)
	for k, v := range req.Inputs {
		outputs[k] = v
	}
	outputs["duration_ms"] = duration.Milliseconds()

	return &Response{Outputs: outputs}, nil
}

// parseDuration извлекает длительность из конфигурации.
func (n *DelayNode) parseDuration(config map[string]any) (time.Duration, error) {
	if sec := GetConfigInt(config, configDurationSec); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}

	if ms := GetConfigInt(config, configDurationMs); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}

	return 0, fmt.Errorf("%w: %s: duration_sec or duration_ms required",
		ErrInvalidConfig, NodeTypeDelay)
}
