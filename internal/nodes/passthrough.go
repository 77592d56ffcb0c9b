package nodes

import (
	"context"
	"fmt"
)

const (
	// NodeTypePassthrough — тип passthrough узла. Узел без payload'а
	// выполняется этим типом.
	NodeTypePassthrough = "passthrough"

	// Ключ конфигурации passthrough.
	configValues = "values"
)

// PassthroughNode — узел, пропускающий входы на выход.
//
// Копирует все входные переменные в выходы и накладывает поверх них
// статические значения из конфигурации. Используется как точка слияния
// веток графа и как источник констант.
//
// Конфигурация:
//
//	{
//	    "values": {"source": "maestro", "threshold": 0.5}
//	}
//
// Outputs: входы узла плюс values (values имеют приоритет).
type PassthroughNode struct{}

// NewPassthroughNode создаёт новый PassthroughNode.
func NewPassthroughNode() *PassthroughNode {
	return &PassthroughNode{}
}

// Type возвращает тип узла.
func (n *PassthroughNode) Type() string {
	return NodeTypePassthrough
}

// Execute копирует входы и накладывает статические значения.
func (n *PassthroughNode) Execute(ctx context.Context, req *Request) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	default:
	}

	outputs := make(map[string]any, len(req.Inputs))
	for k, v := range req.Inputs {
		outputs[k] = v
	}
	for k, v := range GetConfigMap(req.Config, configValues) {
		outputs[k] = v
	}

	return &Response{Outputs: outputs}, nil
}
