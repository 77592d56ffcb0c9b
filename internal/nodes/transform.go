package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
)

const (
	// NodeTypeTransform — тип узла трансформации.
	NodeTypeTransform = "transform"

	// Ключ конфигурации.
	configMappings = "mappings"
)

// TransformNode — узел трансформации данных.
//
// Применяет Go templates к входным переменным узла. Каждый mapping
// рендерится в строку, результат парсится обратно в JSON-значение.
//
// Конфигурация:
//
//	{
//	    "type": "transform",
//	    "mappings": {
//	        "total": "{{ len .Inputs.items }}",
//	        "greeting": "hello, {{ .Inputs.name }}"
//	    }
//	}
//
// Outputs: результаты рендеринга mappings
//
//	{"total": 3, "greeting": "hello, world"}
type TransformNode struct{}

// NewTransformNode создаёт новый TransformNode.
func NewTransformNode() *TransformNode {
	return &TransformNode{}
}

// Type возвращает тип узла.
func (n *TransformNode) Type() string {
	return NodeTypeTransform
}

// templateData — корень данных для шаблонов mappings.
type templateData struct {
	Inputs map[string]any
}

// Execute выполняет трансформацию входов.
func (n *TransformNode) Execute(ctx context.Context, req *Request) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	default:
	}

	mappings := n.parseMappings(req.Config)
	if len(mappings) == 0 {
		return EmptyResponse(), nil
	}

	data := templateData{Inputs: req.Inputs}

	outputs := make(map[string]any, len(mappings))
	for key, text := range mappings {
		rendered, err := n.render(key, text, data)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", key, err)
		}
		outputs[key] = n.parseValue(rendered)
	}

	return &Response{Outputs: outputs}, nil
}

// render рендерит один mapping. Обращение к отсутствующей переменной —
// ошибка, а не пустая строка.
func (n *TransformNode) render(name, text string, data templateData) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// parseMappings извлекает mappings из конфигурации.
func (n *TransformNode) parseMappings(config map[string]any) map[string]string {
	raw := config[configMappings]
	if raw == nil {
		return nil
	}

	switch m := raw.(type) {
	case map[string]string:
		return m

	case map[string]any:
		result := make(map[string]string, len(m))
		for key, val := range m {
			if str, ok := val.(string); ok {
				result[key] = str
			}
		}
		return result

	default:
		return nil
	}
}

// parseValue пытается распарсить строку как JSON-значение.
// Если не получается — возвращает строку как есть.
func (n *TransformNode) parseValue(value string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		return obj
	}

	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	var num json.Number
	if err := json.Unmarshal([]byte(value), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}

	return value
}
