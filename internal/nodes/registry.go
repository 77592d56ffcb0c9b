package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Maestro/internal/engine"
)

// Ключ payload'а, по которому выбирается Handler.
const configType = "type"

// Registry — реестр типов узлов.
//
// Диспетчеризует payload обычного узла по полю "type" на
// зарегистрированный Handler. Узел без payload'а или без поля "type"
// выполняется как passthrough. Потокобезопасен; реализует
// executor.NodeExecutor.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными типами узлов.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(NewPassthroughNode())
	r.Register(NewTransformNode())
	r.Register(NewHTTPNode())
	r.Register(NewDelayNode())

	return r
}

// Register регистрирует Handler. Существующий тип перезаписывается.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

// Get возвращает Handler по типу.
// Возвращает ErrTypeNotFound, если тип не зарегистрирован.
func (r *Registry) Get(nodeType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handlers[nodeType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, nodeType)
	}

	return h, nil
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[nodeType]
	return exists
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Execute выполняет обычный узел: парсит payload, выбирает Handler по
// полю "type" и возвращает выходы узла.
func (r *Registry) Execute(ctx context.Context, node *engine.NodeDef, inputs map[string]any) (map[string]any, error) {
	config := make(map[string]any)
	if len(node.Payload) > 0 {
		if err := json.Unmarshal(node.Payload, &config); err != nil {
			return nil, fmt.Errorf("node %s: %w: %v", node.ID, ErrInvalidConfig, err)
		}
	}

	nodeType := GetConfigString(config, configType)
	if nodeType == "" {
		nodeType = NodeTypePassthrough
	}

	h, err := r.Get(nodeType)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	timeout := time.Duration(GetConfigInt(config, "timeout_sec")) * time.Second
	resp, err := h.Execute(ctx, NewRequest(node.ID, config, inputs, timeout))
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	return resp.Outputs, nil
}
