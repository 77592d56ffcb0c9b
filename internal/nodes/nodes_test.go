package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Maestro/internal/engine"
)

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	r.Register(NewDelayNode())

	h, err := r.Get("delay")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Type() != "delay" {
		t.Errorf("expected delay, got %s", h.Type())
	}

	_, err = r.Get("unknown")
	if !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("expected ErrTypeNotFound, got %v", err)
	}

	if !r.Has("delay") {
		t.Error("should have delay")
	}
	if r.Has("unknown") {
		t.Error("should not have unknown")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	expectedTypes := []string{"delay", "http", "passthrough", "transform"}
	for _, typ := range expectedTypes {
		if !r.Has(typ) {
			t.Errorf("default registry should have %s", typ)
		}
	}

	types := r.Types()
	if len(types) != len(expectedTypes) {
		t.Errorf("expected %d types, got %d", len(expectedTypes), len(types))
	}
}

func TestRegistry_Execute_NoPayload(t *testing.T) {
	r := DefaultRegistry()

	node := &engine.NodeDef{ID: "n1"}
	inputs := map[string]any{"x": 1, "y": "two"}

	outputs, err := r.Execute(context.Background(), node, inputs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Узел без payload'а — passthrough.
	if outputs["x"] != 1 || outputs["y"] != "two" {
		t.Errorf("inputs should pass through, got %v", outputs)
	}
}

func TestRegistry_Execute_UnknownType(t *testing.T) {
	r := DefaultRegistry()

	node := &engine.NodeDef{
		ID:      "n1",
		Payload: json.RawMessage(`{"type": "teleport"}`),
	}

	_, err := r.Execute(context.Background(), node, nil)
	if !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("expected ErrTypeNotFound, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "n1") {
		t.Errorf("error should name the node: %v", err)
	}
}

func TestRegistry_Execute_MalformedPayload(t *testing.T) {
	r := DefaultRegistry()

	node := &engine.NodeDef{
		ID:      "n1",
		Payload: json.RawMessage(`[1, 2, 3]`),
	}

	_, err := r.Execute(context.Background(), node, nil)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// Passthrough Node Tests

func TestPassthroughNode_Values(t *testing.T) {
	node := NewPassthroughNode()

	req := NewRequest("n1", map[string]any{
		"values": map[string]any{"source": "maestro", "x": 42},
	}, map[string]any{"x": 1, "y": 2}, 0)

	resp, err := node.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// values перекрывают одноимённые входы.
	if resp.Outputs["x"] != 42 {
		t.Errorf("expected values to override inputs, got %v", resp.Outputs["x"])
	}
	if resp.Outputs["y"] != 2 {
		t.Errorf("expected y=2, got %v", resp.Outputs["y"])
	}
	if resp.Outputs["source"] != "maestro" {
		t.Errorf("expected source=maestro, got %v", resp.Outputs["source"])
	}
}

// Transform Node Tests

func TestTransformNode_Execute(t *testing.T) {
	node := NewTransformNode()

	req := NewRequest("n1", map[string]any{
		"mappings": map[string]any{
			"total":    "{{ len .Inputs.items }}",
			"greeting": "hello, {{ .Inputs.name }}",
		},
	}, map[string]any{
		"items": []any{"a", "b", "c"},
		"name":  "world",
	}, 0)

	resp, err := node.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Числовой результат парсится обратно из строки.
	if resp.Outputs["total"] != int64(3) {
		t.Errorf("expected total=3, got %v (%T)", resp.Outputs["total"], resp.Outputs["total"])
	}
	if resp.Outputs["greeting"] != "hello, world" {
		t.Errorf("expected greeting, got %v", resp.Outputs["greeting"])
	}
}

func TestTransformNode_MissingVariable(t *testing.T) {
	node := NewTransformNode()

	req := NewRequest("n1", map[string]any{
		"mappings": map[string]any{
			"out": "{{ .Inputs.nope }}",
		},
	}, map[string]any{"x": 1}, 0)

	_, err := node.Execute(context.Background(), req)
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
	if !strings.Contains(err.Error(), "out") {
		t.Errorf("error should name the mapping: %v", err)
	}
}

func TestTransformNode_EmptyMappings(t *testing.T) {
	node := NewTransformNode()

	resp, err := node.Execute(context.Background(), NewRequest("n1", nil, nil, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Outputs) != 0 {
		t.Errorf("expected empty outputs, got %v", resp.Outputs)
	}
}

// Delay Node Tests

func TestDelayNode_Execute(t *testing.T) {
	node := NewDelayNode()

	req := NewRequest("n1", map[string]any{
		"type":        "delay",
		"duration_ms": 50,
	}, map[string]any{"x": 1}, 0)

	start := time.Now()
	resp, err := node.Execute(context.Background(), req)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("delay was too short: %v", elapsed)
	}

	// Входы проходят сквозь узел.
	if resp.Outputs["x"] != 1 {
		t.Errorf("inputs should pass through, got %v", resp.Outputs)
	}
	if resp.Outputs["duration_ms"] != int64(50) {
		t.Errorf("expected duration_ms=50, got %v", resp.Outputs["duration_ms"])
	}
}

func TestDelayNode_InvalidConfig(t *testing.T) {
	node := NewDelayNode()

	_, err := node.Execute(context.Background(), NewRequest("n1", nil, nil, 0))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestDelayNode_Cancellation(t *testing.T) {
	node := NewDelayNode()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	req := NewRequest("n1", map[string]any{"duration_sec": 10}, nil, 0)

	start := time.Now()
	_, err := node.Execute(ctx, req)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("cancellation took too long: %v", elapsed)
	}
}

// HTTP Node Tests

func TestHTTPNode_GET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	node := NewHTTPNode()
	req := NewRequest("n1", map[string]any{
		"type": "http",
		"url":  server.URL,
	}, nil, 0)

	resp, err := node.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Outputs["status_code"] != http.StatusOK {
		t.Errorf("expected 200, got %v", resp.Outputs["status_code"])
	}

	body, ok := resp.Outputs["body"].(map[string]any)
	if !ok {
		t.Fatalf("body should be parsed JSON, got %T", resp.Outputs["body"])
	}
	if body["ok"] != true {
		t.Errorf("expected ok=true, got %v", body)
	}
}

func TestHTTPNode_POST_BodyVar(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	node := NewHTTPNode()
	req := NewRequest("n1", map[string]any{
		"type":     "http",
		"method":   "post",
		"url":      server.URL,
		"body_var": "payload",
	}, map[string]any{
		"payload": map[string]any{"name": "demo"},
	}, 0)

	resp, err := node.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Outputs["status_code"] != http.StatusCreated {
		t.Errorf("expected 201, got %v", resp.Outputs["status_code"])
	}
	if received["name"] != "demo" {
		t.Errorf("server should receive body from input variable, got %v", received)
	}
}

func TestHTTPNode_InvalidConfig(t *testing.T) {
	node := NewHTTPNode()

	// url обязателен.
	_, err := node.Execute(context.Background(), NewRequest("n1", nil, nil, 0))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	// body_var указывает на несуществующую переменную.
	req := NewRequest("n1", map[string]any{
		"url":      "http://localhost:1",
		"body_var": "missing",
	}, map[string]any{}, 0)
	_, err = node.Execute(context.Background(), req)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// Config Helper Tests

func TestGetConfigHelpers(t *testing.T) {
	config := map[string]any{
		"str":     "value",
		"int":     42,
		"float":   7.0,
		"bool":    true,
		"headers": map[string]any{"A": "1", "B": 2},
	}

	if GetConfigString(config, "str") != "value" {
		t.Error("GetConfigString failed")
	}
	if GetConfigString(config, "int") != "" {
		t.Error("GetConfigString should return empty for non-string")
	}
	if GetConfigInt(config, "int") != 42 {
		t.Error("GetConfigInt failed")
	}
	if GetConfigInt(config, "float") != 7 {
		t.Error("GetConfigInt should convert float64")
	}
	if !GetConfigBool(config, "bool", false) {
		t.Error("GetConfigBool failed")
	}
	if !GetConfigBool(config, "absent", true) {
		t.Error("GetConfigBool should return default")
	}

	headers := GetConfigMapString(config, "headers")
	if headers["A"] != "1" {
		t.Error("GetConfigMapString failed")
	}
	if _, ok := headers["B"]; ok {
		t.Error("GetConfigMapString should skip non-string values")
	}
}
