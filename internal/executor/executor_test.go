package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/engine"
)

// --- In-memory fakes ---

// memTaskStore — in-memory реализация TaskStore для тестов.
// Повторяет семантику repo.TaskRepo, включая CAS-переходы статуса.
type memTaskStore struct {
	mu    sync.Mutex
	seq   int
	tasks map[string]*domain.Task
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]*domain.Task)}
}

func (s *memTaskStore) Create(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	task.ID = fmt.Sprintf("T%d", s.seq)
	task.Status = domain.TaskStatusPending

	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *memTaskStore) CreateFailed(_ context.Context, task *domain.Task, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	now := time.Now().UTC()
	task.ID = fmt.Sprintf("T%d", s.seq)
	task.Status = domain.TaskStatusFailed
	task.EndTime = &now
	task.Error = reason

	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *memTaskStore) MarkRunning(_ context.Context, id string) error {
	return s.transition(id, domain.TaskStatusPending, func(t *domain.Task) {
		t.MarkRunning()
	})
}

func (s *memTaskStore) MarkCompleted(_ context.Context, id string, outputs map[string]any) error {
	return s.transition(id, domain.TaskStatusRunning, func(t *domain.Task) {
		t.MarkCompleted(outputs)
	})
}

func (s *memTaskStore) MarkFailed(_ context.Context, id, reason string) error {
	return s.transition(id, domain.TaskStatusRunning, func(t *domain.Task) {
		t.MarkFailed(reason)
	})
}

func (s *memTaskStore) RecordSubworkflow(_ context.Context, id string, definition json.RawMessage, output map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return errors.New("not found")
	}
	task.Subworkflow = definition
	task.SubworkflowOutput = output
	return nil
}

func (s *memTaskStore) transition(id string, from domain.TaskStatus, apply func(*domain.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return errors.New("not found")
	}
	if task.Status != from {
		return &domain.StateTransitionError{Entity: "task", ID: id, From: string(task.Status)}
	}
	apply(task)
	return nil
}

// byNode возвращает task по node id.
func (s *memTaskStore) byNode(nodeID string) *domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		if task.NodeID == nodeID {
			return task
		}
	}
	return nil
}

func (s *memTaskStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// fakeNodes — NodeExecutor с настраиваемой функцией.
type fakeNodes struct {
	fn func(ctx context.Context, node *engine.NodeDef, inputs map[string]any) (map[string]any, error)
}

func (f *fakeNodes) Execute(ctx context.Context, node *engine.NodeDef, inputs map[string]any) (map[string]any, error) {
	return f.fn(ctx, node, inputs)
}

// fakeLauncher — RunLauncher с настраиваемой функцией.
type fakeLauncher struct {
	fn func(ctx context.Context, req ChildRunRequest) (*ChildRunResult, error)
}

func (f *fakeLauncher) LaunchChild(ctx context.Context, req ChildRunRequest) (*ChildRunResult, error) {
	return f.fn(ctx, req)
}

// --- Helpers ---

func testRun() *domain.Run {
	return &domain.Run{ID: "R1", WorkflowID: "S1", Status: domain.RunStatusRunning}
}

func chainDefinition() json.RawMessage {
	return json.RawMessage(`{
		"nodes": [{"id": "a"}, {"id": "b"}, {"id": "c"}],
		"edges": [{"source": "a", "target": "b"}, {"source": "b", "target": "c"}]
	}`)
}

// incrementNodes — каждый узел увеличивает счётчик sum на единицу.
func incrementNodes() *fakeNodes {
	return &fakeNodes{fn: func(_ context.Context, _ *engine.NodeDef, inputs map[string]any) (map[string]any, error) {
		sum, _ := inputs["sum"].(int)
		return map[string]any{"sum": sum + 1}, nil
	}}
}

// --- Execute Tests ---

func TestTreeExecutor_ChainSuccess(t *testing.T) {
	store := newMemTaskStore()
	exec := New(Config{Tasks: store, Nodes: incrementNodes()})

	result, err := exec.Execute(context.Background(), Params{
		Run:        testRun(),
		Definition: chainDefinition(),
		Inputs:     map[string]any{"sum": 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Failed() {
		t.Fatalf("expected success, failed nodes: %v", result.FailedNodes)
	}

	// Выход run'а — выход sink-узла c: 10 + 3 инкремента
	if result.Outputs["sum"] != 13 {
		t.Errorf("expected sum=13, got %v", result.Outputs["sum"])
	}

	// Все tasks COMPLETED с таймстемпами
	for _, nodeID := range []string{"a", "b", "c"} {
		task := store.byNode(nodeID)
		if task == nil {
			t.Fatalf("no task for node %s", nodeID)
		}
		if task.Status != domain.TaskStatusCompleted {
			t.Errorf("node %s: expected COMPLETED, got %s", nodeID, task.Status)
		}
		if task.StartTime == nil || task.EndTime == nil {
			t.Errorf("node %s: expected start and end time", nodeID)
		}
	}

	// Входы текут по цепочке: b получил выходы a
	if task := store.byNode("b"); task.Inputs["sum"] != 11 {
		t.Errorf("node b: expected input sum=11, got %v", task.Inputs["sum"])
	}
}

func TestTreeExecutor_RootGetsInitialInputs(t *testing.T) {
	store := newMemTaskStore()
	exec := New(Config{Tasks: store, Nodes: incrementNodes()})

	_, err := exec.Execute(context.Background(), Params{
		Run:        testRun(),
		Definition: json.RawMessage(`{"nodes": [{"id": "root"}]}`),
		Inputs:     map[string]any{"sum": 5, "extra": "kept"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task := store.byNode("root")
	if task.Inputs["sum"] != 5 {
		t.Errorf("expected initial input sum=5, got %v", task.Inputs["sum"])
	}
	if task.Inputs["extra"] != "kept" {
		t.Errorf("initial inputs should pass through unchanged, got %v", task.Inputs)
	}
}

func TestTreeExecutor_DiamondMergesInputs(t *testing.T) {
	store := newMemTaskStore()
	nodes := &fakeNodes{fn: func(_ context.Context, node *engine.NodeDef, inputs map[string]any) (map[string]any, error) {
		// Каждый узел отдаёт единственный ключ со своим именем
		return map[string]any{"from_" + node.ID: true}, nil
	}}
	exec := New(Config{Tasks: store, Nodes: nodes})

	result, err := exec.Execute(context.Background(), Params{
		Run: testRun(),
		Definition: json.RawMessage(`{
			"nodes": [{"id": "a"}, {"id": "b"}, {"id": "c"}, {"id": "d"}],
			"edges": [
				{"source": "a", "target": "b"},
				{"source": "a", "target": "c"},
				{"source": "b", "target": "d"},
				{"source": "c", "target": "d"}
			]
		}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed() {
		t.Fatalf("expected success, failed nodes: %v", result.FailedNodes)
	}

	// d получил слитые выходы обеих веток
	task := store.byNode("d")
	if task.Inputs["from_b"] != true || task.Inputs["from_c"] != true {
		t.Errorf("expected merged inputs from b and c, got %v", task.Inputs)
	}
	if _, ok := task.Inputs["from_a"]; ok {
		t.Error("d should not see outputs of non-dependency a")
	}
}

func TestTreeExecutor_FailureShortCircuit(t *testing.T) {
	store := newMemTaskStore()
	nodes := &fakeNodes{fn: func(_ context.Context, node *engine.NodeDef, _ map[string]any) (map[string]any, error) {
		if node.ID == "b" {
			return nil, errors.New("boom")
		}
		return map[string]any{"ok": node.ID}, nil
	}}
	exec := New(Config{Tasks: store, Nodes: nodes})

	result, err := exec.Execute(context.Background(), Params{
		Run:        testRun(),
		Definition: chainDefinition(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Failed() {
		t.Fatal("expected failed result")
	}
	if len(result.FailedNodes) != 2 {
		t.Fatalf("expected 2 failed nodes (b and skipped c), got %v", result.FailedNodes)
	}

	// b упал штатно: RUNNING → FAILED, оба таймстемпа
	b := store.byNode("b")
	if b.Status != domain.TaskStatusFailed {
		t.Errorf("node b: expected FAILED, got %s", b.Status)
	}
	if b.Error != "boom" {
		t.Errorf("node b: expected error 'boom', got %q", b.Error)
	}
	if b.StartTime == nil {
		t.Error("node b: started node must have start time")
	}

	// c пропущен: создан сразу FAILED, без start_time
	c := store.byNode("c")
	if c.Status != domain.TaskStatusFailed {
		t.Errorf("node c: expected FAILED, got %s", c.Status)
	}
	if c.StartTime != nil {
		t.Error("node c: skipped node must not have start time")
	}
	if c.EndTime == nil {
		t.Error("node c: skipped node must have end time")
	}
	if !strings.Contains(c.Error, "b") {
		t.Errorf("node c: error should reference upstream node, got %q", c.Error)
	}

	// Выходы run'а пусты: единственный sink пропущен
	if len(result.Outputs) != 0 {
		t.Errorf("expected empty outputs, got %v", result.Outputs)
	}
}

func TestTreeExecutor_IndependentBranchSurvivesFailure(t *testing.T) {
	store := newMemTaskStore()
	nodes := &fakeNodes{fn: func(_ context.Context, node *engine.NodeDef, _ map[string]any) (map[string]any, error) {
		if node.ID == "bad" {
			return nil, errors.New("boom")
		}
		return map[string]any{node.ID: "done"}, nil
	}}
	exec := New(Config{Tasks: store, Nodes: nodes})

	// Две независимые ветки: падение одной не трогает другую
	result, err := exec.Execute(context.Background(), Params{
		Run: testRun(),
		Definition: json.RawMessage(`{
			"nodes": [{"id": "bad"}, {"id": "good"}]
		}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	good := store.byNode("good")
	if good.Status != domain.TaskStatusCompleted {
		t.Errorf("independent node: expected COMPLETED, got %s", good.Status)
	}

	// Выходы — только от завершённого sink
	if result.Outputs["good"] != "done" {
		t.Errorf("expected outputs from completed sink, got %v", result.Outputs)
	}
	if len(result.FailedNodes) != 1 || result.FailedNodes[0] != "bad" {
		t.Errorf("expected only 'bad' failed, got %v", result.FailedNodes)
	}
}

func TestTreeExecutor_SubworkflowSuccess(t *testing.T) {
	store := newMemTaskStore()
	childDef := json.RawMessage(`{"nodes": [{"id": "inner"}]}`)

	var gotReq ChildRunRequest
	launcher := &fakeLauncher{fn: func(_ context.Context, req ChildRunRequest) (*ChildRunResult, error) {
		gotReq = req
		return &ChildRunResult{
			Run: &domain.Run{
				ID:      "R2",
				Status:  domain.RunStatusCompleted,
				Outputs: map[string]any{"child_result": 42},
			},
			Definition: childDef,
		}, nil
	}}
	exec := New(Config{Tasks: store, Launcher: launcher})

	version := 3
	def, _ := json.Marshal(engine.Definition{
		Nodes: []engine.NodeDef{{
			ID:         "sub",
			Kind:       engine.NodeKindSubworkflow,
			WorkflowID: "S2",
			Version:    &version,
		}},
	})

	result, err := exec.Execute(context.Background(), Params{
		Run:        testRun(),
		Definition: def,
		Inputs:     map[string]any{"x": 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed() {
		t.Fatalf("expected success, failed nodes: %v", result.FailedNodes)
	}

	// Launcher получил правильный запрос
	if gotReq.WorkflowID != "S2" {
		t.Errorf("expected workflow S2, got %s", gotReq.WorkflowID)
	}
	if gotReq.Version == nil || *gotReq.Version != 3 {
		t.Errorf("expected pinned version 3, got %v", gotReq.Version)
	}
	if gotReq.ParentRunID != "R1" {
		t.Errorf("expected parent run R1, got %s", gotReq.ParentRunID)
	}
	if gotReq.Inputs["x"] != 1 {
		t.Errorf("expected node inputs passed to child, got %v", gotReq.Inputs)
	}

	// Task хранит снимок определения и выходы дочернего run'а
	task := store.byNode("sub")
	if gotReq.ParentTaskID != task.ID {
		t.Errorf("expected parent task %s, got %s", task.ID, gotReq.ParentTaskID)
	}
	if string(task.Subworkflow) != string(childDef) {
		t.Errorf("expected definition snapshot, got %s", task.Subworkflow)
	}
	if task.SubworkflowOutput["child_result"] != 42 {
		t.Errorf("expected subworkflow output recorded, got %v", task.SubworkflowOutput)
	}

	// Выходы дочернего run'а стали выходами узла
	if result.Outputs["child_result"] != 42 {
		t.Errorf("expected child outputs propagated, got %v", result.Outputs)
	}
}

func TestTreeExecutor_SubworkflowFailed(t *testing.T) {
	store := newMemTaskStore()
	launcher := &fakeLauncher{fn: func(_ context.Context, _ ChildRunRequest) (*ChildRunResult, error) {
		return &ChildRunResult{
			Run: &domain.Run{
				ID:     "R2",
				Status: domain.RunStatusFailed,
				Error:  "node inner failed",
			},
			Definition: json.RawMessage(`{"nodes": [{"id": "inner"}]}`),
		}, nil
	}}
	exec := New(Config{Tasks: store, Launcher: launcher})

	result, err := exec.Execute(context.Background(), Params{
		Run: testRun(),
		Definition: json.RawMessage(`{
			"nodes": [{"id": "sub", "kind": "subworkflow", "workflow_id": "S2"}]
		}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Failed() {
		t.Fatal("expected failed result")
	}

	task := store.byNode("sub")
	if task.Status != domain.TaskStatusFailed {
		t.Errorf("expected FAILED, got %s", task.Status)
	}
	if !strings.Contains(task.Error, "subworkflow run failed") {
		t.Errorf("expected subworkflow failure reason, got %q", task.Error)
	}
	// Снимок определения записан даже при падении
	if len(task.Subworkflow) == 0 {
		t.Error("definition snapshot should be recorded for failed subworkflow")
	}
}

func TestTreeExecutor_NoLauncher(t *testing.T) {
	store := newMemTaskStore()
	exec := New(Config{Tasks: store, Nodes: incrementNodes()})

	result, err := exec.Execute(context.Background(), Params{
		Run: testRun(),
		Definition: json.RawMessage(`{
			"nodes": [{"id": "sub", "kind": "subworkflow", "workflow_id": "S2"}]
		}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Failed() {
		t.Fatal("expected failed result without launcher")
	}
	task := store.byNode("sub")
	if !strings.Contains(task.Error, ErrNoLauncher.Error()) {
		t.Errorf("expected launcher error, got %q", task.Error)
	}
}

func TestTreeExecutor_Cancelled(t *testing.T) {
	store := newMemTaskStore()

	started := make(chan struct{})
	nodes := &fakeNodes{fn: func(ctx context.Context, node *engine.NodeDef, _ map[string]any) (map[string]any, error) {
		if node.ID == "b" {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return map[string]any{}, nil
	}}
	exec := New(Config{Tasks: store, Nodes: nodes})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan *Result, 1)
	go func() {
		result, err := exec.Execute(ctx, Params{
			Run:        testRun(),
			Definition: chainDefinition(),
		})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- result
	}()

	// Отменяем, когда b уже в работе
	<-started
	cancel()

	result := <-done
	if result == nil {
		t.Fatal("no result")
	}
	if !result.Cancelled {
		t.Error("expected cancelled result")
	}

	// a успел завершиться
	if a := store.byNode("a"); a.Status != domain.TaskStatusCompleted {
		t.Errorf("node a: expected COMPLETED, got %s", a.Status)
	}

	// b прерван: FAILED с причиной cancelled, start_time есть
	b := store.byNode("b")
	if b.Status != domain.TaskStatusFailed {
		t.Errorf("node b: expected FAILED, got %s", b.Status)
	}
	if b.Error != cancelReason {
		t.Errorf("node b: expected reason %q, got %q", cancelReason, b.Error)
	}
	if b.StartTime == nil {
		t.Error("node b: interrupted node must have start time")
	}

	// c не диспетчеризовался: FAILED без start_time
	c := store.byNode("c")
	if c == nil {
		t.Fatal("node c: task must be created on cancellation")
	}
	if c.Status != domain.TaskStatusFailed {
		t.Errorf("node c: expected FAILED, got %s", c.Status)
	}
	if c.StartTime != nil {
		t.Error("node c: undispatched node must not have start time")
	}
	if c.Error != cancelReason {
		t.Errorf("node c: expected reason %q, got %q", cancelReason, c.Error)
	}
}

func TestTreeExecutor_InvalidDefinition(t *testing.T) {
	exec := New(Config{Tasks: newMemTaskStore(), Nodes: incrementNodes()})

	tests := []struct {
		name string
		def  string
	}{
		{"empty nodes", `{"nodes": []}`},
		{"duplicate ids", `{"nodes": [{"id": "a"}, {"id": "a"}]}`},
		{"cycle", `{"nodes": [{"id": "a"}, {"id": "b"}], "edges": [{"source": "a", "target": "b"}, {"source": "b", "target": "a"}]}`},
		{"unknown kind", `{"nodes": [{"id": "a", "kind": "magic"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Execute(context.Background(), Params{
				Run:        testRun(),
				Definition: json.RawMessage(tt.def),
			})
			if err == nil {
				t.Fatal("expected error for invalid definition")
			}
		})
	}
}

func TestTreeExecutor_ParentTaskIDPropagated(t *testing.T) {
	store := newMemTaskStore()
	exec := New(Config{Tasks: store, Nodes: incrementNodes()})

	_, err := exec.Execute(context.Background(), Params{
		Run:          testRun(),
		Definition:   json.RawMessage(`{"nodes": [{"id": "a"}]}`),
		ParentTaskID: "T99",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if task := store.byNode("a"); task.ParentTaskID != "T99" {
		t.Errorf("expected parent task T99, got %q", task.ParentTaskID)
	}
}

func TestTreeExecutor_WideGraphBoundedWorkers(t *testing.T) {
	store := newMemTaskStore()

	var mu sync.Mutex
	running, peak := 0, 0
	nodes := &fakeNodes{fn: func(_ context.Context, _ *engine.NodeDef, _ map[string]any) (map[string]any, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return map[string]any{}, nil
	}}
	exec := New(Config{Tasks: store, Nodes: nodes, MaxWorkers: 2})

	def := `{"nodes": [`
	for i := 0; i < 10; i++ {
		if i > 0 {
			def += ","
		}
		def += fmt.Sprintf(`{"id": "n%d"}`, i)
	}
	def += `]}`

	result, err := exec.Execute(context.Background(), Params{
		Run:        testRun(),
		Definition: json.RawMessage(def),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed() {
		t.Fatalf("expected success, failed: %v", result.FailedNodes)
	}
	if store.count() != 10 {
		t.Errorf("expected 10 tasks, got %d", store.count())
	}
	if peak > 2 {
		t.Errorf("expected at most 2 concurrent nodes, saw %d", peak)
	}
}
