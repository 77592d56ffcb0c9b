package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/engine"
	"github.com/shaiso/Maestro/internal/executor"
	"github.com/shaiso/Maestro/internal/repo"
)

// --- In-memory fakes ---

type memRuns struct {
	mu   sync.Mutex
	seq  int
	runs map[string]*domain.Run
}

func newMemRuns() *memRuns {
	return &memRuns{runs: make(map[string]*domain.Run)}
}

func (s *memRuns) Create(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	run.ID = fmt.Sprintf("R%d", s.seq)
	run.Status = domain.RunStatusPending

	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *memRuns) GetByID(_ context.Context, id string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *memRuns) MarkRunning(_ context.Context, id string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if run.Status != domain.RunStatusPending {
		return nil, &domain.StateTransitionError{
			Entity: "run", ID: id,
			From: string(run.Status), To: string(domain.RunStatusRunning),
		}
	}
	run.MarkRunning()
	cp := *run
	return &cp, nil
}

func (s *memRuns) MarkCompleted(_ context.Context, id string, outputs map[string]any, outputFileID string) error {
	return s.finish(id, domain.RunStatusCompleted, "", outputs, outputFileID, false)
}

func (s *memRuns) MarkFailed(_ context.Context, id, reason string, outputs map[string]any, outputFileID string) error {
	return s.finish(id, domain.RunStatusFailed, reason, outputs, outputFileID, true)
}

func (s *memRuns) finish(id string, status domain.RunStatus, reason string, outputs map[string]any, outputFileID string, fromPending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	allowed := run.Status == domain.RunStatusRunning || (fromPending && run.Status == domain.RunStatusPending)
	if !allowed {
		return &domain.StateTransitionError{
			Entity: "run", ID: id,
			From: string(run.Status), To: string(status),
		}
	}

	now := time.Now().UTC()
	run.Status = status
	run.EndTime = &now
	run.Outputs = outputs
	run.OutputFileID = outputFileID
	run.Error = reason
	return nil
}

type memWorkflows struct {
	mu        sync.Mutex
	seq       int
	workflows map[string]*domain.Workflow
	versions  map[string][]*domain.WorkflowVersion
}

func newMemWorkflows() *memWorkflows {
	return &memWorkflows{
		workflows: make(map[string]*domain.Workflow),
		versions:  make(map[string][]*domain.WorkflowVersion),
	}
}

func (s *memWorkflows) add(id, name string, definition json.RawMessage) {
	s.workflows[id] = &domain.Workflow{ID: id, Name: name, Definition: definition}
}

func (s *memWorkflows) GetByID(_ context.Context, id string) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return wf, nil
}

func (s *memWorkflows) CreateVersion(_ context.Context, workflowID string, definition json.RawMessage) (*domain.WorkflowVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[workflowID]; !ok {
		return nil, repo.ErrNotFound
	}

	hash, err := engine.HashDefinition(definition)
	if err != nil {
		return nil, err
	}

	existing := s.versions[workflowID]
	if len(existing) > 0 && existing[len(existing)-1].DefinitionHash == hash {
		return existing[len(existing)-1], nil
	}

	s.seq++
	version := &domain.WorkflowVersion{
		ID:             fmt.Sprintf("SV%d", s.seq),
		WorkflowID:     workflowID,
		Version:        len(existing) + 1,
		Definition:     definition,
		DefinitionHash: hash,
	}
	s.versions[workflowID] = append(existing, version)
	return version, nil
}

func (s *memWorkflows) GetVersion(_ context.Context, workflowID, versionRef string) (*domain.WorkflowVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions[workflowID]
	if len(versions) == 0 {
		return nil, repo.ErrNotFound
	}
	if versionRef == "" || versionRef == "latest" {
		return versions[len(versions)-1], nil
	}

	n, err := strconv.Atoi(versionRef)
	if err != nil {
		return nil, repo.ErrNotFound
	}
	for _, v := range versions {
		if v.Version == n {
			return v, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *memWorkflows) GetVersionByID(_ context.Context, id string) (*domain.WorkflowVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, versions := range s.versions {
		for _, v := range versions {
			if v.ID == id {
				return v, nil
			}
		}
	}
	return nil, repo.ErrNotFound
}

type memDatasets struct {
	mu          sync.Mutex
	seq         int
	datasets    map[string]*domain.Dataset
	outputFiles []*domain.OutputFile
}

func newMemDatasets() *memDatasets {
	return &memDatasets{datasets: make(map[string]*domain.Dataset)}
}

func (s *memDatasets) GetByID(_ context.Context, id string) (*domain.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.datasets[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return ds, nil
}

func (s *memDatasets) CreateOutputFile(_ context.Context, fileName, filePath string) (*domain.OutputFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	of := &domain.OutputFile{ID: fmt.Sprintf("OF%d", s.seq), FileName: fileName, FilePath: filePath}
	s.outputFiles = append(s.outputFiles, of)
	return of, nil
}

// memTasks — минимальный TaskStore для тестов оркестратора.
type memTasks struct {
	mu    sync.Mutex
	seq   int
	tasks map[string]*domain.Task
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: make(map[string]*domain.Task)}
}

func (s *memTasks) Create(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	task.ID = fmt.Sprintf("T%d", s.seq)
	task.Status = domain.TaskStatusPending
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *memTasks) CreateFailed(_ context.Context, task *domain.Task, reason string) error {
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

func (s *memTasks) MarkRunning(_ context.Context, id string) error {
	return s.update(id, func(t *domain.Task) { t.MarkRunning() })
}

func (s *memTasks) MarkCompleted(_ context.Context, id string, outputs map[string]any) error {
	return s.update(id, func(t *domain.Task) { t.MarkCompleted(outputs) })
}

func (s *memTasks) MarkFailed(_ context.Context, id, reason string) error {
	return s.update(id, func(t *domain.Task) { t.MarkFailed(reason) })
}

func (s *memTasks) RecordSubworkflow(_ context.Context, id string, definition json.RawMessage, output map[string]any) error {
	return s.update(id, func(t *domain.Task) {
		t.Subworkflow = definition
		t.SubworkflowOutput = output
	})
}

func (s *memTasks) update(id string, apply func(*domain.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return repo.ErrNotFound
	}
	apply(task)
	return nil
}

func (s *memTasks) byRun(runID string) []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Task
	for _, task := range s.tasks {
		if task.RunID == runID {
			out = append(out, task)
		}
	}
	return out
}

// sliceRows — RowSource над срезом строк.
type sliceRows struct {
	rows []map[string]any
}

func (s *sliceRows) Rows(_ context.Context, _ string) (RowIterator, error) {
	return &sliceIterator{rows: s.rows}, nil
}

type sliceIterator struct {
	rows []map[string]any
	pos  int
}

func (it *sliceIterator) Next() (map[string]any, error) {
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}

func (it *sliceIterator) Close() error { return nil }

type fakeNodes struct {
	fn func(ctx context.Context, node *engine.NodeDef, inputs map[string]any) (map[string]any, error)
}

func (f *fakeNodes) Execute(ctx context.Context, node *engine.NodeDef, inputs map[string]any) (map[string]any, error) {
	return f.fn(ctx, node, inputs)
}

// --- Test fixture ---

type fixture struct {
	runs      *memRuns
	workflows *memWorkflows
	datasets  *memDatasets
	tasks     *memTasks
	orch      *Orchestrator
}

func newFixture(t *testing.T, nodes executor.NodeExecutor, rows RowSource, opts ...func(*Config)) *fixture {
	t.Helper()

	f := &fixture{
		runs:      newMemRuns(),
		workflows: newMemWorkflows(),
		datasets:  newMemDatasets(),
		tasks:     newMemTasks(),
	}

	cfg := Config{
		Runs:      f.runs,
		Workflows: f.workflows,
		Datasets:  f.datasets,
		Rows:      rows,
		Tasks:     f.tasks,
		Nodes:     nodes,
		DataDir:   t.TempDir(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f.orch = New(cfg)
	return f
}

func passNodes() *fakeNodes {
	return &fakeNodes{fn: func(_ context.Context, node *engine.NodeDef, inputs map[string]any) (map[string]any, error) {
		out := map[string]any{"done_" + node.ID: true}
		for k, v := range inputs {
			out[k] = v
		}
		return out, nil
	}}
}

const chainDef = `{
	"nodes": [{"id": "a"}, {"id": "b"}, {"id": "c"}],
	"edges": [{"source": "a", "target": "b"}, {"source": "b", "target": "c"}]
}`

// --- CreateRun Tests ---

func TestCreateRun_InvalidRunType(t *testing.T) {
	f := newFixture(t, passNodes(), nil)
	f.workflows.add("S1", "wf", json.RawMessage(chainDef))

	_, err := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID: "S1",
		RunType:    "weird",
	})
	if !errors.Is(err, ErrInvalidRunType) {
		t.Fatalf("expected ErrInvalidRunType, got %v", err)
	}
}

func TestCreateRun_InputValidation(t *testing.T) {
	f := newFixture(t, passNodes(), nil)
	f.workflows.add("S1", "wf", json.RawMessage(chainDef))

	tests := []struct {
		name   string
		params CreateRunParams
	}{
		{"single with dataset", CreateRunParams{
			WorkflowID: "S1", RunType: domain.RunTypeSingle, DatasetID: "DS1",
		}},
		{"batch without dataset", CreateRunParams{
			WorkflowID: "S1", RunType: domain.RunTypeBatch,
		}},
		{"batch with initial inputs", CreateRunParams{
			WorkflowID: "S1", RunType: domain.RunTypeBatch, DatasetID: "DS1",
			InitialInputs: map[string]any{"x": 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.CreateRun(context.Background(), tt.params)
			if !errors.Is(err, ErrInvalidRunInput) {
				t.Fatalf("expected ErrInvalidRunInput, got %v", err)
			}
		})
	}
}

func TestCreateRun_CommitsDraftVersion(t *testing.T) {
	f := newFixture(t, passNodes(), nil)
	f.workflows.add("S1", "wf", json.RawMessage(chainDef))

	run1, err := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID: "S1",
		RunType:    domain.RunTypeSingle,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run1.Status != domain.RunStatusPending {
		t.Errorf("expected PENDING, got %s", run1.Status)
	}
	if run1.WorkflowVersionID == "" {
		t.Fatal("run must pin a version")
	}

	// Повторное создание без изменений определения не плодит версии
	run2, err := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID: "S1",
		RunType:    domain.RunTypeSingle,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run1.WorkflowVersionID != run2.WorkflowVersionID {
		t.Errorf("expected same pinned version, got %s and %s",
			run1.WorkflowVersionID, run2.WorkflowVersionID)
	}
}

func TestCreateRun_UnknownWorkflow(t *testing.T) {
	f := newFixture(t, passNodes(), nil)

	_, err := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID: "S404",
		RunType:    domain.RunTypeSingle,
	})
	if !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestCreateRun_NestingDepthGuard(t *testing.T) {
	f := newFixture(t, passNodes(), nil, func(cfg *Config) {
		cfg.MaxNestingDepth = 3
	})
	f.workflows.add("S1", "wf", json.RawMessage(chainDef))

	// Строим цепочку из трёх runs
	parentID := ""
	for i := 0; i < 3; i++ {
		run, err := f.orch.CreateRun(context.Background(), CreateRunParams{
			WorkflowID:  "S1",
			RunType:     domain.RunTypeSingle,
			ParentRunID: parentID,
		})
		if err != nil {
			t.Fatalf("depth %d: unexpected error: %v", i, err)
		}
		parentID = run.ID
	}

	_, err := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID:  "S1",
		RunType:     domain.RunTypeSingle,
		ParentRunID: parentID,
	})
	if !errors.Is(err, ErrMaxDepthExceeded) {
		t.Fatalf("expected ErrMaxDepthExceeded, got %v", err)
	}
}

// --- StartRun Tests ---

func TestStartRun_SingleSuccess(t *testing.T) {
	f := newFixture(t, passNodes(), nil)
	f.workflows.add("S1", "wf", json.RawMessage(chainDef))

	run, err := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID:    "S1",
		RunType:       domain.RunTypeSingle,
		InitialInputs: map[string]any{"x": 1},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.orch.StartRun(context.Background(), run.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	final, _ := f.runs.GetByID(context.Background(), run.ID)
	if final.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", final.Status, final.Error)
	}
	if final.StartTime == nil || final.EndTime == nil {
		t.Error("expected start and end time")
	}

	// Выходы sink-узла содержат маркеры всей цепочки
	if final.Outputs["done_c"] != true {
		t.Errorf("expected sink outputs, got %v", final.Outputs)
	}
	if final.Outputs["x"] != 1 {
		t.Errorf("initial inputs should flow through, got %v", final.Outputs)
	}

	if n := len(f.tasks.byRun(run.ID)); n != 3 {
		t.Errorf("expected 3 tasks, got %d", n)
	}
}

func TestStartRun_Twice(t *testing.T) {
	f := newFixture(t, passNodes(), nil)
	f.workflows.add("S1", "wf", json.RawMessage(chainDef))

	run, _ := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID: "S1",
		RunType:    domain.RunTypeSingle,
	})

	if err := f.orch.StartRun(context.Background(), run.ID); err != nil {
		t.Fatalf("first start: %v", err)
	}

	err := f.orch.StartRun(context.Background(), run.ID)
	var ste *domain.StateTransitionError
	if !errors.As(err, &ste) {
		t.Fatalf("expected StateTransitionError, got %v", err)
	}
}

func TestStartRun_NodeFailure(t *testing.T) {
	nodes := &fakeNodes{fn: func(_ context.Context, node *engine.NodeDef, _ map[string]any) (map[string]any, error) {
		if node.ID == "b" {
			return nil, errors.New("boom")
		}
		return map[string]any{}, nil
	}}
	f := newFixture(t, nodes, nil)
	f.workflows.add("S1", "wf", json.RawMessage(chainDef))

	run, _ := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID: "S1",
		RunType:    domain.RunTypeSingle,
	})

	if err := f.orch.StartRun(context.Background(), run.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	final, _ := f.runs.GetByID(context.Background(), run.ID)
	if final.Status != domain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", final.Status)
	}
	if !strings.Contains(final.Error, "b") {
		t.Errorf("failure reason should name failed nodes, got %q", final.Error)
	}

	// Терминальный task есть у каждого узла
	if n := len(f.tasks.byRun(run.ID)); n != 3 {
		t.Errorf("expected 3 tasks, got %d", n)
	}
}

func TestStartRun_MalformedDefinition(t *testing.T) {
	f := newFixture(t, passNodes(), nil)
	f.workflows.add("S1", "wf", json.RawMessage(`{
		"nodes": [{"id": "a"}, {"id": "b"}],
		"edges": [{"source": "a", "target": "b"}, {"source": "b", "target": "a"}]
	}`))

	run, err := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID: "S1",
		RunType:    domain.RunTypeSingle,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Цикл обнаруживается при запуске: ошибка вызывающему, run FAILED,
	// ни одного task
	err = f.orch.StartRun(context.Background(), run.ID)
	if err == nil {
		t.Fatal("expected error for cyclic definition")
	}

	final, _ := f.runs.GetByID(context.Background(), run.ID)
	if final.Status != domain.RunStatusFailed {
		t.Errorf("expected FAILED, got %s", final.Status)
	}
	if n := len(f.tasks.byRun(run.ID)); n != 0 {
		t.Errorf("malformed definition must not dispatch tasks, got %d", n)
	}
}

func TestStartRun_Batch(t *testing.T) {
	nodes := &fakeNodes{fn: func(_ context.Context, _ *engine.NodeDef, inputs map[string]any) (map[string]any, error) {
		if fail, _ := inputs["fail"].(bool); fail {
			return nil, errors.New("row rejected")
		}
		return map[string]any{"echo": inputs["v"]}, nil
	}}
	rows := &sliceRows{rows: []map[string]any{
		{"v": "one"},
		{"v": "two", "fail": true},
		{"v": "three"},
	}}
	f := newFixture(t, nodes, rows)
	f.workflows.add("S1", "wf", json.RawMessage(`{"nodes": [{"id": "only"}]}`))
	f.datasets.datasets["DS1"] = &domain.Dataset{ID: "DS1", Name: "samples", FilePath: "samples.jsonl"}

	run, err := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID: "S1",
		RunType:    domain.RunTypeBatch,
		DatasetID:  "DS1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.orch.StartRun(context.Background(), run.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Best-effort: одна упавшая строка валит run, но соседние доехали
	final, _ := f.runs.GetByID(context.Background(), run.ID)
	if final.Status != domain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", final.Status)
	}
	if !strings.Contains(final.Error, "1 of 3") {
		t.Errorf("expected '1 of 3 rows failed', got %q", final.Error)
	}

	rowsOut, ok := final.Outputs["rows"].([]any)
	if !ok || len(rowsOut) != 3 {
		t.Fatalf("expected 3 row entries in outputs, got %v", final.Outputs)
	}

	// Tasks созданы на каждую строку
	if n := len(f.tasks.byRun(run.ID)); n != 3 {
		t.Errorf("expected 3 tasks (one tree per row), got %d", n)
	}

	// Output file записан и привязан
	if final.OutputFileID == "" {
		t.Fatal("expected output file linked to run")
	}
	if len(f.datasets.outputFiles) != 1 {
		t.Fatalf("expected 1 registered output file, got %d", len(f.datasets.outputFiles))
	}

	of := f.datasets.outputFiles[0]
	data, err := os.ReadFile(of.FilePath)
	if err != nil {
		t.Fatalf("read output file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Errorf("expected 3 JSONL lines, got %d", len(lines))
	}
	if filepath.Base(of.FilePath) != of.FileName {
		t.Errorf("file name mismatch: %s vs %s", of.FilePath, of.FileName)
	}
}

func TestStartRun_Subworkflow(t *testing.T) {
	f := newFixture(t, passNodes(), nil)

	f.workflows.add("S2", "child", json.RawMessage(`{"nodes": [{"id": "inner"}]}`))
	// Версия дочернего workflow должна существовать до запуска
	if _, err := f.workflows.CreateVersion(context.Background(), "S2", json.RawMessage(`{"nodes": [{"id": "inner"}]}`)); err != nil {
		t.Fatalf("create child version: %v", err)
	}

	f.workflows.add("S1", "parent", json.RawMessage(`{
		"nodes": [
			{"id": "prep"},
			{"id": "sub", "kind": "subworkflow", "workflow_id": "S2"}
		],
		"edges": [{"source": "prep", "target": "sub"}]
	}`))

	run, err := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID:    "S1",
		RunType:       domain.RunTypeSingle,
		InitialInputs: map[string]any{"x": 1},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.orch.StartRun(context.Background(), run.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	final, _ := f.runs.GetByID(context.Background(), run.ID)
	if final.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", final.Status, final.Error)
	}

	// Дочерний run создан с parent_run_id
	var child *domain.Run
	for _, r := range f.runs.runs {
		if r.ParentRunID == run.ID {
			child = r
		}
	}
	if child == nil {
		t.Fatal("expected child run")
	}
	if child.Status != domain.RunStatusCompleted {
		t.Errorf("child run: expected COMPLETED, got %s", child.Status)
	}

	// Sub-workflow task хранит снимок и выходы дочернего run'а
	var subTask *domain.Task
	for _, task := range f.tasks.byRun(run.ID) {
		if task.NodeID == "sub" {
			subTask = task
		}
	}
	if subTask == nil {
		t.Fatal("expected subworkflow task")
	}
	if len(subTask.Subworkflow) == 0 {
		t.Error("expected definition snapshot on subworkflow task")
	}
	if subTask.SubworkflowOutput["done_inner"] != true {
		t.Errorf("expected child outputs recorded, got %v", subTask.SubworkflowOutput)
	}

	// Tasks дочернего выполнения ссылаются на sub-task через границу runs
	childTasks := f.tasks.byRun(child.ID)
	if len(childTasks) != 1 {
		t.Fatalf("expected 1 child task, got %d", len(childTasks))
	}
	if childTasks[0].ParentTaskID != subTask.ID {
		t.Errorf("child task parent: expected %s, got %s", subTask.ID, childTasks[0].ParentTaskID)
	}
}

func TestCancelRun_Pending(t *testing.T) {
	f := newFixture(t, passNodes(), nil)
	f.workflows.add("S1", "wf", json.RawMessage(chainDef))

	run, _ := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID: "S1",
		RunType:    domain.RunTypeSingle,
	})

	if err := f.orch.CancelRun(context.Background(), run.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	final, _ := f.runs.GetByID(context.Background(), run.ID)
	if final.Status != domain.RunStatusFailed {
		t.Errorf("expected FAILED, got %s", final.Status)
	}
	if final.Error != "cancelled" {
		t.Errorf("expected reason 'cancelled', got %q", final.Error)
	}
}

func TestCancelRun_Active(t *testing.T) {
	started := make(chan struct{})
	nodes := &fakeNodes{fn: func(ctx context.Context, node *engine.NodeDef, _ map[string]any) (map[string]any, error) {
		if node.ID == "b" {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return map[string]any{}, nil
	}}
	f := newFixture(t, nodes, nil)
	f.workflows.add("S1", "wf", json.RawMessage(chainDef))

	run, _ := f.orch.CreateRun(context.Background(), CreateRunParams{
		WorkflowID: "S1",
		RunType:    domain.RunTypeSingle,
	})

	done := make(chan error, 1)
	go func() {
		done <- f.orch.StartRun(context.Background(), run.ID)
	}()

	<-started
	if !f.orch.IsRunActive(run.ID) {
		t.Error("run should be active while executing")
	}
	if err := f.orch.CancelRun(context.Background(), run.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("start returned error: %v", err)
	}

	final, _ := f.runs.GetByID(context.Background(), run.ID)
	if final.Status != domain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", final.Status)
	}
	if final.Error != "cancelled" {
		t.Errorf("expected reason 'cancelled', got %q", final.Error)
	}
	if f.orch.IsRunActive(run.ID) {
		t.Error("run should be removed from active set")
	}

	// Ни один task не остался в PENDING/RUNNING
	for _, task := range f.tasks.byRun(run.ID) {
		if !task.Status.IsTerminal() {
			t.Errorf("task %s left in %s", task.ID, task.Status)
		}
	}
}

func TestCancelRun_NotFound(t *testing.T) {
	f := newFixture(t, passNodes(), nil)

	err := f.orch.CancelRun(context.Background(), "R404")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
