package domain

import (
	"strings"
	"testing"
)

func TestRunStatusTransitions(t *testing.T) {
	tests := []struct {
		from RunStatus
		to   RunStatus
		ok   bool
	}{
		{RunStatusPending, RunStatusRunning, true},
		{RunStatusPending, RunStatusFailed, true}, // отмена до запуска
		{RunStatusPending, RunStatusCompleted, false},
		{RunStatusRunning, RunStatusCompleted, true},
		{RunStatusRunning, RunStatusFailed, true},
		{RunStatusRunning, RunStatusPending, false},
		{RunStatusCompleted, RunStatusFailed, false},
		{RunStatusCompleted, RunStatusRunning, false},
		{RunStatusFailed, RunStatusRunning, false},
		{RunStatusFailed, RunStatusCompleted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.ok {
			t.Errorf("%s → %s: expected %v", tt.from, tt.to, tt.ok)
		}
	}
}

func TestRunStatusIsTerminal(t *testing.T) {
	if RunStatusPending.IsTerminal() || RunStatusRunning.IsTerminal() {
		t.Error("PENDING and RUNNING are not terminal")
	}
	if !RunStatusCompleted.IsTerminal() || !RunStatusFailed.IsTerminal() {
		t.Error("COMPLETED and FAILED are terminal")
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	// Пропуск task'а из-за упавшей зависимости: PENDING → FAILED
	if !TaskStatusPending.CanTransitionTo(TaskStatusFailed) {
		t.Error("skipped task must go PENDING → FAILED")
	}
	if TaskStatusPending.CanTransitionTo(TaskStatusCompleted) {
		t.Error("task cannot complete without running")
	}
	if !TaskStatusRunning.CanTransitionTo(TaskStatusCompleted) {
		t.Error("RUNNING → COMPLETED must be allowed")
	}
	if TaskStatusCompleted.CanTransitionTo(TaskStatusFailed) {
		t.Error("terminal task status is immutable")
	}
}

func TestEvalRunStatusTransitions(t *testing.T) {
	// Сбой семплирования: PENDING → FAILED без RUNNING
	if !EvalRunStatusPending.CanTransitionTo(EvalRunStatusFailed) {
		t.Error("eval run must fail directly from PENDING")
	}
	if EvalRunStatusPending.CanTransitionTo(EvalRunStatusCompleted) {
		t.Error("eval run cannot complete without running")
	}
	if !EvalRunStatusRunning.CanTransitionTo(EvalRunStatusCompleted) {
		t.Error("RUNNING → COMPLETED must be allowed")
	}
	if EvalRunStatusFailed.CanTransitionTo(EvalRunStatusRunning) {
		t.Error("terminal eval status is immutable")
	}
}

func TestStateTransitionError(t *testing.T) {
	err := &StateTransitionError{Entity: "run", ID: "R5", From: "COMPLETED", To: "RUNNING"}
	msg := err.Error()
	for _, part := range []string{"run", "R5", "COMPLETED", "RUNNING"} {
		if !strings.Contains(msg, part) {
			t.Errorf("error message %q should mention %q", msg, part)
		}
	}
}
