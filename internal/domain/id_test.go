package domain

import "testing"

func TestFormatID(t *testing.T) {
	tests := []struct {
		kind    Kind
		counter int64
		want    string
	}{
		{KindWorkflow, 1, "S1"},
		{KindWorkflowVersion, 12, "SV12"},
		{KindDataset, 3, "DS3"},
		{KindEvalRun, 7, "ER7"},
		{KindOutputFile, 2, "OF2"},
		{KindRun, 340, "R340"},
		{KindTask, 9000, "T9000"},
	}

	for _, tt := range tests {
		if got := FormatID(tt.kind, tt.counter); got != tt.want {
			t.Errorf("FormatID(%s, %d) = %q, want %q", tt.kind, tt.counter, got, tt.want)
		}
	}
}

func TestParseID_RoundTrip(t *testing.T) {
	for kind := range kindPrefixes {
		id := FormatID(kind, 42)
		k, counter, err := ParseID(id)
		if err != nil {
			t.Errorf("ParseID(%q): %v", id, err)
			continue
		}
		if k != kind || counter != 42 {
			t.Errorf("ParseID(%q) = (%s, %d), want (%s, 42)", id, k, counter, kind)
		}
	}
}

func TestParseID_LongestPrefixWins(t *testing.T) {
	// "SV12" — workflow version, не workflow "S" со счётчиком "V12"
	k, counter, err := ParseID("SV12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k != KindWorkflowVersion || counter != 12 {
		t.Errorf("ParseID(SV12) = (%s, %d), want (workflow_version, 12)", k, counter)
	}
}

func TestParseID_Malformed(t *testing.T) {
	for _, id := range []string{
		"",
		"S",     // нет счётчика
		"S0",    // счётчики начинаются с 1
		"S-1",   // отрицательный счётчик
		"SV",    // нет счётчика
		"X42",   // неизвестный префикс
		"R12x",  // мусор после счётчика
		"12",    // нет префикса
		"run-1", // не наш формат
	} {
		if _, _, err := ParseID(id); err == nil {
			t.Errorf("ParseID(%q): expected error", id)
		}
	}
}

func TestIsID(t *testing.T) {
	if !IsID("R17", KindRun) {
		t.Error("R17 must be a run id")
	}
	if IsID("R17", KindTask) {
		t.Error("R17 is not a task id")
	}
	if IsID("garbage", KindRun) {
		t.Error("garbage is not a run id")
	}
}

func TestKindValid(t *testing.T) {
	if !KindWorkflow.Valid() {
		t.Error("workflow kind must be valid")
	}
	if Kind("pipeline").Valid() {
		t.Error("unknown kind must be invalid")
	}
}
