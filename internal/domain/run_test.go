package domain

import "testing"

func TestParseRunStatus(t *testing.T) {
	tests := []struct {
		in   string
		want RunStatus
		ok   bool
	}{
		{in: "COMPLETE", want: RunStatusComplete, ok: true},
		{in: " running ", want: RunStatusRunning, ok: true},
		{in: "CANCELED", want: RunStatusAborted, ok: true},
		{in: "", want: RunStatusUnknown, ok: true},
		{in: "EXPLODED", ok: false},
	}
	for _, tc := range tests {
		got, ok := ParseRunStatus(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseRunStatus(%q) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRunStatusClassification(t *testing.T) {
	for _, status := range TerminalRunStatuses() {
		if !status.IsTerminal() {
			t.Fatalf("expected %s terminal", status)
		}
	}
	if RunStatusRunning.IsTerminal() || RunStatusQueued.IsTerminal() {
		t.Fatalf("expected in-flight statuses to be non-terminal")
	}
	if !RunStatusSystemError.InErrorState() || !RunStatusExecutorError.InErrorState() {
		t.Fatalf("expected error statuses in error state")
	}
	if RunStatusAborted.InErrorState() || RunStatusComplete.InErrorState() {
		t.Fatalf("expected aborted and complete outside error state")
	}
}
