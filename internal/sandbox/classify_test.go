package sandbox

import "testing"

func TestClassifyError(t *testing.T) {
	tests := []struct {
		errText     string
		recoverable bool
		action      Action
	}{
		{"The sandbox was not found", true, ActionRecoverSandbox},
		{"Sandbox not found: abc123", true, ActionRecoverSandbox},
		{"session not found", true, ActionRecoverSandbox},
		{"request Timeout after 30s", true, ActionRecoverSandbox},
		{"ModuleNotFoundError: No module named 'seaborn'", true, ActionAlternativeApproach},
		{"ImportError: cannot import name 'x'", true, ActionAlternativeApproach},
		{"FileNotFoundError: [Errno 2] No such file or directory: 'data.csv'", true, ActionReloadDataset},
		{"file not found: data.csv", true, ActionReloadDataset},
		{"ZeroDivisionError: division by zero", false, ActionNone},
		{"KeyError: 'price'", false, ActionNone},
		{"", false, ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.errText, func(t *testing.T) {
			c := ClassifyError(tt.errText)
			if c.Recoverable != tt.recoverable {
				t.Errorf("Recoverable = %v, want %v", c.Recoverable, tt.recoverable)
			}
			if c.Action != tt.action {
				t.Errorf("Action = %s, want %s", c.Action, tt.action)
			}
			if c.Description == "" && tt.errText != "" {
				t.Error("expected a description")
			}
		})
	}
}

func TestClassifyErrorUnmatchedKeepsText(t *testing.T) {
	c := ClassifyError("ValueError: could not convert string to float")
	if c.Description != "ValueError: could not convert string to float" {
		t.Errorf("Description = %q", c.Description)
	}
}

func TestClassifyErrorTableOrder(t *testing.T) {
	// Matches both the sandbox family (timeout) and the module family; the
	// sandbox row comes first.
	c := ClassifyError("timeout while importing module")
	if c.Action != ActionRecoverSandbox {
		t.Errorf("Action = %s, want %s", c.Action, ActionRecoverSandbox)
	}
}

func TestActionString(t *testing.T) {
	for a, want := range map[Action]string{
		ActionNone:                "none",
		ActionRecoverSandbox:      "recover_sandbox",
		ActionAlternativeApproach: "alternative_approach",
		ActionReloadDataset:       "reload_dataset",
	} {
		if a.String() != want {
			t.Errorf("%d.String() = %q, want %q", a, a.String(), want)
		}
	}
}

func TestLogsString(t *testing.T) {
	l := Logs{Stdout: []string{"a\n", "b"}, Stderr: []string{"warn\n"}}
	if got := l.String(); got != "a\nb\nwarn" {
		t.Errorf("String = %q", got)
	}
	if !(Logs{}).Empty() || l.Empty() {
		t.Error("Empty returned the wrong value")
	}
}

func TestExecutionErrorError(t *testing.T) {
	e := &ExecutionError{Name: "KeyError", Value: "'x'"}
	if e.Error() != "KeyError: 'x'" {
		t.Errorf("Error = %q", e.Error())
	}
	if (&ExecutionError{Name: "StopIteration"}).Error() != "StopIteration" {
		t.Error("bare name not rendered")
	}
}
