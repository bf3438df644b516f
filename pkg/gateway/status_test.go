package gateway

import "testing"

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusQueued, false},
		{StatusPaused, false},
		{StatusPreparing, false},
		{StatusRestoring, false},
		{StatusComplete, true},
		{StatusExpired, true},
		{"SOMETHING_NEW", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestPending(t *testing.T) {
	statuses := []Status{StatusComplete, StatusQueued, StatusExpired, StatusRestoring}
	if got := Pending(statuses); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}
	if got := Pending(nil); got != 0 {
		t.Errorf("Pending(nil) = %d, want 0", got)
	}
}
