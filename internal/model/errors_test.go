package model

import (
	"errors"
	"testing"
)

func TestRemoteError(t *testing.T) {
	innerErr := errors.New("connection refused")
	err := &RemoteError{Operation: "openreq train", Err: innerErr}

	expected := "openreq train failed: connection refused"
	if err.Error() != expected {
		t.Errorf("RemoteError.Error() = %q, want %q", err.Error(), expected)
	}

	if !errors.Is(err, innerErr) {
		t.Error("errors.Is should find the inner error")
	}
}

func TestRemote(t *testing.T) {
	if err := Remote("noop", nil); err != nil {
		t.Errorf("Remote(nil) = %v, want nil", err)
	}

	err := Remote("list issues", errors.New("502"))
	if !IsRemote(err) {
		t.Error("IsRemote() = false, want true")
	}

	wrapped := errors.Join(errors.New("context"), err)
	if !IsRemote(wrapped) {
		t.Error("IsRemote() should see through wrapping")
	}

	if IsRemote(ErrNotFound) {
		t.Error("IsRemote(ErrNotFound) = true, want false")
	}
}

func TestRunStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   RunStatus
		expected bool
	}{
		{RunQueued, false},
		{RunRunning, false},
		{RunSucceeded, true},
		{RunFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.expected {
				t.Errorf("RunStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.expected)
			}
		})
	}
}
