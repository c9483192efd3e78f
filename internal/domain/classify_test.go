package domain

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
)

type mockTimeoutErr struct{}

func (mockTimeoutErr) Error() string   { return "mock timeout" }
func (mockTimeoutErr) Timeout() bool   { return true }
func (mockTimeoutErr) Temporary() bool { return true }

func TestClassifyErrorContextDeadlineIsTimeout(t *testing.T) {
	if got := ClassifyError(context.DeadlineExceeded); got != FailureTimeout {
		t.Fatalf("got %v", got)
	}
}

func TestClassifyErrorNetTimeoutIsTimeout(t *testing.T) {
	if got := ClassifyError(mockTimeoutErr{}); got != FailureTimeout {
		t.Fatalf("got %v", got)
	}
}

func TestClassifyErrorConnectionRefusedIsConnectionError(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
	if got := ClassifyError(err); got != FailureConnection {
		t.Fatalf("got %v", got)
	}
}

func TestClassifyErrorDNSIsConnectionError(t *testing.T) {
	err := &net.DNSError{Err: "no such host", Name: "nowhere.invalid"}
	if got := ClassifyError(err); got != FailureConnection {
		t.Fatalf("got %v", got)
	}
}

func TestClassifyErrorFallsBackToRequestError(t *testing.T) {
	err := errors.New("something else entirely")
	if got := ClassifyError(err); got != FailureRequest {
		t.Fatalf("got %v", got)
	}
}
