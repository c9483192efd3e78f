package domain

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// isTimeoutError recognises a context deadline exceeded or a net.Error
// that reports itself as timed out.
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "i/o timeout")
}

// isConnectionError is adapted from olla's RetryHandler.IsConnectionError:
// it recognises refused/reset/aborted connections by syscall errno first,
// then falls back to a substring scan over the error text for wrapped
// errors that lose their typed errno (DNS resolution failures in
// particular surface this way).
func isConnectionError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED:
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range connectionErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

var connectionErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"no route to host",
	"dial tcp",
	"eof",
}
