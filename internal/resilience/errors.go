// Package resilience provides retry and circuit breaker support for the
// external lookup services the enrichment stages call.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Transient wraps an error that is safe to retry, optionally carrying the
// HTTP status that produced it.
type Transient struct {
	Err    error
	Status int
}

func (t *Transient) Error() string { return t.Err.Error() }

func (t *Transient) Unwrap() error { return t.Err }

// MarkTransient flags an error as retryable. Lookup adapters call this for
// rate limits and server-side failures.
func MarkTransient(err error, status int) *Transient {
	return &Transient{Err: err, Status: status}
}

// RetryableStatus reports whether an HTTP status indicates a failure worth
// retrying.
func RetryableStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// IsTransient reports whether an error chain contains a Transient marker or
// matches a known recoverable network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var t *Transient
	if errors.As(err, &t) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped client errors lose their type; fall back to message matching.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
