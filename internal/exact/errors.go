package exact

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

var (
	// ErrReauthRequired is terminal: the upstream rejected the refresh
	// credential itself and the user must go through the provider's consent
	// flow again. Callers must not retry.
	ErrReauthRequired = errors.New("exact: upstream authorization expired, re-authentication required")

	// ErrCircuitOpen reports that calls to the endpoint are currently blocked.
	ErrCircuitOpen = errors.New("exact: circuit open")
)

// isTransientNetErr reports whether a network-level failure is worth retrying.
// Only a curated set of causes qualifies: connection reset, connection
// refused, and timeouts. Everything else (DNS misconfiguration, TLS failures)
// is re-raised immediately.
func isTransientNetErr(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	// context deadline exceeded wrapped by net/http carries no typed cause.
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout awaiting response")
}

// isRetryableStatus reports whether an HTTP status warrants another attempt.
func isRetryableStatus(status int) bool {
	return status == 429 || status >= 500
}
