package download

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrConnectionTimeout means attempts kept timing out even at the minimum
// concurrency, so the remote is treated as unreachable.
var ErrConnectionTimeout = errors.New("connection timed out")

// errChunkTimeout marks an attempt whose request or body read stalled longer
// than the chunk timeout.
var errChunkTimeout = errors.New("chunk read timed out")

// StatusError is returned for a response outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsConnectivity reports whether err means the network could not be reached,
// as opposed to the server answering with something unusable.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnectionTimeout) || isConnectFailure(err)
}

// isRetryable reports whether an attempt failing with err should go back on
// the queue.
func isRetryable(err error) bool {
	return errors.Is(err, errChunkTimeout) || isConnectFailure(err)
}

func isConnectFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
