package weaviate

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
)

// IsTransient reports whether a storage error is worth retrying: connectivity
// failures, timeouts, throttling, and server-side errors. Schema and
// validation rejections (other 4xx) are permanent and surface immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var clientErr *fault.WeaviateClientError
	if errors.As(err, &clientErr) {
		switch {
		case clientErr.StatusCode == 0: // request never reached the server
			return true
		case clientErr.StatusCode == 429:
			return true
		case clientErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
