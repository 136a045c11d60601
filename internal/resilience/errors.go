package resilience

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

// TransientError marks a failure of a remote road or geocoding service that
// is worth retrying. StatusCode is 0 when the failure was not an HTTP status.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError marks err as retryable.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// OverpassRemark turns the remark of an Overpass response into an error.
// Overpass answers 200 with a "runtime error" remark when a query times out
// or runs out of memory; those are transient, other runtime errors are not.
// A remark without a runtime error yields nil.
func OverpassRemark(remark string) error {
	if !strings.Contains(remark, "runtime error") {
		return nil
	}
	err := eris.Errorf("overpass: %s", strings.TrimSpace(remark))
	lower := strings.ToLower(remark)
	if strings.Contains(lower, "timed out") || strings.Contains(lower, "out of memory") {
		return NewTransientError(err, 0)
	}
	return err
}

var transientErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.EPIPE,
}

// Messages of errors that lost their type on the way up from net/http.
var transientMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient reports whether err, or anything it wraps, is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.As(err, new(*TransientError)) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientMessages {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

var transientStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsTransientHTTPStatus reports whether an HTTP status is worth retrying.
// Overpass uses 429 when its slots are taken and 504 when it is overloaded.
func IsTransientHTTPStatus(statusCode int) bool {
	return transientStatuses[statusCode]
}
