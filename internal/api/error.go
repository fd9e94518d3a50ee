package api

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind classifies a request failure for notification and retry policy.
// Only KindAuth is transiently recoverable (one refresh-and-replay);
// every other kind is reported once and returned to the caller.
type Kind int

const (
	// KindTransport is a network failure with no HTTP status.
	KindTransport Kind = iota
	// KindTimeout is a transport-level timeout.
	KindTimeout
	// KindAuth is HTTP 401.
	KindAuth
	// KindForbidden is HTTP 403.
	KindForbidden
	// KindBadRequest is HTTP 400 and other non-404 4xx.
	KindBadRequest
	// KindNotFound is HTTP 404.
	KindNotFound
	// KindRateLimited is HTTP 429.
	KindRateLimited
	// KindServer is HTTP 5xx.
	KindServer
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error represents a non-2xx response from the backend.
type Error struct {
	StatusCode int
	Detail     string
}

// Error returns a formatted error string including status and detail.
func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
}

// Kind maps the HTTP status to a failure kind.
func (e *Error) Kind() Kind {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return KindAuth
	case e.StatusCode == http.StatusForbidden:
		return KindForbidden
	case e.StatusCode == http.StatusNotFound:
		return KindNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case e.StatusCode >= 500:
		return KindServer
	default:
		return KindBadRequest
	}
}

// ParseError reads up to 4KB from the response body and returns an *Error.
// The detail message is extracted leniently: backends disagree on whether
// the field is called detail, message, or error.
func ParseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &Error{StatusCode: resp.StatusCode, Detail: errorDetail(resp.StatusCode, body)}
}

func errorDetail(status int, body []byte) string {
	for _, path := range []string{"detail", "message", "error.message", "error"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && !strings.HasPrefix(s, "{") {
		return s
	}
	return http.StatusText(status)
}

// Classify returns the failure kind for any error produced by the client.
// Non-*Error values are transport failures; timeouts are distinguished so
// the user understands it is a connectivity issue, not a server rejection.
func Classify(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindTransport
}
