package collector

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ClientError is returned for failed requests. StatusCode is zero when the
// request never got a response.
type ClientError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
	Err        error
}

func (e *ClientError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// ShouldFail reports whether a response status is a failure. The service
// answers 203 with a sign-in page when credentials are rejected.
func ShouldFail(status int) bool {
	return status < 200 || status > 299 || status == http.StatusNonAuthoritativeInfo
}

func statusOf(err error) int {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	return 0
}

func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

func IsUnauthorized(err error) bool {
	s := statusOf(err)
	return s == http.StatusUnauthorized || s == http.StatusNonAuthoritativeInfo
}

// IsPermissionDenied matches the 404 the service returns for repositories
// that are gone or hidden from the caller (TF401019).
func IsPermissionDenied(err error) bool {
	var ce *ClientError
	if !errors.As(err, &ce) || ce.StatusCode != http.StatusNotFound {
		return false
	}
	return strings.Contains(ce.Body, "TF401019") ||
		strings.Contains(ce.Body, "does not exist or you do not have permissions")
}
