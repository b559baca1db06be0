package retry

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gardenpipe/internal/textutil"
)

// errorBodyLimit caps the response text carried in Error, in runes.
const errorBodyLimit = 512

// HTTPError describes a non-2xx response from a hosted API.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
	Delay      time.Duration
}

// NewHTTPError captures the status, a trimmed body, and any Retry-After hint.
func NewHTTPError(op string, resp *http.Response, body []byte) *HTTPError {
	err := &HTTPError{Op: op, Body: strings.TrimSpace(string(body))}
	if resp != nil {
		err.StatusCode = resp.StatusCode
		err.Delay, _ = ParseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return err
}

func (e *HTTPError) Error() string {
	body := textutil.Truncate(e.Body, errorBodyLimit, "...")
	if e.Op == "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, body)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, body)
}

// HTTPStatus implements StatusError.
func (e *HTTPError) HTTPStatus() int { return e.StatusCode }

// RetryAfter implements RetryAfterError.
func (e *HTTPError) RetryAfter() time.Duration { return e.Delay }

// ParseRetryAfter accepts either delta-seconds or an HTTP date.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
