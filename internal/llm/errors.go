package llm

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse means the provider answered but the content was blank.
// Callers treat it like any other model failure and fall back.
var ErrEmptyResponse = errors.New("model returned an empty response")

// TransportError is a failure to get a 2xx answer from the provider.
// Network errors, timeouts, 429 and 5xx are Retryable; other statuses are not.
type TransportError struct {
	Model     string
	Status    int // 0 when no response arrived
	Retryable bool
	Body      string
	Err       error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("calling %s: %v", e.Model, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s returned HTTP %d: %s", e.Model, e.Status, e.Body)
	}
	return fmt.Sprintf("%s returned HTTP %d", e.Model, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError is a 2xx answer that does not carry a completion.
type MalformedResponseError struct {
	Model  string
	Reason string
	Body   string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %s", e.Model, e.Reason)
}

func retryableStatus(status int) bool {
	return status == 429 || status >= 500
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
