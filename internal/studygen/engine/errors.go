package engine

import (
	"errors"
	"fmt"
)

// ErrEmptyContent is returned when a 2xx reply carries no populated content
// field for the endpoint's envelope.
var ErrEmptyContent = errors.New("engine: empty upstream content")

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "upstream http error"
	}
	if e.Body == "" {
		return fmt.Sprintf("upstream http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("upstream http error: status=%d body=%s", e.StatusCode, e.Body)
}

// Retryable reports whether a failed call is worth another attempt against
// the same endpoint. Client errors other than 408 and 429 are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		switch {
		case he.StatusCode == 408, he.StatusCode == 429:
			return true
		case he.StatusCode >= 400 && he.StatusCode < 500:
			return false
		}
	}
	return true
}
