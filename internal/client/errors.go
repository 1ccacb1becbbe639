package client

import (
	"fmt"
)

const bodySampleLen = 200

// TransportError is a network level failure: refused connection, TLS
// failure, timeout or a cancelled context.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FetchError is an upstream response whose status is not accepted.
type FetchError struct {
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}

func sample(body []byte) string {
	s := string(body)
	if len(s) > bodySampleLen {
		s = s[:bodySampleLen] + "..."
	}
	return s
}
