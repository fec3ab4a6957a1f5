package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrNetwork     = errors.New("network error")
	ErrDeserialize = errors.New("unexpected response")

	// ErrBodyTooLarge is wrapped in an ErrNetwork failure when a response
	// exceeds the client's MaxBodySize.
	ErrBodyTooLarge = errors.New("response body too large")
)

// ClientError is returned by every Client method. Kind is one of the Err*
// sentinels; Target names the mod or URL involved.
type ClientError struct {
	Kind   error
	Target string
	Err    error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Target, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Target, e.Kind)
}

func (e *ClientError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StatusError carries a non-2xx HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api request failed: status %d", e.Code)
	}
	return fmt.Sprintf("api request failed: status %d, body: %s", e.Code, e.Body)
}
