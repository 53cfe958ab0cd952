package models

import "fmt"

// NetworkError reports a REST call that returned a non-success status. The
// operation name identifies which endpoint failed.
type NetworkError struct {
	Op     string
	Status int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: HTTP status is %d", e.Op, e.Status)
}

// MalformedPayloadError wraps a JSON or schema parsing failure on an inbound
// payload. The offending message is dropped; the stream continues.
type MalformedPayloadError struct {
	Kind string
	Err  error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Kind, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}
