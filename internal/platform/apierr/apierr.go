// Package apierr pairs an HTTP status and a machine-readable code with an
// underlying error, so the catalog handlers can map boundary and service
// failures onto the response envelope without string matching.
package apierr

import "fmt"

// Error is the transport-facing error shape. Code is the stable identifier
// exposed in the error envelope (VALIDATION_FAILED, NOT_FOUND, ...), Err the
// wrapped cause whose message becomes the envelope text.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err for the HTTP layer with the given status and code.
func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}
