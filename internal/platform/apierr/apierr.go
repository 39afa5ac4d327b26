package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error pairs an HTTP status and a stable machine code with the cause.
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

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// From finds an *Error in err's chain. Anything else becomes a 500 with
// code "internal".
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		if ae.Status == 0 {
			return &Error{Status: http.StatusInternalServerError, Code: ae.Code, Err: ae.Err}
		}
		return ae
	}
	return &Error{Status: http.StatusInternalServerError, Code: "internal", Err: err}
}
