package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the error shape every gateway layer returns; handlers render it verbatim.
type Error struct {
	Status    int
	Code      string
	Retryable bool
	Detail    string
	Err       error
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

func (e *Error) WithDetail(detail string) *Error {
	if e == nil {
		return nil
	}
	e.Detail = detail
	return e
}

func (e *Error) AsRetryable() *Error {
	if e == nil {
		return nil
	}
	e.Retryable = true
	return e
}

func NotFound(code string, err error) *Error {
	return New(http.StatusNotFound, code, err)
}

func Conflict(code string, err error) *Error {
	return New(http.StatusConflict, code, err)
}

func TooLarge(code string, err error) *Error {
	return New(http.StatusRequestEntityTooLarge, code, err)
}

func Unprocessable(code string, err error) *Error {
	return New(http.StatusUnprocessableEntity, code, err)
}

func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "internal_error", Retryable: true, Err: err}
}

// From unwraps err into an *Error, mapping anything unknown to a retryable 500.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}
