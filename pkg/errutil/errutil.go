package errutil

import (
	"errors"
	"net/http"
)

type HttpError struct {
	code int
	err  error
}

func (e *HttpError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *HttpError) Unwrap() error {
	return e.err
}

func (e *HttpError) Code() int {
	return e.code
}

func ValidationError(err error) error {
	return &HttpError{code: http.StatusBadRequest, err: err}
}

func BadRequestError(err error) error {
	return &HttpError{code: http.StatusBadRequest, err: err}
}

func NotFoundError(err error) error {
	return &HttpError{code: http.StatusNotFound, err: err}
}

func ConflictError(err error) error {
	return &HttpError{code: http.StatusConflict, err: err}
}

// ParseHttpError maps an error to an HTTP status code and message.
// Unrecognized errors become 500s.
func ParseHttpError(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}

	httpErr := new(HttpError)
	if errors.As(err, &httpErr) {
		return httpErr.Code(), httpErr.Error()
	}

	return http.StatusInternalServerError, err.Error()
}
