package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to clients. Clients only ever see the code and a message.
const (
	CodeMissingField        = "missing_field"
	CodeTypeMismatch        = "type_mismatch"
	CodeInvalidAmount       = "invalid_amount"
	CodeInvalidRequest      = "invalid_request"
	CodeDuplicateEmail      = "duplicate_email"
	CodeBadCredentials      = "bad_credentials"
	CodeTokenMissing        = "token_missing"
	CodeInvalidToken        = "invalid_token"
	CodeTokenExpired        = "token_expired"
	CodeRevoked             = "revoked"
	CodeInsufficientBalance = "insufficient_balance"
	CodeForbidden           = "forbidden"
	CodeNotFound            = "not_found"

	CodeUpstreamTimeout     = "upstream_timeout"
	CodeUpstreamRateLimited = "upstream_rate_limited"
	CodeUpstreamError       = "upstream_error"

	CodeDatabaseError   = "database_error"
	CodeFilesystemError = "filesystem_error"
	CodeUnexpected      = "unexpected_error"
)

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

// Newf builds an Error with a formatted message.
func Newf(status int, code string, format string, args ...any) *Error {
	return &Error{Status: status, Code: code, Err: fmt.Errorf(format, args...)}
}

func BadRequest(code string, err error) *Error   { return New(http.StatusBadRequest, code, err) }
func Unauthorized(code string, err error) *Error { return New(http.StatusUnauthorized, code, err) }
func NotFound(err error) *Error                  { return New(http.StatusNotFound, CodeNotFound, err) }
func Database(err error) *Error                  { return New(http.StatusInternalServerError, CodeDatabaseError, err) }
func Filesystem(err error) *Error                { return New(http.StatusInternalServerError, CodeFilesystemError, err) }

// From returns the *Error inside err, or wraps err as an unexpected 500.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return New(http.StatusInternalServerError, CodeUnexpected, err)
}

// CodeOf reports the code carried by err, or "" when err carries none.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Public is the message shown to clients. Internal errors never leak their cause.
func (e *Error) Public() string {
	if e == nil {
		return ""
	}
	if e.Status >= 500 && e.Code != CodeUpstreamError && e.Code != CodeUpstreamTimeout && e.Code != CodeUpstreamRateLimited {
		return http.StatusText(e.Status)
	}
	return e.Error()
}
