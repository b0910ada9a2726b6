package bowl

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures surfaced by the bowl lifecycle core.
type ErrorCode string

const (
	// CodeEmptyInput indicates blank scan or manifest input.
	CodeEmptyInput ErrorCode = "EMPTY_INPUT"

	// CodeInvalidCode indicates scanner input that is not a bowl code.
	CodeInvalidCode ErrorCode = "INVALID_CODE"

	// CodeUnknownMode indicates a scan without a kitchen/return mode.
	CodeUnknownMode ErrorCode = "UNKNOWN_MODE"

	// CodeNotPrepared indicates a return scan for a code that is neither
	// Prepared nor Active.
	CodeNotPrepared ErrorCode = "NOT_PREPARED"

	// CodeRemoteUnavailable indicates a failed remote read or write.
	CodeRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"

	// CodeManifestParse indicates a manifest that is not valid JSON.
	CodeManifestParse ErrorCode = "MANIFEST_PARSE_ERROR"

	// CodeNoCodesFound indicates a manifest without a single acceptable code.
	CodeNoCodesFound ErrorCode = "NO_CODES_FOUND"
)

// Sentinels for errors.Is. Matching compares codes only, so a detailed error
// built with NewError matches the sentinel of the same code.
var (
	ErrEmptyInput        = &Error{Code: CodeEmptyInput, Message: "empty input"}
	ErrInvalidCode       = &Error{Code: CodeInvalidCode, Message: "invalid bowl code"}
	ErrUnknownMode       = &Error{Code: CodeUnknownMode, Message: "operation mode not selected"}
	ErrNotPrepared       = &Error{Code: CodeNotPrepared, Message: "bowl not prepared"}
	ErrRemoteUnavailable = &Error{Code: CodeRemoteUnavailable, Message: "remote store unavailable"}
	ErrManifestParse     = &Error{Code: CodeManifestParse, Message: "invalid manifest JSON"}
	ErrNoCodesFound      = &Error{Code: CodeNoCodesFound, Message: "no bowl codes found"}
)

// Error is the structured error carried by every rejected operation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Subject is the code or input the error refers to, if any.
	Subject string

	// Err is the underlying cause (transport error, JSON syntax error).
	Err error
}

// NewError creates an Error for code with a formatted message.
func NewError(code ErrorCode, subject string, format string, args ...any) *Error {
	return &Error{Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error for code that wraps cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Subject != "" {
		msg += fmt.Sprintf(" (%s)", e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the ErrorCode from err, or "" if err carries none.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// SeverityOf maps an error to the severity shown to operators.
// A failed push is a degraded-sync warning; everything else is an error.
func SeverityOf(err error) Severity {
	if err == nil {
		return SeveritySuccess
	}
	if CodeOf(err) == CodeRemoteUnavailable {
		return SeverityWarning
	}
	return SeverityError
}
