package errors

import (
	"errors"
)

type Code string

const (
	CodeInvalidCredentials   Code = "invalid_credentials"
	CodeInvalidToken         Code = "invalid_token"
	CodeUnauthenticated      Code = "unauthenticated"
	CodeUnknownAuthenticator Code = "unknown_authenticator"
	CodeOperationInProgress  Code = "operation_in_progress"
	CodeRestoreFailed        Code = "restore_failed"
	CodeInvalidConfig        Code = "invalid_config"
)

const (
	CodeUnknown            Code = "unknown"
	CodeStorageUnavailable Code = "storage_unavailable"
	CodeNotImplemented     Code = "not_implemented"
)

var (
	ErrMissingStore         = New(CodeInvalidConfig, "simpleauth: store is required")
	ErrNilAuthenticator     = New(CodeInvalidConfig, "simpleauth: authenticator is required")
	ErrOperationInProgress  = New(CodeOperationInProgress, "simpleauth: another authenticate or invalidate call is in flight")
	ErrUnknownAuthenticator = New(CodeUnknownAuthenticator, "simpleauth: authenticator factory is not registered")
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	if e.Message != "" && e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}

	if e.Message != "" {
		return e.Message
	}

	if e.Err != nil {
		return e.Err.Error()
	}

	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsCode(err error, code Code) bool {
	var typed *Error
	if !errors.As(err, &typed) {
		return false
	}
	return typed.Code == code
}

func IsInternalCode(err error) bool {
	return IsCode(err, CodeUnknown) || IsCode(err, CodeStorageUnavailable) || IsCode(err, CodeNotImplemented)
}
