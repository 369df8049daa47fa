package chat

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies chat failures so transports can map them without string matching.
type ErrorCode string

const (
	CodeNotFound     ErrorCode = "not_found"
	CodeValidation   ErrorCode = "validation"
	CodeInvalidState ErrorCode = "invalid_state"
	CodeForbidden    ErrorCode = "forbidden"
	CodeStorage      ErrorCode = "storage"
	CodeTransport    ErrorCode = "transport"
)

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap keeps an existing classification when err already carries one.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return NewError(code, op, err.Error(), err)
}

func IsCode(err error, code ErrorCode) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == code
}

// CodeOf returns "" for errors that were never classified.
func CodeOf(err error) ErrorCode {
	var ce *Error
	if !errors.As(err, &ce) {
		return ""
	}
	return ce.Code
}

func NotFound(op, message string) error { return NewError(CodeNotFound, op, message, nil) }

func Validation(op, message string) error { return NewError(CodeValidation, op, message, nil) }

func InvalidState(op, message string) error { return NewError(CodeInvalidState, op, message, nil) }

func Forbidden(op, message string) error { return NewError(CodeForbidden, op, message, nil) }
