package apierr

import (
	"errors"
	"fmt"
	"net/http"

	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
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

// StatusFor maps a chat error code to its HTTP status.
func StatusFor(code domainchat.ErrorCode) int {
	switch code {
	case domainchat.CodeNotFound:
		return http.StatusNotFound
	case domainchat.CodeValidation:
		return http.StatusUnprocessableEntity
	case domainchat.CodeForbidden:
		return http.StatusForbidden
	case domainchat.CodeInvalidState:
		return http.StatusConflict
	case domainchat.CodeTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// From classifies err. Storage failures keep their cause out of the public
// message; fallbackCode names anything that was never classified.
func From(err error, fallbackCode string) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var ce *domainchat.Error
	if !errors.As(err, &ce) {
		return New(http.StatusInternalServerError, fallbackCode, errors.New("internal error"))
	}
	status := StatusFor(ce.Code)
	msg := ce.Message
	if msg == "" || ce.Code == domainchat.CodeStorage {
		msg = http.StatusText(status)
	}
	return New(status, string(ce.Code), errors.New(msg))
}
