package mail

import (
	"errors"
	"fmt"
)

// ErrorCode classifies mail errors.
type ErrorCode string

const (
	CodeConfig         ErrorCode = "config"
	CodeConnection     ErrorCode = "connection"
	CodeJobValidation  ErrorCode = "job_validation"
	CodeAttachmentRead ErrorCode = "attachment_read"
	CodeTransmission   ErrorCode = "transmission"
)

// ErrSessionClosed is returned when sending through a closed session.
var ErrSessionClosed = errors.New("session is closed")

// Error wraps a failure of a batch step.
type Error struct {
	Code    ErrorCode
	Message string
	Label   string // batch label, empty for batch-wide errors
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("mail.%s: %s", e.Code, e.Message)
	if e.Label != "" {
		msg = fmt.Sprintf("%s (label=%s)", msg, e.Label)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var mailErr *Error
	if errors.As(err, &mailErr) {
		return mailErr.Code, true
	}
	return "", false
}

func hasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return hasCode(err, CodeConfig) }

// IsConnection reports whether err happened while opening a session.
func IsConnection(err error) bool { return hasCode(err, CodeConnection) }

// IsJobValidation reports whether err is an incomplete job error.
func IsJobValidation(err error) bool { return hasCode(err, CodeJobValidation) }

// IsAttachmentRead reports whether err happened while reading an attachment.
func IsAttachmentRead(err error) bool { return hasCode(err, CodeAttachmentRead) }

// IsTransmission reports whether err happened while sending a message.
func IsTransmission(err error) bool { return hasCode(err, CodeTransmission) }
