package errs

import (
	"errors"
	"fmt"
)

// Code is the wire value carried by the outbound `error` event.
type Code string

const (
	CodeNotAuthenticated    Code = "NOT_AUTHENTICATED"
	CodeInvalidPayload      Code = "INVALID_PAYLOAD"
	CodeInvalidMessage      Code = "INVALID_MESSAGE"
	CodeReplyTargetNotFound Code = "REPLY_TARGET_NOT_FOUND"
	CodeUsernameRequired    Code = "USERNAME_REQUIRED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeEditWindowExpired   Code = "EDIT_WINDOW_EXPIRED"
	CodeMessageNotFound     Code = "MESSAGE_NOT_FOUND"
	CodeMessageFailed       Code = "MESSAGE_FAILED"
	CodeReactionFailed      Code = "REACTION_FAILED"
	CodeInternal            Code = "INTERNAL"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so callers can compare against the
// sentinels below regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotAuthenticated    = &Error{Code: CodeNotAuthenticated, Message: "join before sending events"}
	ErrInvalidPayload      = &Error{Code: CodeInvalidPayload, Message: "malformed event"}
	ErrInvalidMessage      = &Error{Code: CodeInvalidMessage, Message: "message needs content or an attachment"}
	ErrReplyTargetNotFound = &Error{Code: CodeReplyTargetNotFound, Message: "reply target does not exist"}
	ErrUsernameRequired    = &Error{Code: CodeUsernameRequired, Message: "set a display name first"}
	ErrForbidden           = &Error{Code: CodeForbidden, Message: "not allowed"}
	ErrEditWindowExpired   = &Error{Code: CodeEditWindowExpired, Message: "edit window has expired"}
	ErrMessageNotFound     = &Error{Code: CodeMessageNotFound, Message: "message not found"}
	ErrMessageFailed       = &Error{Code: CodeMessageFailed, Message: "message could not be processed"}
	ErrReactionFailed      = &Error{Code: CodeReactionFailed, Message: "reaction could not be processed"}
)

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches cause to a copy of the sentinel so the original stays immutable.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Err: cause}
}

// Withf returns a copy of the sentinel with a more specific message.
func Withf(sentinel *Error, format string, args ...any) *Error {
	return &Error{Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf reports the wire code for err. Anything outside the taxonomy is INTERNAL.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the client-safe text for err. Causes are never exposed.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
