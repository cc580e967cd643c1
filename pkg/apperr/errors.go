package apperr

import (
	"errors"
	"fmt"
)

type Error struct {
	Kind    Kind   `json:"kind"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op, message string, cause error) error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

func Auth(op, msg string) error          { return New(KindAuth, op, msg) }
func Validation(op, msg string) error    { return New(KindValidation, op, msg) }
func Authorization(op, msg string) error { return New(KindAuthorization, op, msg) }
func NotFound(op, msg string) error      { return New(KindNotFound, op, msg) }
func Conflict(op, msg string) error      { return New(KindConflict, op, msg) }

func Persistence(op string, cause error) error {
	return Wrap(KindPersistence, op, "storage unavailable", cause)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-safe message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
