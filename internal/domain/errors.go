package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrTransport     = errors.New("transport failure")
	ErrAPI           = errors.New("api error")
	ErrParse         = errors.New("parse error")
	ErrAuth          = errors.New("authorization denied")
	ErrResolution    = errors.New("resolution failed")
	ErrPlayback      = errors.New("playback failed")
	ErrNotFound      = errors.New("not found")
)

// Error carries a failure kind together with the operation that failed and,
// for HTTP failures, the upstream status and body.
type Error struct {
	Kind   error
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = msg + ": " + e.Body
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewError(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// StatusOf returns the HTTP status recorded anywhere in err's chain, or 0.
func StatusOf(err error) int {
	var derr *Error
	for err != nil {
		if !errors.As(err, &derr) {
			return 0
		}
		if derr.Status > 0 {
			return derr.Status
		}
		err = derr.Err
	}
	return 0
}
