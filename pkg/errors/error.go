// Package errors is the coded error type shared by every layer. Handlers turn
// an *Error into an HTTP status and envelope; anything else becomes a 500.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

type Error struct {
	Code ErrorCode
	// Message is safe to show to clients.
	Message string
	Details map[string]interface{}
	// Err is the wrapped cause, logged but never returned to clients.
	Err error
	// Stack is captured when a cause is wrapped.
	Stack string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error { return e.Err }

func New(code ErrorCode) *Error {
	return &Error{Code: code, Message: code.Message()}
}

func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code to err. When err already carries an *Error, that error
// is recoded in place and its message and details are kept.
func Wrap(err error, code ErrorCode) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		e.Code = code
		return e
	}
	return &Error{Code: code, Message: err.Error(), Err: err, Stack: callers(3)}
}

// Wrapf wraps err under a new client message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err, Stack: callers(3)}
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetCode finds the code in err's chain. Nil is Success and uncoded errors
// are InternalServerError.
func GetCode(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalServerError
}

// GetError returns the *Error in err's chain, wrapping anything else as an
// internal error.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return &Error{Code: InternalServerError, Message: InternalServerError.Message(), Err: err, Stack: callers(3)}
}

func Is(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

func BadRequest(msg string) *Error {
	return New(InvalidParams).WithMessage(msg)
}

func NotFoundError(resource string) *Error {
	return Newf(NotFound, "%s not found", resource)
}

func ForbiddenError(msg string) *Error {
	e := New(Forbidden)
	if msg != "" {
		e.Message = msg
	}
	return e
}

func InternalError(err error) *Error {
	if err == nil {
		return New(InternalServerError)
	}
	return Wrap(err, InternalServerError)
}

// ValidationError reports which request field was rejected and why.
func ValidationError(field, reason string) *Error {
	return New(ValidationFailed).WithDetail("field", field).WithDetail("reason", reason)
}

// callers renders up to eight frames above skip, leaving out the runtime.
func callers(skip int) string {
	var pcs [8]uintptr
	n := runtime.Callers(skip, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		f, more := frames.Next()
		if f.Function != "" && !strings.HasPrefix(f.Function, "runtime.") {
			fmt.Fprintf(&b, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return b.String()
}
