// Package errors is the node's error type. Every failure carries a category
// code, the operation that failed and a short stack, so a failed job can be
// logged with the stage and call site that produced it.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"runtime"
	"strings"
)

type Code string

const (
	CodeInternal    Code = "INTERNAL_ERROR"
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeNotFound    Code = "NOT_FOUND"
	CodeTimeout     Code = "TIMEOUT"
	CodeUnavailable Code = "UNAVAILABLE"

	// Job pipeline.
	CodeQueue     Code = "QUEUE_ERROR"
	CodeStorage   Code = "STORAGE_ERROR"
	CodeRender    Code = "RENDER_ERROR"
	CodeParse     Code = "PARSE_ERROR"
	CodeLeaseLost Code = "LEASE_LOST" // receipt no longer holds the message lease
)

// FieldExitCode is the field carrying a renderer's exit status.
const FieldExitCode = "exit_code"

const maxStackFrames = 10

type Error struct {
	Code    Code
	Message string
	Op      string // failing operation, e.g. "processor.fetch"
	Err     error
	Fields  map[string]any
	Stack   []Frame
}

type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// Error formats as "op: [CODE] message: cause".
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Code != "" {
		b.WriteString("[")
		b.WriteString(string(e.Code))
		b.WriteString("] ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so errors.Is(err, New(CodeQueue, ""))
// finds any queue failure in the chain.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// HTTPStatus is the status used when the error reaches an API client.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeParse:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeLeaseLost:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable, CodeQueue, CodeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) StackTrace() string {
	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Stack: captureStack(3)}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Stack: captureStack(3)}
}

// Wrap adds op and message to err. The code and fields of a wrapped *Error
// carry over; anything else becomes CodeInternal.
func Wrap(err error, op, message string) *Error {
	if err == nil {
		return nil
	}
	return wrap(err, "", op, message)
}

// WrapWithCode is Wrap with an explicit code. Fields still carry over.
func WrapWithCode(err error, code Code, op, message string) *Error {
	if err == nil {
		return nil
	}
	return wrap(err, code, op, message)
}

func wrap(err error, code Code, op, message string) *Error {
	out := &Error{Code: code, Message: message, Op: op, Err: err, Stack: captureStack(4)}

	var inner *Error
	if errors.As(err, &inner) {
		if out.Code == "" {
			out.Code = inner.Code
		}
		// Copied so WithField on the wrapper leaves the cause untouched.
		out.Fields = maps.Clone(inner.Fields)
	}
	if out.Code == "" {
		out.Code = CodeInternal
	}
	return out
}

func NotFound(resource, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, id)).
		WithField("resource", resource).
		WithField("id", id)
}

func Validation(message string) *Error {
	return New(CodeValidation, message)
}

func ValidationField(field, message string) *Error {
	return New(CodeValidation, message).WithField("field", field)
}

func Unavailable(service string) *Error {
	return New(CodeUnavailable, "service unavailable: "+service).WithField("service", service)
}

// GetCode returns the outermost code in err's chain, or CodeInternal.
func GetCode(err error) Code {
	if e, ok := asError(err); ok {
		return e.Code
	}
	return CodeInternal
}

func GetHTTPStatus(err error) int {
	if e, ok := asError(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func GetFields(err error) map[string]any {
	if e, ok := asError(err); ok {
		return e.Fields
	}
	return nil
}

// ExitCode returns the renderer exit status recorded on err, if any.
func ExitCode(err error) (int, bool) {
	code, ok := GetFields(err)[FieldExitCode].(int)
	return code, ok
}

func IsCode(err error, code Code) bool { return GetCode(err) == code }

func As(err error, target any) bool { return errors.As(err, target) }
func Is(err, target error) bool     { return errors.Is(err, target) }

func asError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// captureStack records up to maxStackFrames caller frames, skipping the
// runtime and this package.
func captureStack(skip int) []Frame {
	var pcs [32]uintptr
	n := runtime.Callers(skip, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	out := make([]Frame, 0, maxStackFrames)
	for len(out) < maxStackFrames {
		f, more := frames.Next()
		if !strings.HasPrefix(f.Function, "runtime.") {
			out = append(out, Frame{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	return out
}
