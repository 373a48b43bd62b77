package errors

import (
	"errors"

	"github.com/edgeql-io/edgewire/codes"
)

// WithCode decorates the error with a wire error code.
func WithCode(err error, code codes.Code) error {
	if err == nil {
		return nil
	}

	return &withCode{cause: err, code: code}
}

// GetCode returns the wire error code inside the given error. If no error
// code is found an Uncategorized error code is returned.
func GetCode(err error) (code codes.Code) {
	code = codes.Uncategorized
	if c, ok := err.(*withCode); ok {
		return c.code
	}

	if n := errors.Unwrap(err); n != nil {
		inner := GetCode(n)
		code = combineCodes(inner, code)
	}

	return code
}

type withCode struct {
	cause error
	code  codes.Code
}

func (w *withCode) Error() string { return w.cause.Error() }
func (w *withCode) Unwrap() error { return w.cause }

// combineCodes returns the most specific error code, preferring an internal
// error code over any other classification found further down the chain.
func combineCodes(inner, outer codes.Code) codes.Code {
	if outer == codes.Uncategorized {
		return inner
	}
	if outer == codes.Internal {
		return outer
	}
	if inner != codes.Uncategorized {
		return inner
	}
	return outer
}
