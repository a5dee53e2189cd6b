package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorCompletion   ErrorCode = "COMPLETION_ERROR"
	ErrorRateLimited  ErrorCode = "RATE_LIMITED"
	ErrorStore        ErrorCode = "STORE_ERROR"
	ErrorCanceled     ErrorCode = "CANCELED"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

// genericFailureMessage is what end users see for any pipeline failure.
const genericFailureMessage = "Sorry, we could not process your request. Please retry."

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the ErrorCode carried by err, or ErrorInternal when err is
// not a *Error.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}

// UserMessage returns the text a presentation layer should show for err.
// Validation problems are explained; everything else gets the generic retry
// message so provider details never leak to customers.
func UserMessage(err error) string {
	var ue *Error
	if errors.As(err, &ue) && ue.Code == ErrorInvalidInput {
		switch ue.Reason {
		case "empty_query":
			return "Please enter a question."
		case "query_too_long":
			return "Your message is too long. Please shorten it and retry."
		}
	}
	return genericFailureMessage
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// completionError classifies a completer failure for the given stage reason.
// Only a done caller context counts as cancellation; a provider timeout is a
// completion failure.
func completionError(ctx context.Context, reason string, err error) *Error {
	if ctx.Err() != nil {
		return newError(ErrorCanceled, reason, err)
	}
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, reason, err)
	}
	return newError(ErrorCompletion, reason, err)
}
