// Package apperror defines the error taxonomy shared by agents, the ingestion
// pipeline and the HTTP layer. Every user-facing path turns an error into a
// reply string with UserMessage and never lets a raw fault escape.
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamFailure     = errors.New("upstream failure")
	ErrDuplicateSuppressed = errors.New("duplicate suppressed")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

const (
	msgStoreUnavailable = "Something went wrong on our side, please try again later."
	msgUpstream         = "The service is temporarily unavailable, please try again later."
	msgGeneric          = "Sorry, something went wrong while handling your request."
)

// Error carries a kind sentinel, a message that is safe to show to a user and
// the underlying cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Validation reports bad user input. The message is shown verbatim.
func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Msg: msg}
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func Timeout(op string, err error) error {
	return &Error{Kind: ErrUpstreamTimeout, Msg: op + " timed out", Err: err}
}

func Upstream(op string, err error) error {
	return &Error{Kind: ErrUpstreamFailure, Msg: op + " failed", Err: err}
}

func Duplicate(what string) error {
	return &Error{Kind: ErrDuplicateSuppressed, Msg: what + " already processed"}
}

// Store wraps a persistence error. A nil err stays nil so call sites can wrap
// unconditionally.
func Store(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: ErrStoreUnavailable, Msg: "store unavailable", Err: err}
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Classify maps a raw error from a remote call to the taxonomy. Errors that
// already carry a kind are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if IsTimeout(err) {
		return Timeout(op, err)
	}
	return Upstream(op, err)
}

// RetryOnTimeout runs fn with a per-attempt timeout. A first attempt that
// times out is retried once, immediately. Any other failure is returned after
// the first attempt.
func RetryOnTimeout(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = runWithTimeout(ctx, timeout, fn)
		if err == nil {
			return nil
		}
		if !IsTimeout(err) || ctx.Err() != nil {
			break
		}
	}
	return Classify(op, err)
}

func runWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// UserMessage converts any error into the reply shown to a chat user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	switch {
	case errors.Is(err, ErrValidation) && errors.As(err, &ae):
		return ae.Msg
	case errors.Is(err, ErrStoreUnavailable):
		return msgStoreUnavailable
	case errors.Is(err, ErrUpstreamTimeout), errors.Is(err, ErrUpstreamFailure):
		return msgUpstream
	default:
		return msgGeneric
	}
}

// HTTPStatus maps an error to the status code the REST handlers answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicateSuppressed):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
