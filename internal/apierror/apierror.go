// Package apierror maps failures to HTTP responses. Each Error carries a
// Kind that fixes the status code; wrapped causes are only exposed to
// clients in development mode.
package apierror

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"studio-site/internal/domain"
	"studio-site/internal/security"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a client-facing failure.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code of the error.
func (e *Error) Status() int {
	return e.Kind.Status()
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: "Too many requests", RetryAfter: retryAfter}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: err}
}

// Wrap attaches a cause to e and returns it.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// From converts any error into an *Error, recognising domain and security
// sentinels.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownCollection):
		return Validation(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrDocumentNotFound):
		return NotFound("Resource not found").Wrap(err)
	case errors.Is(err, domain.ErrDocumentExists):
		return Validation("Resource already exists").Wrap(err)
	case errors.Is(err, domain.ErrInvalidCredentials):
		return Unauthorized("Invalid credentials").Wrap(err)
	case errors.Is(err, security.ErrInvalidSession),
		errors.Is(err, security.ErrSessionExpired):
		return Unauthorized("Not authenticated").Wrap(err)
	case errors.Is(err, security.ErrCSRFMissing),
		errors.Is(err, security.ErrCSRFMismatch),
		errors.Is(err, security.ErrCSRFInvalid),
		errors.Is(err, security.ErrCSRFExpired):
		return Forbidden("Invalid CSRF token").Wrap(err)
	}
	return Internal(err)
}

type body struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// Write renders err as JSON. Details of the underlying cause are included
// only when devMode is set.
func Write(w http.ResponseWriter, err error, devMode bool) {
	apiErr := From(err)

	resp := body{
		Error: apiErr.Message,
		Kind:  apiErr.Kind.String(),
	}
	if devMode && apiErr.Err != nil {
		resp.Detail = apiErr.Err.Error()
	}

	if apiErr.Kind == KindRateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(apiErr.RetryAfter)))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status())
	_ = json.NewEncoder(w).Encode(resp)
}

// RetryAfterSeconds rounds d up to whole seconds, never below one.
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
