package client

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is a non-2xx response from the backend. Message holds the
// backend-supplied `message` field and is empty when the body had none.
type HTTPError struct {
	Status  int
	Message string
	Method  string
	Path    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// IsStatus reports whether err is an HTTPError with the given status
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == status
}

// ErrorKind classifies failures surfaced to the user
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindUnauthenticated is a 401; the gateway already forced a logout
	KindUnauthenticated
	// KindValidation is a client-side check that never reached the network
	KindValidation
	// KindConflict is a 409
	KindConflict
	// KindBackend is any other non-2xx
	KindBackend
	// KindTransport covers network and decoding failures
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindBackend:
		return "backend"
	default:
		return "transport"
	}
}

// ValidationError is a field-level failure detected before any request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// KindOf classifies err
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return KindValidation
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return KindTransport
	}

	switch httpErr.Status {
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusConflict:
		return KindConflict
	default:
		return KindBackend
	}
}

// MessageOf returns the text to show the user for err: the validation
// message, the backend message, or fallback. Transport details are never
// returned.
func MessageOf(err error, fallback string) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}
	return fallback
}

// Rejection is the stable failure handed back to a form: what kind of
// failure it was, the text already shown to the user, and the cause.
type Rejection struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Reject wraps err, resolving the user-facing message with fallback
func Reject(err error, fallback string) *Rejection {
	return &Rejection{Kind: KindOf(err), Message: MessageOf(err, fallback), Err: err}
}

func (r *Rejection) Error() string {
	return r.Message
}

func (r *Rejection) Unwrap() error {
	return r.Err
}
