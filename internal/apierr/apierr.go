// Package apierr models the error kinds a store node, queue service, or
// gateway can produce, each carrying the HTTP status it maps to, so HTTP
// handlers can respond with one call instead of hand-rolling status codes.
package apierr

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Kind identifies one of the error categories.
type Kind int

const (
	// BadRequest: malformed or incomplete client input. 400.
	BadRequest Kind = iota
	// NotFound: the requested key/resource does not exist. 404.
	NotFound
	// Overloaded: a bounded queue is full; back-pressure. 429.
	Overloaded
	// Upstream: a dependency (SN, QS) returned a server error. Surfaced.
	Upstream
	// Transport: a network error talking to a dependency. Swallowed by
	// async replication/reconciliation, only ever logged.
	Transport
	// Durability: the log write failed. Fatal to the request that caused it.
	Durability
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case NotFound:
		return "not_found"
	case Overloaded:
		return "overloaded"
	case Upstream:
		return "upstream"
	case Transport:
		return "transport"
	case Durability:
		return "durability"
	default:
		return "unknown"
	}
}

// Status returns the HTTP status code this kind maps to.
func (k Kind) Status() int {
	switch k {
	case BadRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Overloaded:
		return http.StatusTooManyRequests
	case Upstream:
		return http.StatusBadGateway
	case Durability:
		return http.StatusInternalServerError
	case Transport:
		// Transport errors are never supposed to reach an HTTP response;
		// this exists only so Kind always has a status.
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed error carrying a Kind, a human-readable message, and
// optionally the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Key     string
	Remote  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithKey annotates the error with the key it concerns, for logging.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithRemote annotates the error with the remote address it concerns.
func (e *Error) WithRemote(remote string) *Error {
	e.Remote = remote
	return e
}

// Respond writes the appropriate HTTP status and a JSON error body for err.
// Non-apierr errors are treated as internal (500).
func Respond(c *gin.Context, err error) {
	var ae *Error
	if e, ok := err.(*Error); ok {
		ae = e
	} else {
		ae = Wrap(Durability, "internal error", err)
	}
	c.JSON(ae.Kind.Status(), gin.H{"error": ae.Message})
}

// Log emits one structured warning line for a swallowed error (replication
// or reconciliation failure). These never reach a client.
func (e *Error) Log(logger zerolog.Logger) {
	ev := logger.Warn()
	if e.Key != "" {
		ev = ev.Str("key", e.Key)
	}
	if e.Remote != "" {
		ev = ev.Str("remote", e.Remote)
	}
	if e.Cause != nil {
		ev = ev.Err(e.Cause)
	}
	ev.Str("kind", e.Kind.String()).Msg(e.Message)
}
