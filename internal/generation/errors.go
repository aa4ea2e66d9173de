package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// Kind classifies a generation failure.
type Kind int

const (
	// KindAuth covers missing, invalid or unauthorized credentials.
	KindAuth Kind = iota + 1
	// KindTransport covers network failures, timeouts and cancellation.
	KindTransport
	// KindRejected covers errors reported by the backend: quota, invalid
	// request, content-safety blocks.
	KindRejected
	// KindMalformed covers responses without usable text.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindTransport:
		return "transport"
	case KindRejected:
		return "rejected"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrEmptyResponse      = errors.New("empty response from model")
	ErrContentBlocked     = errors.New("content blocked by safety filters")
)

// Error is the classified error returned by every Client in this package.
type Error struct {
	Kind    Kind
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s generation failed (%s): %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind, true
	}
	return 0, false
}

func newError(backend string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Backend: backend, Err: err}
}

// classifyHTTPStatus maps an HTTP status reported by a backend SDK. Gateway
// and overload statuses (529 is Anthropic's "overloaded") are transient and
// count as transport failures; any other status is a rejection.
func classifyHTTPStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, 529:
		return KindTransport
	default:
		return KindRejected
	}
}

// classifyTransport handles errors that never reached the backend's API
// layer. It returns false when err is none of those.
func classifyTransport(err error) (Kind, bool) {
	var netErr net.Error
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTransport, true
	case errors.As(err, &netErr), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return KindTransport, true
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return KindMalformed, true
	}
	return 0, false
}
