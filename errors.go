package fetchkit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies the failure modes a request can produce. It mirrors the
// error taxonomy every middleware and the transport agree on, so retry and
// hook logic can switch on Kind instead of string-matching messages.
type Kind int

const (
	// KindNetwork covers connection refused, DNS failure, TLS failure, reset.
	KindNetwork Kind = iota
	// KindTimeout covers any of the four timeout dials expiring.
	KindTimeout
	// KindCancelled covers a request aborted via an external signal.
	KindCancelled
	// KindHTTP covers status >= 400 with ThrowHTTPErrors enabled.
	KindHTTP
	// KindMaxSizeExceeded covers a response whose declared or observed size
	// exceeds MaxResponseSize.
	KindMaxSizeExceeded
	// KindParse covers body decode failure in a convenience accessor.
	KindParse
	// KindUnsupported covers a feature requested that the transport cannot provide.
	KindUnsupported
	// KindDownload covers an external asset fetch failing.
	KindDownload
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindHTTP:
		return "http"
	case KindMaxSizeExceeded:
		return "max_size_exceeded"
	case KindParse:
		return "parse"
	case KindUnsupported:
		return "unsupported"
	case KindDownload:
		return "download"
	default:
		return "unknown"
	}
}

// Retriable reports whether errors of this kind are retried by default,
// per spec §7's table. HttpError is only retriable if the carried status
// is itself in the retriable set, which the retry middleware checks
// separately; Retriable here answers the class-level default.
func (k Kind) Retriable() bool {
	switch k {
	case KindNetwork, KindTimeout:
		return true
	case KindDownload:
		return true
	default:
		return false
	}
}

// Error is the single typed error value the client surfaces. Request and
// Response are best-effort context: Response is set only for KindHTTP and
// is nil for every other kind (KindMaxSizeExceeded carries MaxSize and
// ActualSize instead).
type Error struct {
	Kind     Kind
	Request  *Request
	Response *Response
	Cause    error
	Attempt  int
	Elapsed  time.Duration

	// MaxSize/ActualSize are populated for KindMaxSizeExceeded.
	MaxSize    int64
	ActualSize int64
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Request != nil {
		msg += " " + e.Request.Method + " " + e.Request.URL
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, req *Request, cause error) *Error {
	return &Error{Kind: kind, Request: req, Cause: cause}
}

// NetworkError wraps cause as a KindNetwork Error.
func NetworkError(req *Request, cause error) *Error {
	return newError(KindNetwork, req, cause)
}

// TimeoutError wraps cause as a KindTimeout Error.
func TimeoutError(req *Request, cause error) *Error {
	return newError(KindTimeout, req, cause)
}

// CancelledError builds a KindCancelled Error.
func CancelledError(req *Request) *Error {
	return newError(KindCancelled, req, context.Canceled)
}

// HTTPError builds a KindHTTP Error carrying the response.
func HTTPError(req *Request, resp *Response) *Error {
	e := newError(KindHTTP, req, fmt.Errorf("http status %d", resp.StatusCode))
	e.Response = resp
	return e
}

// MaxSizeExceededError builds a KindMaxSizeExceeded Error.
func MaxSizeExceededError(req *Request, max, actual int64) *Error {
	e := newError(KindMaxSizeExceeded, req, fmt.Errorf("response size %d exceeds max %d", actual, max))
	e.MaxSize = max
	e.ActualSize = actual
	return e
}

// ParseError wraps a body-decode failure as a KindParse Error.
func ParseError(req *Request, cause error) *Error {
	return newError(KindParse, req, cause)
}

// UnsupportedError builds a KindUnsupported Error, e.g. for SOCKS proxies.
func UnsupportedError(req *Request, cause error) *Error {
	return newError(KindUnsupported, req, cause)
}

// DownloadError builds a KindDownload Error for auxiliary-tool fetches.
func DownloadError(cause error) *Error {
	return newError(KindDownload, nil, cause)
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
