package fetchkit

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRetriableStatusCodes is the default retriable HTTP status set
// named in spec §4.4.
var DefaultRetriableStatusCodes = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusInternalServerError: true,
	http.StatusNotImplemented:     true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// RetryPolicy drives the retry middleware (spec §4.4): max attempts, a
// retriable status set, retriable error kinds, exponential backoff
// with jitter, and Retry-After honoring.
type RetryPolicy struct {
	MaxAttempts     int
	StatusCodes     map[int]bool
	RetriableKinds  map[Kind]bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	RandomFactor    float64
}

// DefaultRetryPolicy retries network/timeout errors and the default
// retriable status codes, making up to 3 attempts in total (2 retries)
// with jittered exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		StatusCodes:     DefaultRetriableStatusCodes,
		RetriableKinds:  map[Kind]bool{KindNetwork: true, KindTimeout: true},
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		RandomFactor:    0.5,
	}
}

func (p RetryPolicy) backoffFor(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = orDefault(p.InitialInterval, 500*time.Millisecond)
	eb.MaxInterval = orDefault(p.MaxInterval, 30*time.Second)
	eb.Multiplier = orDefaultFloat(p.Multiplier, 2)
	eb.RandomizationFactor = orDefaultFloat(p.RandomFactor, 0.5)
	eb.MaxElapsedTime = 0 // bounded by MaxAttempts, not wall-clock
	return backoff.WithContext(eb, ctx)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func orDefaultFloat(f, def float64) float64 {
	if f <= 0 {
		return def
	}
	return f
}

// retryable reports whether resp/err warrant another attempt under p.
func (p RetryPolicy) retryable(resp *Response, err error) bool {
	if err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		kinds := p.RetriableKinds
		if kinds == nil {
			kinds = map[Kind]bool{KindNetwork: true, KindTimeout: true}
		}
		return kinds[fe.Kind]
	}
	if resp == nil {
		return false
	}
	codes := p.StatusCodes
	if codes == nil {
		codes = DefaultRetriableStatusCodes
	}
	return codes[resp.StatusCode]
}

// retryAfter parses a Retry-After header (seconds or HTTP-date) if present.
func retryAfter(h http.Header) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, ok := parseRetryAfterSeconds(v); ok {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func parseRetryAfterSeconds(v string) (int64, bool) {
	var n int64
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	if len(v) == 0 {
		return 0, false
	}
	return n, true
}

// retryMiddleware builds a Middleware applying p, invoking each hook in
// onRetry before every re-attempt (spec §4.4).
func retryMiddleware(p RetryPolicy, onRetry []OnRetryHook) Middleware {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return func(req *Request, next Next) (*Response, error) {
		bo := p.backoffFor(req.Context())
		var lastResp *Response
		var lastErr error

		for attempt := 1; attempt <= maxAttempts; attempt++ {
			req.Attempt = attempt
			resp, err := next(req)
			lastResp, lastErr = resp, err
			if !p.retryable(resp, err) || attempt == maxAttempts {
				return resp, err
			}

			wait := bo.NextBackOff()
			if resp != nil {
				if ra, ok := retryAfter(resp.Header); ok {
					wait = ra
				}
			}
			if wait == backoff.Stop {
				return resp, err
			}
			for _, hook := range onRetry {
				hook(req.Context(), req, attempt, err, wait)
			}
			select {
			case <-time.After(wait):
			case <-req.Context().Done():
				return nil, CancelledError(req)
			}
		}
		return lastResp, lastErr
	}
}
