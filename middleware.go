package fetchkit

import (
	"context"
	"time"
)

// Next invokes the remainder of the middleware chain.
type Next func(*Request) (*Response, error)

// Middleware wraps a request/response round trip. Implementations must
// let errors flow unless they explicitly recover (spec §7): retry
// catches retriable errors and re-invokes next, cache may substitute a
// stale response, hooks may supply a fallback. Everything else re-throws.
type Middleware func(req *Request, next Next) (*Response, error)

// composeChain nests middlewares outermost-first into a single Next,
// terminating in transportDispatch. This mirrors spec §4.1: composition
// happens once, as nested closures, not as a re-walked slice per call.
func composeChain(mws []Middleware, terminal Next) Next {
	next := terminal
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		cur := next
		next = func(req *Request) (*Response, error) {
			return mw(req, cur)
		}
	}
	return next
}

// Hook functions. beforeRequest may return a replacement Request (or nil
// to keep the current one); afterResponse may return a replacement
// Response; onError may return a Response to swallow the error.
type (
	BeforeRequestHook func(ctx context.Context, req *Request) (*Request, error)
	AfterResponseHook func(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnErrorHook       func(ctx context.Context, req *Request, err error) (*Response, error)
	OnRetryHook       func(ctx context.Context, req *Request, attempt int, err error, wait time.Duration)
)

// Hooks groups the three hook points spec §4.1 defines, plus OnRetry,
// which the retry middleware calls before each re-attempt.
type Hooks struct {
	BeforeRequest []BeforeRequestHook
	AfterResponse []AfterResponseHook
	OnError       []OnErrorHook
	OnRetry       []OnRetryHook
}

func (h Hooks) empty() bool {
	return len(h.BeforeRequest) == 0 && len(h.AfterResponse) == 0 && len(h.OnError) == 0
}

// hooksMiddleware runs beforeRequest hooks in order (each may replace the
// request), dispatches via next, runs afterResponse hooks on success
// (each may replace the response), and on error runs onError hooks until
// one supplies a fallback response, swallowing the error.
func hooksMiddleware(h Hooks) Middleware {
	return func(req *Request, next Next) (*Response, error) {
		cur := req
		for _, hook := range h.BeforeRequest {
			replacement, err := hook(cur.Context(), cur)
			if err != nil {
				return nil, err
			}
			if replacement != nil {
				cur = replacement
			}
		}

		resp, err := next(cur)
		if err != nil {
			for _, hook := range h.OnError {
				fallback, hookErr := hook(cur.Context(), cur, err)
				if hookErr != nil {
					return nil, hookErr
				}
				if fallback != nil {
					return fallback, nil
				}
			}
			return nil, err
		}

		for _, hook := range h.AfterResponse {
			replacement, err := hook(cur.Context(), cur, resp)
			if err != nil {
				return nil, err
			}
			if replacement != nil {
				resp = replacement
			}
		}
		return resp, nil
	}
}

// errorCheckMiddleware implements the transport-error-check step (spec
// §4.1 item 8): if ThrowHTTPErrors is true and status >= 400, fail with
// an HttpError carrying the response.
func errorCheckMiddleware() Middleware {
	return func(req *Request, next Next) (*Response, error) {
		resp, err := next(req)
		if err != nil {
			return nil, err
		}
		if req.ThrowHTTPErrors && resp.StatusCode >= 400 {
			return nil, HTTPError(req, resp)
		}
		return resp, nil
	}
}
