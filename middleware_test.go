package fetchkit

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Property 1: for chain [A, B, C] with terminal T, a request passes
// through A -> B -> C -> T, and responses propagate back in reverse;
// modifications by earlier middlewares are visible to later ones.
func TestComposeChainOrdersOutermostFirst(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(req *Request, next Next) (*Response, error) {
			order = append(order, "in:"+name)
			req.Header.Set("X-Seen-"+name, "1")
			resp, err := next(req)
			order = append(order, "out:"+name)
			return resp, err
		}
	}

	req, err := NewRequest(http.MethodGet, "http://example.com", nil, nil)
	require.NoError(t, err)

	terminal := func(r *Request) (*Response, error) {
		assert.Equal(t, "1", r.Header.Get("X-Seen-A"))
		assert.Equal(t, "1", r.Header.Get("X-Seen-B"))
		assert.Equal(t, "1", r.Header.Get("X-Seen-C"))
		return &Response{StatusCode: http.StatusOK, Header: http.Header{}}, nil
	}

	chain := composeChain([]Middleware{tag("A"), tag("B"), tag("C")}, terminal)
	_, err = chain(req)
	require.NoError(t, err)

	assert.Equal(t, []string{"in:A", "in:B", "in:C", "out:C", "out:B", "out:A"}, order)
}

func TestHooksMiddlewareBeforeRequestReplacesRequest(t *testing.T) {
	req, err := NewRequest(http.MethodGet, "http://example.com/original", nil, nil)
	require.NoError(t, err)
	replacement, err := NewRequest(http.MethodGet, "http://example.com/replaced", nil, nil)
	require.NoError(t, err)

	hooks := Hooks{
		BeforeRequest: []BeforeRequestHook{
			func(ctx context.Context, r *Request) (*Request, error) { return replacement, nil },
		},
	}
	mw := hooksMiddleware(hooks)

	var seenURL string
	_, err = mw(req, func(r *Request) (*Response, error) {
		seenURL = r.URL
		return &Response{StatusCode: http.StatusOK, Header: http.Header{}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/replaced", seenURL)
}

func TestHooksMiddlewareAfterResponseReplacesResponse(t *testing.T) {
	req, err := NewRequest(http.MethodGet, "http://example.com", nil, nil)
	require.NoError(t, err)
	replacement := &Response{StatusCode: http.StatusTeapot, Header: http.Header{}}

	hooks := Hooks{
		AfterResponse: []AfterResponseHook{
			func(ctx context.Context, r *Request, resp *Response) (*Response, error) { return replacement, nil },
		},
	}
	mw := hooksMiddleware(hooks)
	resp, err := mw(req, func(r *Request) (*Response, error) {
		return &Response{StatusCode: http.StatusOK, Header: http.Header{}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestHooksMiddlewareOnErrorSwallowsWithFallback(t *testing.T) {
	req, err := NewRequest(http.MethodGet, "http://example.com", nil, nil)
	require.NoError(t, err)
	fallback := &Response{StatusCode: http.StatusOK, Header: http.Header{}}

	hooks := Hooks{
		OnError: []OnErrorHook{
			func(ctx context.Context, r *Request, err error) (*Response, error) { return fallback, nil },
		},
	}
	mw := hooksMiddleware(hooks)
	resp, err := mw(req, func(r *Request) (*Response, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, err)
	assert.Same(t, fallback, resp)
}

func TestHooksMiddlewareOnErrorRepropagatesWhenNoFallback(t *testing.T) {
	req, err := NewRequest(http.MethodGet, "http://example.com", nil, nil)
	require.NoError(t, err)
	var called bool

	hooks := Hooks{
		OnError: []OnErrorHook{
			func(ctx context.Context, r *Request, err error) (*Response, error) { called = true; return nil, nil },
		},
	}
	mw := hooksMiddleware(hooks)
	_, err = mw(req, func(r *Request) (*Response, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	assert.True(t, called)
}

func TestErrorCheckMiddlewareThrowsOnStatus(t *testing.T) {
	req, err := NewRequest(http.MethodGet, "http://example.com", nil, nil)
	require.NoError(t, err)
	req.ThrowHTTPErrors = true
	mw := errorCheckMiddleware()

	_, err = mw(req, func(r *Request) (*Response, error) {
		return &Response{StatusCode: http.StatusNotFound, Header: http.Header{}}, nil
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindHTTP))
}

func TestErrorCheckMiddlewarePassesThroughWhenDisabled(t *testing.T) {
	req, err := NewRequest(http.MethodGet, "http://example.com", nil, nil)
	require.NoError(t, err)
	req.ThrowHTTPErrors = false
	mw := errorCheckMiddleware()

	resp, err := mw(req, func(r *Request) (*Response, error) {
		return &Response{StatusCode: http.StatusNotFound, Header: http.Header{}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
