package fetchkit

import (
	"bytes"
	"io"
	"net/http"

	"github.com/nyradev/fetchkit/cache"
)

// CacheOptions carries a per-request override of the client's cache
// configuration (spec §4.1's Retry/Cache/Dedup per-request overrides).
type CacheOptions struct {
	Enabled  bool
	Strategy cache.Strategy
}

// CacheConfig configures the cache middleware at client-construction time.
type CacheConfig struct {
	Storage  cache.Storage
	Strategy cache.Strategy
}

// cacheMiddleware adapts the net/http-level cache.Transport into the
// fetchkit.Middleware contract, translating Request/Response at the edges
// since the cache engine is kept independent of this package to avoid an
// import cycle (cache package never imports fetchkit).
func cacheMiddleware(cfg CacheConfig) Middleware {
	transport := cache.NewTransport(cache.Options{Storage: cfg.Storage, Strategy: cfg.Strategy})
	return func(req *Request, next Next) (*Response, error) {
		if req.Cache != nil && !req.Cache.Enabled {
			return next(req)
		}
		strategy := cfg.Strategy
		if req.Cache != nil {
			strategy = req.Cache.Strategy
		}
		localTransport := transport
		if strategy != cfg.Strategy {
			localTransport = cache.NewTransport(cache.Options{Storage: cfg.Storage, Strategy: strategy})
		}

		httpReq, err := req.toHTTPRequest()
		if err != nil {
			return nil, err
		}

		var resp *Response
		var nextErr error
		httpResp, err := localTransport.RoundTrip(httpReq, func(hr *http.Request) (*http.Response, error) {
			bridged, convErr := bridgeRequest(req, hr)
			if convErr != nil {
				return nil, convErr
			}
			resp, nextErr = next(bridged)
			if nextErr != nil {
				return nil, nextErr
			}
			return responseToHTTP(resp)
		})
		if err != nil {
			if nextErr != nil {
				return nil, nextErr
			}
			return nil, err
		}
		return httpResponseToResponse(req, httpResp)
	}
}

// bridgeRequest carries any header mutations the cache transport made
// (e.g. conditional revalidation headers) back onto the fetchkit Request
// before calling next, per spec §9's re-entrancy note.
func bridgeRequest(orig *Request, hr *http.Request) (*Request, error) {
	clone := orig.Clone()
	clone.Header = hr.Header.Clone()
	clone.URL = hr.URL.String()
	return clone, nil
}

func responseToHTTP(resp *Response) (*http.Response, error) {
	body, err := resp.Bytes()
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}, nil
}

func httpResponseToResponse(req *Request, hr *http.Response) (*Response, error) {
	body := hr.Body
	if body == nil {
		body = io.NopCloser(bytes.NewReader(nil))
	}
	return &Response{
		StatusCode: hr.StatusCode,
		Status:     hr.Status,
		Header:     hr.Header,
		URL:        req.URL,
		request:    req,
		body:       body,
	}, nil
}
