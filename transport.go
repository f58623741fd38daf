package fetchkit

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"github.com/nyradev/fetchkit/cookiejar"
	"github.com/nyradev/fetchkit/pool"
)

// TransportConfig wires the connection-pooling, proxy, and cookie
// layers the bottom-of-chain dispatcher needs.
type TransportConfig struct {
	Pool  *pool.Manager
	Jar   *cookiejar.Jar
	Proxy func(*http.Request) (*url.URL, error)
}

// transportDispatch builds the terminal Next (spec §4.1 item 9): it
// resolves a per-host connection pool, applies the request's Total
// timeout via its context, records phase timings via httptrace, enforces
// MaxResponseSize, attaches cookies, instruments upload/download
// progress, follows redirects per req.Redirect, and sets req.Elapsed.
func transportDispatch(cfg TransportConfig) Next {
	return func(req *Request) (*Response, error) {
		start := time.Now()
		defer func() { req.Elapsed = time.Since(start) }()
		current := req
		for {
			resp, err := dispatchOnce(cfg, current)
			if err != nil {
				return nil, err
			}
			if !isRedirect(resp.StatusCode) || !current.Redirect.Follow {
				return resp, nil
			}
			location := resp.Header.Get("Location")
			if location == "" {
				return resp, nil
			}
			if len(current.redirectChain) >= current.Redirect.MaxRedirects {
				return resp, nil
			}

			fromURL, _ := url.Parse(current.URL)
			toURL, err := resolveRedirectURL(current.URL, location)
			if err != nil {
				return resp, nil
			}

			if current.Redirect.BeforeRedirect != nil {
				if _, err := current.Redirect.BeforeRedirect(fromURL, toURL, resp.StatusCode); err != nil {
					return nil, err
				}
			}

			next := current.Clone()
			next.redirectChain = append(append([]string(nil), current.redirectChain...), toURL.String())
			next.URL = toURL.String()
			applyRedirectMethodChange(next, resp.StatusCode)
			current = next
		}
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func resolveRedirectURL(base, location string) (*url.URL, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return nil, err
	}
	return baseURL.ResolveReference(ref), nil
}

// applyRedirectMethodChange applies the method-change rules for
// 301/302/303/307/308: a 303 (and, by long HTTP client convention,
// 301/302 on a non-GET/HEAD request) switches to GET and drops the body;
// 307/308 preserve the method and body.
func applyRedirectMethodChange(req *Request, status int) {
	switch status {
	case http.StatusSeeOther:
		req.Method = http.MethodGet
		req.Body, req.BodyBytes = nil, nil
	case http.StatusMovedPermanently, http.StatusFound:
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			req.Method = http.MethodGet
			req.Body, req.BodyBytes = nil, nil
		}
	}
}

func dispatchOnce(cfg TransportConfig, req *Request) (*Response, error) {
	httpReq, err := req.toHTTPRequest()
		if err != nil {
			return nil, NetworkError(req, err)
		}

		if cfg.Jar != nil {
			if c := cfg.Jar.Cookies(httpReq.URL); c != "" {
				httpReq.Header.Set("Cookie", c)
			}
		}

		ctx, cancel := applyTimeouts(httpReq.Context(), req.Timeout)
		defer cancel()

		var timings Timings
		var conn Connection
		ctx = withTimingTrace(ctx, &timings, &conn)
		httpReq = httpReq.WithContext(ctx)

		if req.OnUploadProgress != nil && req.BodyBytes != nil {
			httpReq.Body = newProgressReader(req.BodyBytes, req.OnUploadProgress)
		}

		rt := resolveRoundTripper(cfg, req, httpReq.URL)

		start := time.Now()
		httpResp, err := rt.RoundTrip(httpReq)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				if ctxErr == context.DeadlineExceeded {
					return nil, TimeoutError(req, err)
				}
				return nil, CancelledError(req)
			}
			return nil, NetworkError(req, err)
		}
		timings.Total = time.Since(start)

		if cfg.Jar != nil {
			cfg.Jar.SetCookiesFromHeader(httpReq.URL, httpResp.Header)
		}

		if req.MaxResponseSize > 0 {
			if cl := httpResp.ContentLength; cl > 0 && cl > req.MaxResponseSize {
				httpResp.Body.Close()
				return nil, MaxSizeExceededError(req, req.MaxResponseSize, cl)
			}
			httpResp.Body = newLimitedReadCloser(httpResp.Body, req.MaxResponseSize, req)
		}

		if encoding := httpResp.Header.Get("Content-Encoding"); encoding != "" && httpReq.Method != http.MethodHead {
			decoded, err := decodeContentEncoding(encoding, httpResp.Body)
			if err != nil {
				httpResp.Body.Close()
				return nil, ParseError(req, err)
			}
			httpResp.Body = wrapReader(decoded, httpResp.Body)
		}

		if req.OnDownloadProgress != nil {
			total := httpResp.ContentLength
			if total < 0 {
				total = 0
			}
			httpResp.Body = newProgressReadCloser(httpResp.Body, total, req.OnDownloadProgress)
		}

	resp := newResponse(req, httpResp)
	resp.Timings = timings
	resp.Connection = conn
	resp.Redirects = req.redirectChain
	resp.RetryCount = req.Attempt - 1
	return resp, nil
}

func applyTimeouts(parent context.Context, p TimeoutPolicy) (context.Context, context.CancelFunc) {
	ctx := parent
	var cancel context.CancelFunc = func() {}
	if p.Total > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.Total)
	}
	return ctx, cancel
}

func withTimingTrace(ctx context.Context, t *Timings, conn *Connection) context.Context {
	var dnsStart, connectStart, tlsStart, reqStart time.Time
	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone: func(httptrace.DNSDoneInfo) {
			if !dnsStart.IsZero() {
				t.DNS = time.Since(dnsStart)
			}
		},
		ConnectStart: func(string, string) { connectStart = time.Now() },
		ConnectDone: func(string, string, error) {
			if !connectStart.IsZero() {
				t.Connect = time.Since(connectStart)
			}
		},
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			if !tlsStart.IsZero() {
				t.TLS = time.Since(tlsStart)
			}
			conn.Protocol = state.NegotiatedProtocol
			conn.Cipher = tls.CipherSuiteName(state.CipherSuite)
		},
		GotConn: func(info httptrace.GotConnInfo) {
			conn.Reused = info.Reused
			reqStart = time.Now()
		},
		GotFirstResponseByte: func() {
			if !reqStart.IsZero() {
				t.TTFB = time.Since(reqStart)
			}
		},
	}
	return httptrace.WithClientTrace(ctx, trace)
}

// resolveRoundTripper picks the connection pool for u's host. If cfg.Proxy
// is configured or req.Transport.HTTP2 opts into HTTP/2, it asks the
// manager for a per-host pool built with those options. With per-domain
// pooling disabled the manager returns the shared global pool, which
// applies neither; with it enabled, pools are cached per host, so the
// options of the first request to a host apply to later ones.
func resolveRoundTripper(cfg TransportConfig, req *Request, u *url.URL) http.RoundTripper {
	if cfg.Pool == nil {
		return http.DefaultTransport
	}
	if cfg.Proxy != nil || req.Transport.HTTP2 {
		return cfg.Pool.GetForHost(u.Host, &pool.AgentOptions{
			Connections: 6,
			KeepAlive:   true,
			Proxy:       cfg.Proxy,
			HTTP2:       req.Transport.HTTP2,
		})
	}
	return cfg.Pool.GetForURL(u)
}
