// Package fetchkit is an HTTP client runtime: a composable middleware
// pipeline (retry, cache, dedup, compression, XSRF) sitting on a
// per-domain connection pool, a token-bucket request limiter, a cookie
// jar, and a priority-queued batch runner.
package fetchkit

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nyradev/fetchkit/cache"
	"github.com/nyradev/fetchkit/cookiejar"
	"github.com/nyradev/fetchkit/pool"
	"github.com/nyradev/fetchkit/runner"
)

// Options configures a Client at construction time. Everything here has
// a workable zero value except where noted.
type Options struct {
	BaseURL string
	Headers map[string]string
	Params  map[string]string

	Concurrency       int  // global in-flight cap, default 32
	RequestsPerSecond int  // 0 disables rate limiting
	PerDomainPooling  bool

	Jar *cookiejar.Jar

	Retry *RetryPolicy
	Cache *CacheConfig
	Dedup *DedupOptions
	XSRF  *XSRFOptions
	// Proxy resolves the upstream proxy URL for a request, e.g.
	// (*ProxyConfig).ProxyFunc or EnvProxyConfig.ProxyFunc. It is applied
	// only when PerDomainPooling is set; requests sent through the shared
	// global pool do not use it.
	Proxy func(req *http.Request) (*url.URL, error)

	Middlewares []Middleware
	Hooks       Hooks
	Logger      *slog.Logger

	RunnerConcurrency int // worker count for Batch/Paginate, default 8

	// CompressRequestEncoding/CompressThreshold set the client-wide
	// default for outgoing body compression (spec §4.4); a request that
	// sets its own Request.CompressRequestEncoding keeps that value.
	CompressRequestEncoding string
	CompressThreshold       int64
}

// Client is the composed request pipeline (spec §4.1): logger → rate
// pool → dedup → retry → cache → user middlewares → hooks → XSRF →
// error-check → transport. The chain is composed once at construction.
type Client struct {
	baseURL string
	headers map[string]string
	params  map[string]string

	compressEncoding  string
	compressThreshold int64

	pool    *pool.Manager
	limiter *pool.Limiter
	jar     *cookiejar.Jar
	runner  *runner.Runner

	chain Next
}

// New builds a Client from opt.
func New(opt Options) *Client {
	if opt.Concurrency <= 0 {
		opt.Concurrency = 32
	}
	if opt.RunnerConcurrency <= 0 {
		opt.RunnerConcurrency = 8
	}

	poolMgr := pool.NewManager(opt.Concurrency, opt.PerDomainPooling)
	limiter := pool.NewLimiter(opt.Concurrency, opt.RequestsPerSecond, time.Second)

	jar := opt.Jar
	if jar == nil {
		jar = cookiejar.New()
	}

	c := &Client{
		baseURL:           opt.BaseURL,
		headers:           opt.Headers,
		params:            opt.Params,
		compressEncoding:  opt.CompressRequestEncoding,
		compressThreshold: opt.CompressThreshold,
		pool:              poolMgr,
		limiter:           limiter,
		jar:               jar,
		runner:            runner.New(opt.RunnerConcurrency, runner.Events{}),
	}

	var mws []Middleware
	mws = append(mws, loggerMiddleware(opt.Logger))
	mws = append(mws, rateLimitMiddleware(limiter))
	if opt.Dedup == nil || opt.Dedup.Enabled {
		mws = append(mws, dedupMiddleware(newDedupGroup()))
	}
	retry := DefaultRetryPolicy()
	if opt.Retry != nil {
		retry = *opt.Retry
	}
	mws = append(mws, retryMiddleware(retry, opt.Hooks.OnRetry))
	if opt.Cache != nil && opt.Cache.Storage != nil {
		mws = append(mws, cacheMiddleware(*opt.Cache))
	}
	mws = append(mws, opt.Middlewares...)
	if !opt.Hooks.empty() {
		mws = append(mws, hooksMiddleware(opt.Hooks))
	}
	if opt.XSRF != nil {
		mws = append(mws, xsrfMiddleware(jar, *opt.XSRF))
	}
	mws = append(mws, errorCheckMiddleware())

	terminal := transportDispatch(TransportConfig{Pool: poolMgr, Jar: jar, Proxy: opt.Proxy})
	c.chain = composeChain(mws, terminal)
	return c
}

// Do sends req through the composed middleware chain.
func (c *Client) Do(req *Request) (*Response, error) {
	c.applyDefaults(req)
	if err := req.Validate(); err != nil {
		return nil, NetworkError(req, err)
	}
	return c.chain(req)
}

// applyDefaults resolves req.URL against BaseURL (absolute URLs pass
// through untouched), substitutes any ":name" path placeholders from
// Params, appends the remaining Params as query defaults, and merges
// default headers set at client construction — all without overriding
// anything the caller already set explicitly.
func (c *Client) applyDefaults(req *Request) {
	if !strings.Contains(req.URL, "://") && c.baseURL != "" {
		req.URL = joinURL(c.baseURL, req.URL)
	}
	req.URL = substituteParams(req.URL, c.params)
	for k, v := range c.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if req.CompressRequestEncoding == "" && c.compressEncoding != "" {
		req.CompressRequestEncoding = c.compressEncoding
		req.CompressThreshold = c.compressThreshold
	}
}

// substituteParams replaces ":name" path segments with their value from
// params, then appends any params that weren't consumed by a placeholder
// as query-string defaults (a request-supplied query value always wins).
func substituteParams(rawURL string, params map[string]string) string {
	if len(params) == 0 {
		return rawURL
	}
	used := make(map[string]bool, len(params))
	path := rawURL
	for name, val := range params {
		placeholder := ":" + name
		if strings.Contains(path, placeholder) {
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(val))
			used[name] = true
		}
	}

	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	for name, val := range params {
		if used[name] {
			continue
		}
		if q.Get(name) == "" {
			q.Set(name, val)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func joinURL(base, path string) string {
	if strings.HasSuffix(base, "/") && strings.HasPrefix(path, "/") {
		return base + path[1:]
	}
	if !strings.HasSuffix(base, "/") && !strings.HasPrefix(path, "/") {
		return base + "/" + path
	}
	return base + path
}

// Get issues a GET request.
func (c *Client) Get(url string, headers map[string]string) (*Response, error) {
	req, err := NewRequest("GET", url, nil, headers)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post issues a POST request with body.
func (c *Client) Post(url string, body any, headers map[string]string) (*Response, error) {
	req, err := NewRequest("POST", url, body, headers)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// BatchItem is one unit submitted to Batch.
type BatchItem struct {
	Request  *Request
	Priority int
}

// BatchResult pairs a batch item's outcome with its original index.
type BatchResult struct {
	Index    int
	Response *Response
	Err      error
}

// Batch dispatches items across the client's runner (priority queue +
// bounded workers, spec §4.7), each request still subject to the full
// middleware chain (and therefore the global rate pool).
func (c *Client) Batch(ctx context.Context, items []BatchItem) []BatchResult {
	results, _ := runner.Run(ctx, c.runner, items,
		func(item BatchItem, _ int) int { return item.Priority },
		func(ctx context.Context, item BatchItem) (any, error) {
			item.Request.WithContext(ctx)
			return c.Do(item.Request)
		},
	)
	// runner.Run returns results in completion order, not submission
	// order; task.ID is the decimal string of the original index.
	out := make([]BatchResult, len(results))
	for _, r := range results {
		idx, err := strconv.Atoi(r.ID)
		if err != nil {
			continue
		}
		resp, _ := r.Value.(*Response)
		out[idx] = BatchResult{Index: idx, Response: resp, Err: r.Err}
	}
	return out
}

// Paginate repeatedly calls next to build the next Request from the
// previous Response until next returns nil, collecting each page's
// Response in order.
func (c *Client) Paginate(first *Request, next func(prev *Response) *Request) ([]*Response, error) {
	var pages []*Response
	req := first
	for req != nil {
		resp, err := c.Do(req)
		if err != nil {
			return pages, err
		}
		pages = append(pages, resp)
		req = next(resp)
	}
	return pages, nil
}

// CacheStorageOf exposes the configured cache storage for callers that
// need to invalidate entries directly (e.g. admin PURGE endpoints
// outside the request path).
func CacheStorageOf(cfg CacheConfig) cache.Storage { return cfg.Storage }

// rateLimitMiddleware acquires a pool slot (and, if configured, a rate
// limiter token) before calling next, releasing it afterward (spec
// §4.5/§4.6's Agent Manager + Request Pool).
func rateLimitMiddleware(limiter *pool.Limiter) Middleware {
	return func(req *Request, next Next) (*Response, error) {
		release, err := limiter.Acquire(req.Context())
		if err != nil {
			return nil, CancelledError(req)
		}
		defer release()
		return next(req)
	}
}
