package cache

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Strategy selects how the cache interacts with the network, per
// spec §4.1's five cache strategies.
type Strategy int

const (
	// RFCCompliant follows RFC 7234 freshness/revalidation semantics.
	RFCCompliant Strategy = iota
	CacheFirst
	NetworkFirst
	NetworkOnly
	StaleWhileRevalidate
)

// Next invokes the rest of the transport chain below the cache.
type Next func(*http.Request) (*http.Response, error)

// Options configures a Transport.
type Options struct {
	Storage   Storage
	Strategy  Strategy
	MarkerTTL time.Duration // default 24h, per spec §9 Open Question decision
	Now       func() time.Time
}

// Transport is the RFC 7234-flavored cache engine (spec §4). It
// operates purely at the net/http level so it composes independently
// of any higher-level request/response wrapper.
type Transport struct {
	opt Options
}

func NewTransport(opt Options) *Transport {
	if opt.MarkerTTL <= 0 {
		opt.MarkerTTL = 24 * time.Hour
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Transport{opt: opt}
}

func (t *Transport) now() time.Time { return t.opt.Now() }

// RoundTrip serves req from cache where policy allows, otherwise calls
// next and stores the result, per the strategy configured at
// construction.
func (t *Transport) RoundTrip(req *http.Request, next Next) (*http.Response, error) {
	body, req2, err := drainBody(req)
	if err != nil {
		return nil, err
	}
	req = req2

	if isUnsafeMethod(req.Method) {
		resp, err := next(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			t.invalidate(req, body)
		}
		return resp, err
	}

	switch t.opt.Strategy {
	case NetworkOnly:
		return next(req)
	case CacheFirst:
		return t.cacheFirst(req, body, next)
	case NetworkFirst:
		return t.networkFirst(req, body, next)
	case StaleWhileRevalidate:
		return t.staleWhileRevalidate(req, body, next)
	default:
		return t.rfcCompliant(req, body, next)
	}
}

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// invalidate deletes the primary fingerprint's Vary marker and the entry
// stored under the primary key itself, per spec §4.5's unsafe-method
// invalidation rule ("PURGE invalidates only on 2xx", which also covers
// the general unsafe-method case). Entries stored under Vary-adjusted
// keys are not deleted; without the marker, lookups no longer reach them.
func (t *Transport) invalidate(req *http.Request, body []byte) {
	primary := fingerprint(stripBodyForKey(req), body)
	_ = t.opt.Storage.Delete(req.Context(), markerKey(primary))
	_ = t.opt.Storage.Delete(req.Context(), primary)
}

// stripBodyForKey rewrites a request's method onto the equivalent GET
// fingerprint basis so POST /x invalidates the cached GET /x entry.
func stripBodyForKey(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	clone.Method = http.MethodGet
	return clone
}

func (t *Transport) lookup(req *http.Request, body []byte) (*Entry, string, bool) {
	ctx := req.Context()
	primary := fingerprint(req, body)
	markerBytes, err := t.opt.Storage.Get(ctx, markerKey(primary))
	if err != nil {
		return nil, primary, false
	}
	vary := string(markerBytes)
	key := varyKey(primary, vary, req.Header)
	raw, err := t.opt.Storage.Get(ctx, key)
	if err != nil {
		return nil, primary, false
	}
	entry, err := deserializeEntry(raw)
	if err != nil {
		return nil, primary, false
	}
	return entry, primary, true
}

func (t *Transport) store(req *http.Request, body []byte, entry *Entry) {
	ctx := req.Context()
	primary := fingerprint(req, body)
	key := varyKey(primary, entry.Vary, req.Header)

	raw, err := serializeEntry(entry)
	if err != nil {
		slog.Warn("cache: failed to serialize entry", "error", err)
		return
	}
	if err := t.opt.Storage.Set(ctx, markerKey(primary), []byte(entry.Vary), t.opt.MarkerTTL); err != nil {
		slog.Warn("cache: failed to store vary marker", "error", err)
		return
	}
	ttl := entry.lifetime()
	if sw := entry.StaleWhileRevalidate; sw != nil {
		ttl += *sw
	}
	if si := entry.StaleIfError; si != nil && *si > ttl {
		ttl = *si
	}
	if ttl <= 0 {
		ttl = t.opt.MarkerTTL
	}
	if err := t.opt.Storage.Set(ctx, key, raw, ttl); err != nil {
		slog.Warn("cache: failed to store entry", "error", err)
	}
}

func (t *Transport) rfcCompliant(req *http.Request, body []byte, next Next) (*http.Response, error) {
	reqDir := parseReqDirectives(req.Header)

	if reqDir.noStore {
		return next(req)
	}

	entry, _, found := t.lookup(req, body)
	stale := false
	if found {
		if reqDir.noCache {
			stale = true
		} else {
			state := entry.checkFreshness(reqDir, t.now())
			if state == fresh {
				return t.serveFromCache(entry, "hit", 0), nil
			}
			if t.opt.Strategy == StaleWhileRevalidate && entry.canServeStaleWhileRevalidate(t.now()) {
				return t.serveFromCache(entry, "stale", entry.age(t.now())), nil
			}
			stale = true
		}
	}

	if reqDir.onlyIfCached {
		return onlyIfCachedResponse(req), nil
	}

	// Any non-fresh entry gets revalidated with conditional headers, not
	// just must-revalidate/no-cache ones (spec §8 Scenario 2, Property 4):
	// an entry that merely aged past its max-age still needs a conditional
	// request before being refetched from scratch.
	if stale {
		addConditionalHeaders(req, entry)
	}

	resp, err := next(req)
	if err != nil {
		if found && entry.canServeStaleIfError(t.now()) {
			return t.serveFromCache(entry, "stale-error", entry.age(t.now())), nil
		}
		return nil, err
	}

	if found && resp.StatusCode == http.StatusNotModified {
		entry.CreatedAt = t.now()
		mergeRevalidationHeaders(entry, resp.Header)
		t.store(req, body, entry)
		return t.serveFromCache(entry, "revalidated", 0), nil
	}

	if newEntry, ok := buildEntry(resp, t.now()); ok {
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		newEntry.Body = respBody
		t.store(req, body, newEntry)
		resp.Body = io.NopCloser(bytes.NewReader(respBody))
		decorate(resp.Header, "miss", 0)
	}
	return resp, nil
}

func (t *Transport) cacheFirst(req *http.Request, body []byte, next Next) (*http.Response, error) {
	if entry, _, found := t.lookup(req, body); found {
		return t.serveFromCache(entry, "hit", entry.age(t.now())), nil
	}
	resp, err := next(req)
	if err != nil {
		return nil, err
	}
	return t.storeResponse(req, body, resp)
}

func (t *Transport) networkFirst(req *http.Request, body []byte, next Next) (*http.Response, error) {
	resp, err := next(req)
	if err != nil {
		if entry, _, found := t.lookup(req, body); found {
			return t.serveFromCache(entry, "stale-error", entry.age(t.now())), nil
		}
		return nil, err
	}
	return t.storeResponse(req, body, resp)
}

func (t *Transport) staleWhileRevalidate(req *http.Request, body []byte, next Next) (*http.Response, error) {
	entry, _, found := t.lookup(req, body)
	if !found {
		resp, err := next(req)
		if err != nil {
			return nil, err
		}
		return t.storeResponse(req, body, resp)
	}

	reqDir := parseReqDirectives(req.Header)
	state := entry.checkFreshness(reqDir, t.now())
	if state == fresh {
		return t.serveFromCache(entry, "hit", 0), nil
	}

	go func() {
		resp, err := next(req.Clone(req.Context()))
		if err == nil {
			_, _ = t.storeResponse(req, body, resp)
		}
	}()
	return t.serveFromCache(entry, "stale", entry.age(t.now())), nil
}

func (t *Transport) storeResponse(req *http.Request, body []byte, resp *http.Response) (*http.Response, error) {
	newEntry, ok := buildEntry(resp, t.now())
	if !ok {
		decorate(resp.Header, "BYPASS", 0)
		return resp, nil
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	newEntry.Body = respBody
	t.store(req, body, newEntry)
	resp.Body = io.NopCloser(bytes.NewReader(respBody))
	decorate(resp.Header, "miss", 0)
	return resp, nil
}

// serveFromCache builds a response from a stored Entry, tagging it per
// spec §4.3's X-Cache vocabulary (hit|stale|revalidated|stale-error)
// with a Warning header on the two stale variants (110 vs 111).
func (t *Transport) serveFromCache(entry *Entry, tag string, age time.Duration) *http.Response {
	header := entry.Header.Clone()
	decorate(header, tag, age)
	switch tag {
	case "stale":
		header.Set("Warning", `110 - "Response is Stale"`)
	case "stale-error":
		header.Set("Warning", `111 - "Revalidation Failed"`)
	}
	return &http.Response{
		StatusCode: entry.Status,
		Status:     entry.Reason,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(entry.Body)),
	}
}

func onlyIfCachedResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode: http.StatusGatewayTimeout,
		Status:     "504 Gateway Timeout",
		Header:     http.Header{"X-Cache": []string{"only-if-cached-miss"}},
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Request:    req,
	}
}

func decorate(h http.Header, tag string, age time.Duration) {
	h.Set("X-Cache", tag)
	if age > 0 {
		h.Set("X-Cache-Age", formatSeconds(age))
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}

func addConditionalHeaders(req *http.Request, entry *Entry) {
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	}
	if entry.LastModified != "" {
		req.Header.Set("If-Modified-Since", entry.LastModified)
	}
}

func mergeRevalidationHeaders(entry *Entry, h http.Header) {
	for name, values := range h {
		if len(values) > 0 {
			entry.Header[name] = values
		}
	}
}

func buildEntry(resp *http.Response, now time.Time) (*Entry, bool) {
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, false
	}
	dir := parseRespDirectives(resp.Header)
	if dir.noStore {
		return nil, false
	}
	if req := resp.Request; req != nil && req.Header.Get("Authorization") != "" && !dir.public {
		return nil, false
	}

	e := &Entry{
		Status:               resp.StatusCode,
		Reason:                resp.Status,
		Header:               resp.Header.Clone(),
		CreatedAt:            now,
		ETag:                 resp.Header.Get("ETag"),
		LastModified:         resp.Header.Get("Last-Modified"),
		Vary:                 resp.Header.Get("Vary"),
		MaxAge:               dir.maxAge,
		SMaxAge:              dir.sMaxAge,
		StaleWhileRevalidate: dir.staleWhileRevalidate,
		StaleIfError:         dir.staleIfError,
		NoCache:              dir.noCache,
		NoStore:              dir.noStore,
		MustRevalidate:       dir.mustRevalidate,
		IsPrivate:            dir.private,
		IsPublic:             dir.public,
		HasDateHeader:        resp.Header.Get("Date") != "",
	}
	if exp := resp.Header.Get("Expires"); exp != "" {
		if t, err := http.ParseTime(exp); err == nil {
			e.Expires = &t
		}
	}
	return e, true
}

func drainBody(req *http.Request) ([]byte, *http.Request, error) {
	if req.Body == nil {
		return nil, req, nil
	}
	b, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(b))
	return b, req, nil
}

func serializeEntry(e *Entry) ([]byte, error) { return json.Marshal(e) }

func deserializeEntry(raw []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
