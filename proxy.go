package fetchkit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
)

// roundRobinProxy cycles through a fixed list of proxy URLs, adapted
// from the request-context proxy selection pattern: callers attach a
// list via WithRoundRobinProxy and each outgoing request picks the
// next one.
type roundRobinProxy struct {
	urls  []*url.URL
	index uint32
}

func (r *roundRobinProxy) next() *url.URL {
	i := atomic.AddUint32(&r.index, 1) - 1
	return r.urls[i%uint32(len(r.urls))]
}

// newRoundRobinProxy parses proxyURLs and returns a KindUnsupported error
// for the first one that fails to parse or uses a socks scheme.
func newRoundRobinProxy(proxyURLs ...string) (*roundRobinProxy, error) {
	if len(proxyURLs) == 0 {
		return nil, nil
	}
	parsed := make([]*url.URL, 0, len(proxyURLs))
	for _, raw := range proxyURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, UnsupportedError(nil, fmt.Errorf("invalid proxy url %q: %w", raw, err))
		}
		if strings.HasPrefix(strings.ToLower(u.Scheme), "socks") {
			return nil, UnsupportedError(nil, fmt.Errorf("socks proxies are not supported: %q", raw))
		}
		parsed = append(parsed, u)
	}
	return &roundRobinProxy{urls: parsed}, nil
}

// ProxyConfig is the structured proxy configuration named in spec §6:
// a single proxy (or a pre-resolved URL) plus auth, a bypass list, extra
// headers to send the proxy, and separate TLS handling for the tunnel
// vs the origin. ProxyFunc applies only URL, Username/Password and
// Bypass; Headers, Tunnel, HTTP2Tunnel, ProxyTLS and OriginTLS are not
// read by any code path. A socks URL is rejected when ProxyFunc resolves
// it for a request, not when the config is built.
type ProxyConfig struct {
	URL      string
	Username string
	Password string
	Bypass   []string
	Headers  map[string]string
	Tunnel   bool
	HTTP2Tunnel bool
	ProxyTLS *TLSOptions
	OriginTLS *TLSOptions
}

// ProxyFunc resolves this static config into an http.Transport-style
// proxy function, applying the bypass list the same way EnvProxyConfig does.
func (c *ProxyConfig) ProxyFunc(req *http.Request) (*url.URL, error) {
	if c == nil || c.URL == "" {
		return nil, nil
	}
	env := EnvProxyConfig{NoProxy: strings.Join(c.Bypass, ",")}
	if env.bypassed(req.URL.Hostname()) {
		return nil, nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.ToLower(u.Scheme), "socks") {
		return nil, UnsupportedError(nil, fmt.Errorf("socks proxies are not supported: %q", c.URL))
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u, nil
}

type proxyContextKey struct{}

// WithRoundRobinProxy returns a context that makes subsequent requests
// cycle through proxyURLs round-robin. If any URL is invalid or uses a
// socks scheme, the error is logged and ctx is returned unchanged, so no
// rotation is attached.
func WithRoundRobinProxy(ctx context.Context, proxyURLs ...string) context.Context {
	if len(proxyURLs) == 0 {
		return ctx
	}
	rr, err := newRoundRobinProxy(proxyURLs...)
	if err != nil {
		slog.Error("fetchkit: proxy rotation disabled", "error", err)
		return ctx
	}
	return context.WithValue(ctx, proxyContextKey{}, rr)
}

// proxyFromContext resolves a proxy URL rotated from the request's
// context, if one was attached with WithRoundRobinProxy.
func proxyFromContext(req *http.Request) (*url.URL, error) {
	if rr, ok := req.Context().Value(proxyContextKey{}).(*roundRobinProxy); ok && rr != nil {
		return rr.next(), nil
	}
	return nil, nil
}

// EnvProxyConfig resolves proxies from HTTP_PROXY/HTTPS_PROXY/ALL_PROXY
// and bypasses hosts matched by NO_PROXY, with support for `*`, domain
// suffixes (`.foo.com`), exact hostnames, `host:port`, and CIDR ranges.
type EnvProxyConfig struct {
	HTTPProxy  string
	HTTPSProxy string
	AllProxy   string
	NoProxy    string
}

// EnvProxyConfigFromEnvironment reads the conventional proxy
// environment variables (upper and lower case).
func EnvProxyConfigFromEnvironment() EnvProxyConfig {
	get := func(names ...string) string {
		for _, n := range names {
			if v := os.Getenv(n); v != "" {
				return v
			}
		}
		return ""
	}
	return EnvProxyConfig{
		HTTPProxy:  get("HTTP_PROXY", "http_proxy"),
		HTTPSProxy: get("HTTPS_PROXY", "https_proxy"),
		AllProxy:   get("ALL_PROXY", "all_proxy"),
		NoProxy:    get("NO_PROXY", "no_proxy"),
	}
}

// ProxyFunc resolves the proxy URL (if any) to use for req, combining
// per-request context rotation with environment-derived defaults.
func (c EnvProxyConfig) ProxyFunc(req *http.Request) (*url.URL, error) {
	if u, err := proxyFromContext(req); err != nil || u != nil {
		return u, err
	}
	if c.bypassed(req.URL.Hostname()) {
		return nil, nil
	}
	raw := c.AllProxy
	switch req.URL.Scheme {
	case "https":
		if c.HTTPSProxy != "" {
			raw = c.HTTPSProxy
		}
	case "http":
		if c.HTTPProxy != "" {
			raw = c.HTTPProxy
		}
	}
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.ToLower(u.Scheme), "socks") {
		return nil, UnsupportedError(nil, fmt.Errorf("socks proxies are not supported: %q", raw))
	}
	return u, nil
}

// bypassed reports whether host matches any NO_PROXY entry.
func (c EnvProxyConfig) bypassed(host string) bool {
	if c.NoProxy == "" {
		return false
	}
	ip := net.ParseIP(host)
	for _, entry := range strings.Split(c.NoProxy, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		if _, cidr, err := net.ParseCIDR(entry); err == nil && ip != nil {
			if cidr.Contains(ip) {
				return true
			}
			continue
		}
		if h, _, err := net.SplitHostPort(entry); err == nil {
			entry = h
		}
		if strings.HasPrefix(entry, ".") {
			if strings.HasSuffix(host, entry) || host == strings.TrimPrefix(entry, ".") {
				return true
			}
			continue
		}
		if host == entry {
			return true
		}
	}
	return false
}
