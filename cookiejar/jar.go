package cookiejar

import (
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Jar is an RFC-6265 in-memory cookie store keyed by (domain, path,
// name), per spec §4.8. The nested map mirrors the spec's described
// shape: domain -> path -> name -> cookie.
type Jar struct {
	mu    sync.RWMutex
	store map[string]map[string]map[string]*Cookie
	now   func() time.Time
}

// New builds an empty Jar.
func New() *Jar {
	return &Jar{
		store: make(map[string]map[string]map[string]*Cookie),
		now:   time.Now,
	}
}

// SetClock overrides the jar's notion of "now", for deterministic tests.
func (j *Jar) SetClock(now func() time.Time) { j.now = now }

// SetCookies parses every Set-Cookie header value in headers received
// from u and stores the valid ones, silently rejecting malformed
// cookies (spec §4.8 step 1) after logging at Warn.
func (j *Jar) SetCookies(u *url.URL, headers []string) {
	for _, raw := range headers {
		c, err := parseSetCookie(raw, u)
		if err != nil {
			slog.Warn("cookiejar: rejecting malformed cookie", "url", u.String(), "error", err)
			continue
		}
		j.store1(c)
	}
}

// SetCookiesFromHeader is a convenience wrapper over SetCookies for an
// http.Header carrying Set-Cookie values.
func (j *Jar) SetCookiesFromHeader(u *url.URL, h http.Header) {
	j.SetCookies(u, h.Values("Set-Cookie"))
}

func (j *Jar) store1(c *Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if c.expired(j.now()) {
		j.deleteLocked(c.Domain, c.Path, c.Name)
		return
	}
	byPath, ok := j.store[c.Domain]
	if !ok {
		byPath = make(map[string]map[string]*Cookie)
		j.store[c.Domain] = byPath
	}
	byName, ok := byPath[c.Path]
	if !ok {
		byName = make(map[string]*Cookie)
		byPath[c.Path] = byName
	}
	byName[c.Name] = c // insert replaces, per spec invariant
}

func (j *Jar) deleteLocked(domain, path, name string) {
	if byPath, ok := j.store[domain]; ok {
		if byName, ok := byPath[path]; ok {
			delete(byName, name)
			if len(byName) == 0 {
				delete(byPath, path)
			}
		}
		if len(byPath) == 0 {
			delete(j.store, domain)
		}
	}
}

// Set directly inserts a Cookie, bypassing Set-Cookie parsing — useful
// for programmatic cookie injection.
func (j *Jar) Set(c *Cookie) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = j.now()
	}
	j.store1(c)
}

// Clear removes every stored cookie.
func (j *Jar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.store = make(map[string]map[string]map[string]*Cookie)
}

// Cookies returns the Cookie header value for request URL u, selecting
// matching, non-expired cookies (spec §4.8 emission algorithm), sorted
// by path length descending then creation time ascending.
func (j *Jar) Cookies(u *url.URL) string {
	matches := j.match(u)
	if len(matches) == 0 {
		return ""
	}
	parts := make([]string, len(matches))
	for i, c := range matches {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}

// CookiesList is like Cookies but returns the matched Cookie values
// instead of a pre-joined header string.
func (j *Jar) CookiesList(u *url.URL) []*Cookie {
	return j.match(u)
}

func (j *Jar) match(u *url.URL) []*Cookie {
	host := strings.ToLower(u.Hostname())
	isHTTPS := u.Scheme == "https"
	reqPath := u.Path
	if reqPath == "" {
		reqPath = "/"
	}
	now := j.now()

	j.mu.Lock() // write lock: expired cookies are evicted below
	defer j.mu.Unlock()

	var out []*Cookie
	for domain, byPath := range j.store {
		if !domainMatches(domain, host) {
			continue
		}
		for path, byName := range byPath {
			if !pathMatches(path, reqPath) {
				continue
			}
			for name, c := range byName {
				if c.expired(now) {
					delete(byName, name)
					continue
				}
				if c.Secure && !isHTTPS {
					continue
				}
				out = append(out, c)
			}
			if len(byName) == 0 {
				delete(byPath, path)
			}
		}
		if len(byPath) == 0 {
			delete(j.store, domain)
		}
	}

	sort.SliceStable(out, func(i, k int) bool {
		if len(out[i].Path) != len(out[k].Path) {
			return len(out[i].Path) > len(out[k].Path)
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}

// domainMatches reports whether host matches the stored cookie domain,
// either exactly or as a suffix on a label boundary (spec §4.8 step 1,
// emission step 1). publicsuffix.EffectiveTLDPlusOne guards against a
// cookie domain that is itself a public suffix being treated as a
// valid match (e.g. a cookie scoped to "com").
func domainMatches(cookieDomain, host string) bool {
	if cookieDomain == host {
		return true
	}
	if !strings.HasSuffix(host, "."+cookieDomain) {
		return false
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(cookieDomain); err != nil {
		// cookieDomain is itself a public suffix (e.g. "co.uk"); only an
		// exact match is allowed, which was already checked above.
		return false
	}
	return true
}

// pathMatches implements RFC 6265 §5.1.4 path matching: exact match, or
// requestPath starts with cookiePath and the next character (or the
// cookiePath's own trailing slash) is a "/" boundary.
func pathMatches(cookiePath, requestPath string) bool {
	if cookiePath == requestPath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if strings.HasSuffix(cookiePath, "/") {
		return true
	}
	return requestPath[len(cookiePath)] == '/'
}

// defaultPath computes the default Path attribute for a cookie received
// from requestPath, per RFC 6265 §5.1.4: the directory of the path, or
// "/" if there is none.
func defaultPath(requestPath string) string {
	if requestPath == "" || requestPath[0] != '/' {
		return "/"
	}
	idx := strings.LastIndex(requestPath, "/")
	if idx == 0 {
		return "/"
	}
	return requestPath[:idx]
}
