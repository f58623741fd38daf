package fetchkit

import (
	"net/url"
	"strings"

	"github.com/nyradev/fetchkit/cookiejar"
)

// XSRFOptions configures the XSRF middleware (spec §4.4): copy a named
// cookie's value into a named request header for methods in Methods.
type XSRFOptions struct {
	CookieName string
	HeaderName string
	Methods    map[string]bool
}

// DefaultXSRFOptions copies the common "XSRF-TOKEN" cookie into
// "X-XSRF-TOKEN" for the unsafe methods.
func DefaultXSRFOptions() XSRFOptions {
	return XSRFOptions{
		CookieName: "XSRF-TOKEN",
		HeaderName: "X-XSRF-TOKEN",
		Methods: map[string]bool{
			"POST": true, "PUT": true, "PATCH": true, "DELETE": true,
		},
	}
}

// xsrfMiddleware builds a Middleware implementing XSRFOptions. The
// canonical flow is a server Set-Cookie populating jar, which this
// middleware then echoes as a header on the next unsafe-method request —
// jar is consulted directly since the Cookie header itself is only set
// later, by dispatchOnce, downstream of this middleware in the chain.
func xsrfMiddleware(jar *cookiejar.Jar, opt XSRFOptions) Middleware {
	return func(req *Request, next Next) (*Response, error) {
		if opt.Methods[req.Method] {
			if token, ok := xsrfCookieValue(jar, req, opt.CookieName); ok {
				req.Header.Set(opt.HeaderName, token)
			}
		}
		return next(req)
	}
}

// xsrfCookieValue looks up name in jar for req's URL, falling back to an
// explicit Cookie header for callers that manage cookies by hand without
// a Jar.
func xsrfCookieValue(jar *cookiejar.Jar, req *Request, name string) (string, bool) {
	if jar != nil {
		if u, err := url.Parse(req.URL); err == nil {
			for _, c := range jar.CookiesList(u) {
				if c.Name == name {
					return c.Value, true
				}
			}
		}
	}
	return cookieValue(req.Header.Get("Cookie"), name)
}

// cookieValue extracts a single cookie's value from a raw Cookie header.
func cookieValue(cookieHeader, name string) (string, bool) {
	for _, part := range strings.Split(cookieHeader, ";") {
		part = strings.TrimSpace(part)
		k, v, found := strings.Cut(part, "=")
		if found && k == name {
			return v, true
		}
	}
	return "", false
}
