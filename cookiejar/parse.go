package cookiejar

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var cookieNameRuneOK = func(r rune) bool {
	// RFC 6265 cookie-name is a token: no separators/ctl/space.
	switch r {
	case '(', ')', '<', '>', '@', ',', ';', ':', '\\', '"', '/', '[', ']',
		'?', '=', '{', '}', ' ', '\t':
		return false
	}
	return r > 0x20 && r < 0x7f
}

func validCookieName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !cookieNameRuneOK(r) {
			return false
		}
	}
	return true
}

func validCookieValue(v string) bool {
	v = strings.TrimPrefix(strings.TrimSuffix(v, `"`), `"`)
	for _, r := range v {
		if r < 0x21 || r == 0x22 || r == 0x2c || r == 0x3b || r == 0x5c || r > 0x7e {
			return false
		}
	}
	return true
}

// parseSetCookie parses one Set-Cookie header value received from u,
// validating the cookie per spec §4.8 step 1: name/value/attribute
// regexes and domain/path containment. Returns an error for malformed
// input, which callers must reject silently (after logging).
func parseSetCookie(raw string, u *url.URL) (*Cookie, error) {
	parts := strings.Split(raw, ";")
	if len(parts) == 0 {
		return nil, fmt.Errorf("cookiejar: empty Set-Cookie")
	}
	nv := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
	if len(nv) != 2 {
		return nil, fmt.Errorf("cookiejar: missing name=value in %q", raw)
	}
	name := strings.TrimSpace(nv[0])
	value := strings.TrimSpace(nv[1])
	if !validCookieName(name) {
		return nil, fmt.Errorf("cookiejar: invalid cookie name %q", name)
	}
	if !validCookieValue(value) {
		return nil, fmt.Errorf("cookiejar: invalid cookie value for %q", name)
	}
	if strings.Contains(value, "%") {
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
	}

	c := &Cookie{
		Name:      name,
		Value:     value,
		Domain:    strings.ToLower(u.Hostname()),
		Path:      defaultPath(u.Path),
		CreatedAt: time.Now(),
	}

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		var key, val string
		if idx := strings.Index(attr, "="); idx >= 0 {
			key, val = attr[:idx], attr[idx+1:]
		} else {
			key = attr
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "domain":
			d := strings.ToLower(strings.TrimSpace(val))
			d = strings.TrimPrefix(d, ".")
			if d == "" {
				continue
			}
			if !domainIsSuffixOfHost(d, u.Hostname()) {
				return nil, fmt.Errorf("cookiejar: domain %q not a suffix of host %q", d, u.Hostname())
			}
			c.Domain = d
		case "path":
			p := strings.TrimSpace(val)
			if strings.HasPrefix(p, "/") {
				c.Path = p
			}
		case "expires":
			t, err := time.Parse(time.RFC1123, strings.TrimSpace(val))
			if err != nil {
				t, err = time.Parse(time.RFC850, strings.TrimSpace(val))
			}
			if err == nil {
				c.Expires = t
			}
		case "max-age":
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return nil, fmt.Errorf("cookiejar: invalid max-age %q", val)
			}
			c.MaxAge = &n
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		case "samesite":
			switch strings.ToLower(strings.TrimSpace(val)) {
			case "strict":
				c.SameSite = SameSiteStrict
			case "lax":
				c.SameSite = SameSiteLax
			case "none":
				c.SameSite = SameSiteNone
			}
		case "partitioned":
			c.Partitioned = true
		case "priority":
			switch strings.ToLower(strings.TrimSpace(val)) {
			case "low":
				c.Priority = PriorityLow
			case "medium":
				c.Priority = PriorityMedium
			case "high":
				c.Priority = PriorityHigh
			}
		}
	}

	return c, nil
}

// domainIsSuffixOfHost reports whether d is host itself or a dot-suffix
// of host, per spec §4.8 step 3.
func domainIsSuffixOfHost(d, host string) bool {
	host = strings.ToLower(host)
	if d == host {
		return true
	}
	return strings.HasSuffix(host, "."+d)
}
