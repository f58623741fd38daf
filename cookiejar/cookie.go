// Package cookiejar implements an RFC-6265 cookie jar (spec §4.8):
// domain/path matching, expiration, and Secure enforcement. SameSite is
// parsed and stored on each Cookie but not consulted when selecting
// cookies for a request.
package cookiejar

import "time"

// SameSite enumerates the cookie's SameSite attribute.
type SameSite string

const (
	SameSiteStrict SameSite = "Strict"
	SameSiteLax    SameSite = "Lax"
	SameSiteNone   SameSite = "None"
)

// Priority enumerates the (non-standard, Chromium) cookie priority hint.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Cookie is one stored cookie, per spec §3.
type Cookie struct {
	Name    string
	Value   string
	Domain  string // lower-case, no leading dot
	Path    string
	Expires time.Time // zero means "no absolute expiry"
	MaxAge  *int      // seconds, signed; nil means unset

	Secure      bool
	HTTPOnly    bool
	SameSite    SameSite
	Partitioned bool
	Priority    Priority
	CreatedAt   time.Time
}

// expired reports whether c has expired as of now, honoring Max-Age
// precedence over Expires (spec §4.8): Max-Age <= 0 means delete
// immediately; a session cookie (neither field set) never expires in
// memory.
func (c *Cookie) expired(now time.Time) bool {
	if c.MaxAge != nil {
		if *c.MaxAge <= 0 {
			return true
		}
		return now.After(c.CreatedAt.Add(time.Duration(*c.MaxAge) * time.Second))
	}
	if !c.Expires.IsZero() {
		return now.After(c.Expires)
	}
	return false
}
