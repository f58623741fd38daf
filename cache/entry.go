package cache

import (
	"net/http"
	"time"
)

// Entry is a stored cache entry (spec §3). It is the unit (de)serialized
// by a Storage backend.
type Entry struct {
	Status int
	Reason string
	Header http.Header
	Body   []byte

	CreatedAt time.Time

	ETag         string
	LastModified string
	Vary         string

	MaxAge               *time.Duration
	SMaxAge              *time.Duration
	Expires              *time.Time
	StaleWhileRevalidate *time.Duration
	StaleIfError         *time.Duration
	NoCache              bool
	NoStore              bool
	MustRevalidate       bool
	IsPrivate            bool
	IsPublic             bool

	// HasDateHeader records whether the origin response carried a Date
	// header; per spec §9's ambiguity note, heuristic freshness is only
	// applied when it did.
	HasDateHeader bool
}

// freshness classifies an entry against request directives, per spec
// §4.3's freshness precedence (s-maxage > max-age > Expires > heuristic
// > stale) and §8 Property 3.
type freshnessState int

const (
	stale freshnessState = iota
	fresh
)

// lifetime computes the entry's freshness lifetime, applying the
// precedence s-maxage > max-age > Expires > heuristic (10% of
// Date-Last-Modified) > 0 (spec §4.3, §3 invariant).
func (e *Entry) lifetime() time.Duration {
	if e.SMaxAge != nil {
		return *e.SMaxAge
	}
	if e.MaxAge != nil {
		return *e.MaxAge
	}
	if e.Expires != nil {
		return e.Expires.Sub(e.CreatedAt)
	}
	if e.HasDateHeader && e.LastModified != "" {
		if lm, err := http.ParseTime(e.LastModified); err == nil {
			date := e.CreatedAt
			if d, err := http.ParseTime(e.Header.Get("Date")); err == nil {
				date = d
			}
			heuristic := date.Sub(lm) / 10
			if heuristic > 0 {
				return heuristic
			}
		}
	}
	return 0
}

func (e *Entry) age(now time.Time) time.Duration { return now.Sub(e.CreatedAt) }

// checkFreshness applies request-side max-age/min-fresh/max-stale
// adjustments on top of the entry's own lifetime, per spec §4.3 /
// Property 3.
func (e *Entry) checkFreshness(req reqDirectives, now time.Time) freshnessState {
	lifetime := e.lifetime()
	currentAge := e.age(now)

	if req.maxAge != nil && *req.maxAge < lifetime {
		lifetime = *req.maxAge
	}
	if req.minFresh != nil {
		currentAge += *req.minFresh
	}
	if req.maxStaleUnbounded {
		return fresh
	}
	if req.maxStale != nil {
		currentAge -= *req.maxStale
	}

	if lifetime > currentAge {
		return fresh
	}
	return stale
}

// canServeStaleWhileRevalidate reports whether the entry's
// stale-while-revalidate window still covers the given staleness.
func (e *Entry) canServeStaleWhileRevalidate(now time.Time) bool {
	if e.StaleWhileRevalidate == nil {
		return false
	}
	overBy := e.age(now) - e.lifetime()
	return overBy <= *e.StaleWhileRevalidate
}

// canServeStaleIfError reports whether the entry's stale-if-error
// window still covers the given staleness.
func (e *Entry) canServeStaleIfError(now time.Time) bool {
	if e.StaleIfError == nil {
		return false
	}
	overBy := e.age(now) - e.lifetime()
	return overBy <= *e.StaleIfError
}
