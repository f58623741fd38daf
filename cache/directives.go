package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// reqDirectives holds the parsed Cache-Control directives of a request,
// per spec §4.3's "Request Cache-Control parsing".
type reqDirectives struct {
	noStore           bool
	noCache           bool
	onlyIfCached      bool
	maxAge            *time.Duration
	minFresh          *time.Duration
	maxStale          *time.Duration // nil when absent or unbounded (see maxStaleUnbounded)
	maxStaleUnbounded bool
}

// respDirectives holds the parsed Cache-Control directives of a
// response, per spec §4.3's "Response Cache-Control parsing".
type respDirectives struct {
	maxAge               *time.Duration
	sMaxAge              *time.Duration
	noCache              bool
	noStore              bool
	mustRevalidate       bool
	public               bool
	private              bool
	staleWhileRevalidate *time.Duration
	staleIfError         *time.Duration
}

func parseReqDirectives(h http.Header) reqDirectives {
	var d reqDirectives
	for key, val := range splitDirectives(h.Get("Cache-Control")) {
		switch key {
		case "no-store":
			d.noStore = true
		case "no-cache":
			d.noCache = true
		case "only-if-cached":
			d.onlyIfCached = true
		case "max-age":
			if dur, ok := parseSeconds(val); ok {
				d.maxAge = &dur
			}
		case "min-fresh":
			if dur, ok := parseSeconds(val); ok {
				d.minFresh = &dur
			}
		case "max-stale":
			if val == "" {
				d.maxStaleUnbounded = true
			} else if dur, ok := parseSeconds(val); ok {
				d.maxStale = &dur
			}
		}
	}
	// Legacy Pragma: no-cache, honored per spec §4.3.
	if strings.Contains(strings.ToLower(h.Get("Pragma")), "no-cache") {
		d.noCache = true
	}
	return d
}

func parseRespDirectives(h http.Header) respDirectives {
	var d respDirectives
	for key, val := range splitDirectives(h.Get("Cache-Control")) {
		switch key {
		case "max-age":
			if dur, ok := parseSeconds(val); ok {
				d.maxAge = &dur
			}
		case "s-maxage":
			if dur, ok := parseSeconds(val); ok {
				d.sMaxAge = &dur
			}
		case "no-cache":
			d.noCache = true
		case "no-store":
			d.noStore = true
		case "must-revalidate":
			d.mustRevalidate = true
		case "public":
			d.public = true
		case "private":
			d.private = true
		case "stale-while-revalidate":
			if dur, ok := parseSeconds(val); ok {
				d.staleWhileRevalidate = &dur
			}
		case "stale-if-error":
			if dur, ok := parseSeconds(val); ok {
				d.staleIfError = &dur
			}
		}
	}
	return d
}

func splitDirectives(header string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "="); idx >= 0 {
			key := strings.ToLower(strings.TrimSpace(part[:idx]))
			val := strings.Trim(strings.TrimSpace(part[idx+1:]), `"`)
			out[key] = val
		} else {
			out[strings.ToLower(part)] = ""
		}
	}
	return out
}

func parseSeconds(v string) (time.Duration, bool) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
