package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
)

// fingerprint computes the primary cache key for a request: method, URL,
// and a short hash of the body (for non-GET/HEAD methods), per spec
// §4.2's "Cache key fingerprinting".
func fingerprint(req *http.Request, body []byte) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(req.URL.String())
	if len(body) > 0 && req.Method != http.MethodGet && req.Method != http.MethodHead {
		b.WriteByte(' ')
		b.WriteString(hashBody(body))
	}
	return b.String()
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])[:16]
}

// varyKey derives the secondary, Vary-aware key from the primary
// fingerprint and the subset of request headers named by the stored
// Vary header, per spec §4.2's two-level marker/full-entry protocol.
//
// "Vary: *" can never be satisfied by a later request, so it is
// synthesized into a key no future request will ever reproduce.
func varyKey(primary string, varyHeader string, reqHeader http.Header) string {
	if varyHeader == "" {
		return primary
	}
	names := splitVaryNames(varyHeader)
	if len(names) == 1 && names[0] == "*" {
		return primary + "\x00vary:*:unmatchable"
	}

	sort.Strings(names)
	var b strings.Builder
	b.WriteString(primary)
	for _, n := range names {
		b.WriteByte('\x00')
		b.WriteString(strings.ToLower(n))
		b.WriteByte('=')
		b.WriteString(reqHeader.Get(n))
	}
	return b.String()
}

func splitVaryNames(header string) []string {
	var names []string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}

// markerKey is the key under which the set of Vary header names for a
// primary fingerprint is stored, so a later request can compute the
// correct varyKey before it knows the response.
func markerKey(primary string) string { return primary + "\x00marker" }
