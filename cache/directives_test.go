package cache

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReqDirectives(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", `no-cache, max-age=30, min-fresh=10, max-stale=20`)
	d := parseReqDirectives(h)
	assert.True(t, d.noCache)
	assert.False(t, d.noStore)
	require.NotNil(t, d.maxAge)
	assert.Equal(t, 30*time.Second, *d.maxAge)
	require.NotNil(t, d.minFresh)
	assert.Equal(t, 10*time.Second, *d.minFresh)
	require.NotNil(t, d.maxStale)
	assert.Equal(t, 20*time.Second, *d.maxStale)
	assert.False(t, d.maxStaleUnbounded)
}

func TestParseReqDirectivesUnboundedMaxStale(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "max-stale")
	d := parseReqDirectives(h)
	assert.True(t, d.maxStaleUnbounded)
	assert.Nil(t, d.maxStale)
}

func TestParseReqDirectivesOnlyIfCachedAndNoStore(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "only-if-cached, no-store")
	d := parseReqDirectives(h)
	assert.True(t, d.onlyIfCached)
	assert.True(t, d.noStore)
}

func TestParseReqDirectivesLegacyPragma(t *testing.T) {
	h := http.Header{}
	h.Set("Pragma", "no-cache")
	d := parseReqDirectives(h)
	assert.True(t, d.noCache)
}

func TestParseRespDirectivesPrecedenceFields(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "s-maxage=120, max-age=60, must-revalidate, private, stale-while-revalidate=30, stale-if-error=300")
	d := parseRespDirectives(h)
	require.NotNil(t, d.sMaxAge)
	assert.Equal(t, 120*time.Second, *d.sMaxAge)
	require.NotNil(t, d.maxAge)
	assert.Equal(t, 60*time.Second, *d.maxAge)
	assert.True(t, d.mustRevalidate)
	assert.True(t, d.private)
	assert.False(t, d.public)
	require.NotNil(t, d.staleWhileRevalidate)
	assert.Equal(t, 30*time.Second, *d.staleWhileRevalidate)
	require.NotNil(t, d.staleIfError)
	assert.Equal(t, 300*time.Second, *d.staleIfError)
}

func TestParseRespDirectivesNoCacheNoStorePublic(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "no-cache, no-store, public")
	d := parseRespDirectives(h)
	assert.True(t, d.noCache)
	assert.True(t, d.noStore)
	assert.True(t, d.public)
}

func TestParseSecondsRejectsNonNumeric(t *testing.T) {
	_, ok := parseSeconds("abc")
	assert.False(t, ok)
	v, ok := parseSeconds("42")
	assert.True(t, ok)
	assert.Equal(t, 42*time.Second, v)
}
