package cache

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func dur(s int) *time.Duration {
	d := time.Duration(s) * time.Second
	return &d
}

// Property 3: Cache-Control: max-age=60 served 30s ago; a request with
// min-fresh=60 must NOT be served; max-stale must serve once past expiry.
func TestCheckFreshnessMinFreshRejectsNearExpiry(t *testing.T) {
	now := time.Now()
	e := &Entry{CreatedAt: now.Add(-30 * time.Second), MaxAge: dur(60)}
	state := e.checkFreshness(reqDirectives{minFresh: dur(60)}, now)
	assert.Equal(t, stale, state)
}

func TestCheckFreshnessPlainRequestServedFresh(t *testing.T) {
	now := time.Now()
	e := &Entry{CreatedAt: now.Add(-30 * time.Second), MaxAge: dur(60)}
	state := e.checkFreshness(reqDirectives{}, now)
	assert.Equal(t, fresh, state)
}

func TestCheckFreshnessMaxStaleServesAfterExpiry(t *testing.T) {
	now := time.Now()
	e := &Entry{CreatedAt: now.Add(-90 * time.Second), MaxAge: dur(60)}
	// Without max-stale, 90s old with a 60s lifetime is stale.
	assert.Equal(t, stale, e.checkFreshness(reqDirectives{}, now))
	// With max-stale covering the 30s overage, it's treated as fresh.
	assert.Equal(t, fresh, e.checkFreshness(reqDirectives{maxStale: dur(60)}, now))
}

func TestCheckFreshnessMaxStaleUnboundedAlwaysFresh(t *testing.T) {
	now := time.Now()
	e := &Entry{CreatedAt: now.Add(-10000 * time.Second), MaxAge: dur(1)}
	assert.Equal(t, fresh, e.checkFreshness(reqDirectives{maxStaleUnbounded: true}, now))
}

func TestLifetimePrecedenceSMaxAgeOverMaxAge(t *testing.T) {
	e := &Entry{SMaxAge: dur(120), MaxAge: dur(60)}
	assert.Equal(t, 120*time.Second, e.lifetime())
}

func TestLifetimePrecedenceMaxAgeOverExpires(t *testing.T) {
	now := time.Now()
	expires := now.Add(10 * time.Second)
	e := &Entry{CreatedAt: now, MaxAge: dur(60), Expires: &expires}
	assert.Equal(t, 60*time.Second, e.lifetime())
}

func TestLifetimeHeuristicRequiresDateHeader(t *testing.T) {
	now := time.Now()
	e := &Entry{
		CreatedAt:     now,
		LastModified:  now.Add(-100 * time.Second).Format(http.TimeFormat),
		HasDateHeader: false,
	}
	assert.Equal(t, time.Duration(0), e.lifetime())
}

func TestLifetimeHeuristicWithDateHeader(t *testing.T) {
	now := time.Now()
	e := &Entry{
		CreatedAt:     now,
		LastModified:  now.Add(-100 * time.Second).Format(http.TimeFormat),
		HasDateHeader: true,
	}
	assert.InDelta(t, 10*time.Second, e.lifetime(), float64(time.Second))
}

func TestCanServeStaleWhileRevalidateWindow(t *testing.T) {
	now := time.Now()
	e := &Entry{CreatedAt: now.Add(-70 * time.Second), MaxAge: dur(60), StaleWhileRevalidate: dur(30)}
	assert.True(t, e.canServeStaleWhileRevalidate(now))
	e2 := &Entry{CreatedAt: now.Add(-200 * time.Second), MaxAge: dur(60), StaleWhileRevalidate: dur(30)}
	assert.False(t, e2.canServeStaleWhileRevalidate(now))
}

func TestCanServeStaleIfErrorWindow(t *testing.T) {
	now := time.Now()
	e := &Entry{CreatedAt: now.Add(-70 * time.Second), MaxAge: dur(60), StaleIfError: dur(30)}
	assert.True(t, e.canServeStaleIfError(now))
	e2 := &Entry{CreatedAt: now.Add(-200 * time.Second), MaxAge: dur(60), StaleIfError: dur(30)}
	assert.False(t, e2.canServeStaleIfError(now))
}
