package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 3 (spec §8): with strategy: stale-while-revalidate and a
// cached entry past expiry, the immediate response is tagged stale and
// the store is refreshed shortly after.
func TestStaleWhileRevalidateServesStaleThenRefreshes(t *testing.T) {
	var calls int32
	var mu lockedTime
	mu.set(time.Now())

	next := func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		resp := httptest.NewRecorder()
		resp.Header().Set("Cache-Control", "max-age=1")
		resp.Header().Set("Date", mu.get().Format(http.TimeFormat))
		resp.WriteHeader(http.StatusOK)
		resp.WriteString("v" + time.Now().String())
		return resp.Result(), nil
	}

	storage := NewMemoryStorage(MemoryOptions{})
	tr := NewTransport(Options{Storage: storage, Strategy: StaleWhileRevalidate, Now: mu.get})

	req := newReq(t, http.MethodGet, "https://example.com/y")
	resp1, err := tr.RoundTrip(req, next)
	require.NoError(t, err)
	io.ReadAll(resp1.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Advance the injected clock 2s past the 1s max-age.
	mu.set(mu.get().Add(2 * time.Second))

	resp2, err := tr.RoundTrip(newReq(t, http.MethodGet, "https://example.com/y"), next)
	require.NoError(t, err)
	assert.Equal(t, "stale", resp2.Header.Get("X-Cache"))
	io.ReadAll(resp2.Body)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, time.Second, 5*time.Millisecond, "background revalidation should fire")
}

func TestNetworkFirstFallsBackToCacheOnError(t *testing.T) {
	storage := NewMemoryStorage(MemoryOptions{})
	tr := NewTransport(Options{Storage: storage, Strategy: NetworkFirst})

	ok := func(r *http.Request) (*http.Response, error) {
		resp := httptest.NewRecorder()
		resp.Header().Set("Cache-Control", "max-age=60")
		resp.WriteHeader(http.StatusOK)
		resp.WriteString("cached-body")
		return resp.Result(), nil
	}
	_, err := tr.RoundTrip(newReq(t, http.MethodGet, "https://example.com/z"), ok)
	require.NoError(t, err)

	failing := func(r *http.Request) (*http.Response, error) {
		return nil, assertErr{}
	}
	resp, err := tr.RoundTrip(newReq(t, http.MethodGet, "https://example.com/z"), failing)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "cached-body", string(body))
	assert.Equal(t, "stale-error", resp.Header.Get("X-Cache"))
}

func TestCacheFirstServesStaleWithoutRevalidation(t *testing.T) {
	var calls int32
	storage := NewMemoryStorage(MemoryOptions{})
	tr := NewTransport(Options{Storage: storage, Strategy: CacheFirst})

	next := func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		resp := httptest.NewRecorder()
		resp.WriteHeader(http.StatusOK)
		resp.WriteString("body")
		return resp.Result(), nil
	}
	_, err := tr.RoundTrip(newReq(t, http.MethodGet, "https://example.com/w"), next)
	require.NoError(t, err)
	_, err = tr.RoundTrip(newReq(t, http.MethodGet, "https://example.com/w"), next)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type assertErr struct{}

func (assertErr) Error() string { return "network error" }

type lockedTime struct {
	mu sync.Mutex
	t  time.Time
}

func (l *lockedTime) set(t time.Time) {
	l.mu.Lock()
	l.t = t
	l.mu.Unlock()
}

func (l *lockedTime) get() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.t
}
