package fetchkit

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyradev/fetchkit/pool"
)

func TestResolveRoundTripperConfiguresHTTP2WhenRequested(t *testing.T) {
	mgr := pool.NewManager(10, true)
	req, err := NewRequest(http.MethodGet, "https://h2.example.com/", nil, nil)
	require.NoError(t, err)
	req.Transport.HTTP2 = true

	u, err := url.Parse(req.URL)
	require.NoError(t, err)

	rt := resolveRoundTripper(TransportConfig{Pool: mgr}, req, u)
	transport, ok := rt.(*http.Transport)
	require.True(t, ok)
	assert.NotEmpty(t, transport.TLSNextProto)
}

func TestResolveRoundTripperDefaultsToSharedPool(t *testing.T) {
	mgr := pool.NewManager(10, false)
	req, err := NewRequest(http.MethodGet, "https://plain.example.com/", nil, nil)
	require.NoError(t, err)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)

	rt := resolveRoundTripper(TransportConfig{Pool: mgr}, req, u)
	assert.Same(t, mgr.GetForURL(u), rt)
}
