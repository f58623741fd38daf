package fetchkit

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHTTPRequestCompressesBodyAboveThreshold(t *testing.T) {
	req, err := NewRequest(http.MethodPost, "http://example.com", []byte("payload-bytes"), nil)
	require.NoError(t, err)
	req.CompressRequestEncoding = "gzip"
	req.CompressThreshold = 4

	httpReq, err := req.toHTTPRequest()
	require.NoError(t, err)
	assert.Equal(t, "gzip", httpReq.Header.Get("Content-Encoding"))

	encoded, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)

	decoded, err := decodeContentEncoding("gzip", bytes.NewReader(encoded))
	require.NoError(t, err)
	got, err := io.ReadAll(decoded)
	require.NoError(t, err)
	assert.Equal(t, "payload-bytes", string(got))
}

func TestToHTTPRequestSkipsCompressionBelowThreshold(t *testing.T) {
	req, err := NewRequest(http.MethodPost, "http://example.com", []byte("tiny"), nil)
	require.NoError(t, err)
	req.CompressRequestEncoding = "gzip"
	req.CompressThreshold = 1024

	httpReq, err := req.toHTTPRequest()
	require.NoError(t, err)
	assert.Equal(t, "", httpReq.Header.Get("Content-Encoding"))

	got, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)
	assert.Equal(t, "tiny", string(got))
}

func TestToHTTPRequestNoCompressionByDefault(t *testing.T) {
	req, err := NewRequest(http.MethodPost, "http://example.com", []byte("body"), nil)
	require.NoError(t, err)

	httpReq, err := req.toHTTPRequest()
	require.NoError(t, err)
	assert.Equal(t, "", httpReq.Header.Get("Content-Encoding"))
}
