package fetchkit

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// decodeContentEncoding decodes a response body through each
// Content-Encoding layer in the order they were applied (outermost
// last, per RFC 9110 §8.4), supporting gzip, deflate and br.
func decodeContentEncoding(encoding string, reader io.Reader) (io.Reader, error) {
	body := reader
	for _, encode := range strings.Split(encoding, ",") {
		var err error
		switch strings.TrimSpace(strings.ToLower(encode)) {
		case "deflate":
			body, err = zlib.NewReader(body)
		case "gzip":
			body, err = gzip.NewReader(body)
		case "br":
			body = brotli.NewReader(body)
		case "", "identity":
			// no-op
		default:
			err = fmt.Errorf("fetchkit: unsupported content-encoding %q", encode)
		}
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

// encodeRequestBody compresses an outgoing request body with the named
// encoding (gzip, br or deflate) and returns the encoded bytes. The
// CompressThreshold check and the Content-Encoding header are handled
// by the caller, toHTTPRequest.
func encodeRequestBody(body []byte, encoding string) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(encoding) {
	case "gzip":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "deflate":
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "br":
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("fetchkit: unsupported request content-encoding %q", encoding)
	}
	return buf.Bytes(), nil
}
