package fetchkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

// TimeoutPolicy sets the four timeout dials spec §4.2 names: connect,
// headers (time to first byte), body (per-read inactivity) and the
// overall wall-clock request budget. Zero means "no limit" for that dial.
// The transport enforces only Total; Connect, Headers and Body are
// carried on the request but not applied.
type TimeoutPolicy struct {
	Connect time.Duration
	Headers time.Duration
	Body    time.Duration
	Total   time.Duration
}

// RedirectPolicy governs how the transport follows 3xx responses.
type RedirectPolicy struct {
	Follow         bool
	MaxRedirects   int
	BeforeRedirect func(from, to *url.URL, status int) (any, error)
}

// DefaultRedirectPolicy follows up to 10 redirects.
func DefaultRedirectPolicy() RedirectPolicy {
	return RedirectPolicy{Follow: true, MaxRedirects: 10}
}

// ProgressFunc receives upload/download progress ticks. Direction is
// "upload" or "download". Total is 0 when unknown.
type ProgressFunc func(sent, total int64, rate float64, direction string)

// TLSOptions carries the TLS overrides named in spec §6. MinVersion/
// MaxVersion use the crypto/tls numeric constants; Ciphers and
// ALPNProtocols are explicit, ordered lists so a caller can shape a
// non-default ClientHello without the client reimplementing its own
// TLS stack. The transport does not read these: connections use the
// pool's default crypto/tls settings.
type TLSOptions struct {
	MinVersion         uint16
	MaxVersion         uint16
	Ciphers            []uint16
	CA                 []byte
	Cert               []byte
	Key                []byte
	Passphrase         string
	RejectUnauthorized bool
	ALPNProtocols      []string
	ServerName         string
}

// DNSOptions carries resolver overrides named in spec §6.
type DNSOptions struct {
	Servers    []string
	PreferIPv4 bool
	Override   func(ctx context.Context, host string) ([]string, error)
}

// TransportHints groups the optional, rarely-set transport-level knobs.
type TransportHints struct {
	HTTP2 bool
	TLS   *TLSOptions
	DNS   *DNSOptions
	Proxy *ProxyConfig
}

// Request is the client's request representation. It is immutable after
// construction except by hooks that return a replacement (spec §4.1).
type Request struct {
	ctx    context.Context
	cancel context.CancelFunc

	Method  string
	URL     string
	Header  http.Header
	Body    io.Reader
	// BodyBytes retains a seekable copy of Body when available, so retry
	// and dedup can re-issue the same request without the caller's
	// reader being consumed twice.
	BodyBytes []byte

	Timeout          TimeoutPolicy
	Redirect         RedirectPolicy
	ThrowHTTPErrors  bool
	MaxResponseSize  int64

	OnUploadProgress   ProgressFunc
	OnDownloadProgress ProgressFunc

	Transport TransportHints

	// CompressRequestEncoding, when non-empty ("gzip", "deflate", or
	// "br"), compresses the outgoing body once it reaches
	// CompressThreshold bytes and sets Content-Encoding accordingly
	// (spec §4.4's optional outgoing-compression note).
	CompressRequestEncoding string
	CompressThreshold       int64

	// Retry/Cache/Dedup carry per-request overrides of the client-level
	// policies; nil means "use client default".
	Retry *RetryPolicy
	Cache *CacheOptions
	Dedup *DedupOptions

	// Attempt is incremented by the retry middleware; Elapsed is set by
	// the transport once a response (or terminal error) is produced.
	Attempt int
	Elapsed time.Duration

	// redirectChain is an observability field copied onto
	// Response.Redirects once the transport completes.
	redirectChain []string
}

// NewRequest builds a Request. body accepts nil, string, []byte, a
// fmt.Stringer, an io.Reader, url.Values (form-encoded), or any
// struct/map/slice (JSON-encoded) — the same shapes the teacher's
// fetch.NewRequest recognizes.
func NewRequest(method, rawURL string, body any, headers map[string]string) (*Request, error) {
	req := &Request{
		Method:          strings.ToUpper(method),
		URL:             rawURL,
		Header:          http.Header{},
		ThrowHTTPErrors: true,
		Redirect:        DefaultRedirectPolicy(),
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if body == nil {
		return req, nil
	}

	switch data := body.(type) {
	case io.Reader:
		req.Body = data
	case url.Values:
		req.BodyBytes = []byte(data.Encode())
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	case fmt.Stringer:
		req.BodyBytes = []byte(data.String())
	case string:
		req.BodyBytes = []byte(data)
	case []byte:
		req.BodyBytes = data
	default:
		kind := reflect.ValueOf(body).Kind()
		if kind != reflect.Struct && kind != reflect.Map && kind != reflect.Array && kind != reflect.Slice {
			return nil, fmt.Errorf("fetchkit: unsupported body type %T", body)
		}
		j, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("fetchkit: encode json body: %w", err)
		}
		req.BodyBytes = j
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if req.BodyBytes != nil {
		req.Body = bytes.NewReader(req.BodyBytes)
	}
	return req, nil
}

// NewMultipartRequest builds a multipart/form-data request from fields,
// where a []byte or io.Reader value becomes a file part and anything
// else becomes a plain field, following the shape the teacher's tests
// exercise via mime/multipart directly.
func NewMultipartRequest(method, rawURL string, fields map[string]any, headers map[string]string) (*Request, error) {
	buf := &bytes.Buffer{}
	mpw := multipart.NewWriter(buf)
	for k, v := range fields {
		switch f := v.(type) {
		case []byte:
			fw, err := mpw.CreateFormFile(k, k)
			if err != nil {
				return nil, err
			}
			if _, err := fw.Write(f); err != nil {
				return nil, err
			}
		case io.Reader:
			fw, err := mpw.CreateFormFile(k, k)
			if err != nil {
				return nil, err
			}
			if _, err := io.Copy(fw, f); err != nil {
				return nil, err
			}
		default:
			if err := mpw.WriteField(k, fmt.Sprintf("%v", v)); err != nil {
				return nil, err
			}
		}
	}
	if err := mpw.Close(); err != nil {
		return nil, err
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = mpw.FormDataContentType()
	req, err := NewRequest(method, rawURL, buf.Bytes(), headers)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Context returns the request's cancellation context, creating a
// background one lazily so callers can always rely on a non-nil value.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		r.ctx, r.cancel = context.WithCancel(context.Background())
	}
	return r.ctx
}

// WithContext attaches an external cancellation handle (spec §4.1): if
// ctx is cancelled, the request's own handle is cancelled too.
func (r *Request) WithContext(ctx context.Context) *Request {
	r.ctx, r.cancel = context.WithCancel(ctx)
	return r
}

// Cancel aborts the request's internal cancellation handle.
func (r *Request) Cancel() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Clone returns a shallow copy safe for hooks to mutate and return as a
// replacement request, per spec §4.1's beforeRequest semantics.
func (r *Request) Clone() *Request {
	clone := *r
	clone.Header = r.Header.Clone()
	if r.BodyBytes != nil {
		clone.BodyBytes = append([]byte(nil), r.BodyBytes...)
		clone.Body = bytes.NewReader(clone.BodyBytes)
	}
	clone.redirectChain = append([]string(nil), r.redirectChain...)
	return &clone
}

// bodyReader returns a fresh reader over the request body, so retries
// and redirects can re-send the same bytes.
func (r *Request) bodyReader() io.Reader {
	if r.BodyBytes != nil {
		return bytes.NewReader(r.BodyBytes)
	}
	return r.Body
}

// toHTTPRequest materializes a *http.Request for the transport, compressing
// the body first if CompressRequestEncoding is set and the body has
// reached CompressThreshold bytes.
func (r *Request) toHTTPRequest() (*http.Request, error) {
	reader := r.bodyReader()
	compressed := false
	if r.CompressRequestEncoding != "" && r.BodyBytes != nil && int64(len(r.BodyBytes)) >= r.CompressThreshold {
		encoded, err := encodeRequestBody(r.BodyBytes, r.CompressRequestEncoding)
		if err != nil {
			return nil, fmt.Errorf("fetchkit: compress request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
		compressed = true
	}

	httpReq, err := http.NewRequestWithContext(r.Context(), r.Method, r.URL, reader)
	if err != nil {
		return nil, err
	}
	for k, vv := range r.Header {
		if !httpguts.ValidHeaderFieldName(k) {
			continue
		}
		httpReq.Header[k] = append([]string(nil), vv...)
	}
	if compressed {
		httpReq.Header.Set("Content-Encoding", r.CompressRequestEncoding)
	}
	return httpReq, nil
}

// Validate checks the invariants spec §3 requires before dispatch: the
// URL must be absolute.
func (r *Request) Validate() error {
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("fetchkit: parse url: %w", err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("fetchkit: url %q is not absolute", r.URL)
	}
	return nil
}
