package fetchkit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
)

// Timings carries the granular phase measurements spec §3 requires.
type Timings struct {
	DNS     time.Duration
	Connect time.Duration
	TLS     time.Duration
	TTFB    time.Duration
	Total   time.Duration
}

// Connection carries protocol/cipher observability fields.
type Connection struct {
	Protocol string
	Cipher   string
	Reused   bool
}

// SSEEvent is one parsed server-sent event.
type SSEEvent struct {
	ID    string
	Event string
	Data  string
	Retry string
}

// Response is the client's response representation. Its body is
// single-consumption; Clone tees the underlying stream for middlewares
// (notably the cache) that must inspect and still forward the body.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	URL        string

	Timings    Timings
	Connection Connection
	Redirects  []string
	RetryCount int

	request *Request
	body    io.ReadCloser
	cached  bool

	once      sync.Once
	buffered  []byte
	bufferErr error
}

// OK reports whether the status code is in [200, 400).
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 400 }

// newResponse adapts a *http.Response into a Response. The size-enforcing
// and progress-instrumented body wrappers are applied to hr.Body by
// dispatchOnce (transport.go) before it is called.
func newResponse(req *Request, hr *http.Response) *Response {
	return &Response{
		StatusCode: hr.StatusCode,
		Status:     hr.Status,
		Header:     hr.Header,
		URL:        hr.Request.URL.String(),
		request:    req,
		body:       hr.Body,
	}
}

// Read returns the raw body reader. Calling it more than once without
// Clone returns the same, possibly already-drained reader — bodies are
// single-consumption per spec §3.
func (r *Response) Read() io.ReadCloser { return r.body }

// buffer lazily reads the whole body into memory, memoizing the result
// so repeated convenience-accessor calls (Text/JSON/Bytes) don't
// re-read an exhausted reader.
func (r *Response) buffer() ([]byte, error) {
	r.once.Do(func() {
		if r.body == nil {
			return
		}
		defer r.body.Close()
		r.buffered, r.bufferErr = io.ReadAll(r.body)
	})
	return r.buffered, r.bufferErr
}

// Bytes returns the whole body as a byte slice.
func (r *Response) Bytes() ([]byte, error) {
	b, err := r.buffer()
	if err != nil {
		return nil, ParseError(r.request, err)
	}
	return b, nil
}

// Text returns the body decoded to UTF-8 text, sniffing the charset
// from the Content-Type header the way the teacher's fetch.go does via
// golang.org/x/net/html/charset.
func (r *Response) Text() (string, error) {
	b, err := r.buffer()
	if err != nil {
		return "", ParseError(r.request, err)
	}
	reader, err := charset.NewReader(bytes.NewReader(b), r.Header.Get("Content-Type"))
	if err != nil {
		return string(b), nil
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(b), nil
	}
	return string(decoded), nil
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	b, err := r.buffer()
	if err != nil {
		return ParseError(r.request, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return ParseError(r.request, err)
	}
	return nil
}

// Blob is an alias for Bytes, matching the convenience-shape naming in
// spec §6.
func (r *Response) Blob() ([]byte, error) { return r.Bytes() }

// Form parses the body as application/x-www-form-urlencoded.
func (r *Response) Form() (url.Values, error) {
	b, err := r.buffer()
	if err != nil {
		return nil, ParseError(r.request, err)
	}
	v, err := url.ParseQuery(string(b))
	if err != nil {
		return nil, ParseError(r.request, err)
	}
	return v, nil
}

// SSE returns a channel of parsed server-sent events, read lazily off
// the live body (not the buffered copy — SSE streams are normally
// unbounded, so pre-buffering them would defeat the point).
func (r *Response) SSE() (<-chan SSEEvent, <-chan error) {
	events := make(chan SSEEvent)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		defer close(errs)
		if r.body == nil {
			return
		}
		defer r.body.Close()
		scanner := bufio.NewScanner(r.body)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		var cur SSEEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if cur.Data != "" || cur.Event != "" {
					events <- cur
					cur = SSEEvent{}
				}
			case strings.HasPrefix(line, "id:"):
				cur.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
			case strings.HasPrefix(line, "event:"):
				cur.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "retry:"):
				cur.Retry = strings.TrimSpace(strings.TrimPrefix(line, "retry:"))
			case strings.HasPrefix(line, "data:"):
				if cur.Data != "" {
					cur.Data += "\n"
				}
				cur.Data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- ParseError(r.request, err)
		}
	}()
	return events, errs
}

// NDJSON returns a channel of decoded newline-delimited JSON records.
func (r *Response) NDJSON(newRecord func() any) (<-chan any, <-chan error) {
	out := make(chan any)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		if r.body == nil {
			return
		}
		defer r.body.Close()
		dec := json.NewDecoder(r.body)
		for dec.More() {
			rec := newRecord()
			if err := dec.Decode(rec); err != nil {
				errs <- ParseError(r.request, err)
				return
			}
			out <- rec
		}
	}()
	return out, errs
}

// Clone tees the body so both the caller and a middleware further up the
// chain can independently read it. Because bodies are single-consumption,
// Clone eagerly buffers: the returned clone and the receiver thereafter
// both serve from the same in-memory copy.
func (r *Response) Clone() (*Response, error) {
	b, err := r.buffer()
	if err != nil {
		return nil, err
	}
	clone := *r
	clone.Header = r.Header.Clone()
	clone.body = io.NopCloser(bytes.NewReader(b))
	clone.once = sync.Once{}
	clone.buffered = b
	r.body = io.NopCloser(bytes.NewReader(b))
	return &clone, nil
}

func (r *Response) String() string {
	return fmt.Sprintf("%s %d %s", r.URL, r.StatusCode, r.Status)
}
