package fetchkit

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"text/template"
)

var requestBufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// NewTemplateRequest renders tpl with arg into a raw HTTP request (request
// line, headers, optional body) and parses the result into a Request,
// carried over from the source system's template-driven request builder.
func NewTemplateRequest(tpl *template.Template, arg any) (*Request, error) {
	buf := requestBufPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		requestBufPool.Put(buf)
	}()

	if err := tpl.Execute(buf, arg); err != nil {
		return nil, fmt.Errorf("fetchkit: execute request template: %w", err)
	}
	// A missing map/struct field renders as the literal "<no value>"
	// (golang/go#24963); treat it as empty instead of leaking into the
	// request text.
	return ReadRequest(strings.ReplaceAll(buf.String(), "<no value>", ""))
}

// ReadRequest parses a raw HTTP/1.x request (e.g. "GET /x HTTP/1.1\r\nHost:
// example.com\r\n\r\n") into a Request.
func ReadRequest(raw string) (*Request, error) {
	hr, err := http.ReadRequest(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("fetchkit: parse request: %w", err)
	}

	u := hr.URL
	if !u.IsAbs() {
		if host := hr.Header.Get("Host"); host != "" {
			u.Host = host
		} else {
			u.Host = hr.Host
		}
		if u.Scheme == "" {
			u.Scheme = "http"
		}
	}

	req := &Request{
		Method:          strings.ToUpper(hr.Method),
		URL:             u.String(),
		Header:          hr.Header,
		ThrowHTTPErrors: true,
		Redirect:        DefaultRedirectPolicy(),
	}
	if hr.Body != nil && hr.Body != http.NoBody {
		body, err := io.ReadAll(hr.Body)
		if err != nil {
			return nil, err
		}
		if len(body) > 0 {
			req.BodyBytes = body
			req.Body = bytes.NewReader(body)
		}
	}
	return req, nil
}
