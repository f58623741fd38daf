// Package pool implements the Agent Manager (per-domain connection
// pooling) and the Request Pool (global concurrency + rate limiting)
// from spec §4.5–§4.6.
package pool

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/http2"
)

// AgentOptions configures one pool's connection parameters, derived from
// declared concurrency per spec §4.5. Pipelining is recorded but
// newHTTPTransport does not apply it to the built transport.
type AgentOptions struct {
	Connections         int
	Pipelining          int
	KeepAlive           bool
	KeepAliveTimeout    time.Duration
	KeepAliveMaxTimeout time.Duration
	Proxy               func(*http.Request) (*url.URL, error)
	DialContext         func(network, addr string) (net.Conn, error)
	// HTTP2 opts the pool's transport into HTTP/2, per spec §6's
	// TransportHints.HTTP2.
	HTTP2 bool
}

// defaultConnections derives the per-pool connection cap from a global
// max, per spec §4.5: max(6, ceil(globalMax/2)).
func defaultConnections(globalMax int) int {
	c := (globalMax + 1) / 2
	if c < 6 {
		return 6
	}
	return c
}

// Manager owns one global transport and, when per-domain pooling is
// enabled, a transport per host.
type Manager struct {
	mu            sync.Mutex
	globalMax     int
	perDomain     bool
	global        http.RoundTripper
	byHost        map[string]http.RoundTripper
	baseTransport func(AgentOptions) http.RoundTripper
}

// NewManager builds a Manager. globalMax sizes the default pool;
// perDomainPooling enables the host->pool map used by getForHost.
func NewManager(globalMax int, perDomainPooling bool) *Manager {
	m := &Manager{
		globalMax:     globalMax,
		perDomain:     perDomainPooling,
		byHost:        make(map[string]http.RoundTripper),
		baseTransport: newHTTPTransport,
	}
	m.global = m.baseTransport(AgentOptions{
		Connections: defaultConnections(globalMax),
		Pipelining:  1,
		KeepAlive:   true,
	})
	return m
}

func newHTTPTransport(opt AgentOptions) http.RoundTripper {
	dial := opt.DialContext
	keepAlive := 30 * time.Second
	if opt.KeepAlive && opt.KeepAliveTimeout > 0 {
		keepAlive = opt.KeepAliveTimeout
	}
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: keepAlive}
	t := &http.Transport{
		Proxy:                 opt.Proxy,
		MaxIdleConns:          opt.Connections * 2,
		MaxIdleConnsPerHost:   opt.Connections,
		MaxConnsPerHost:       opt.Connections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     false,
	}
	if dial != nil {
		t.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dial(network, addr)
		}
	} else {
		t.DialContext = dialer.DialContext
	}
	if opt.HTTP2 {
		if err := http2.ConfigureTransport(t); err != nil {
			slog.Warn("pool: failed to configure http2", "error", err)
		}
	}
	return t
}

// GetForHost returns (creating if needed) the pool dedicated to host. If
// per-domain pooling is disabled, it returns the global pool.
func (m *Manager) GetForHost(host string, opt *AgentOptions) http.RoundTripper {
	if !m.perDomain {
		return m.global
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.byHost[host]; ok {
		return rt
	}
	o := AgentOptions{Connections: defaultConnections(m.globalMax), Pipelining: 1, KeepAlive: true}
	if opt != nil {
		o = *opt
	}
	rt := m.baseTransport(o)
	m.byHost[host] = rt
	return rt
}

// GetForURL resolves the pool for u's host.
func (m *Manager) GetForURL(u *url.URL) http.RoundTripper {
	return m.GetForHost(u.Hostname(), nil)
}

// CloseHost evicts and closes the pool dedicated to host, if any.
func (m *Manager) CloseHost(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.byHost[host]; ok {
		if closer, ok := rt.(interface{ CloseIdleConnections() }); ok {
			closer.CloseIdleConnections()
		}
		delete(m.byHost, host)
	}
}

// CloseAll closes every per-domain pool and the global pool.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for host, rt := range m.byHost {
		if closer, ok := rt.(interface{ CloseIdleConnections() }); ok {
			closer.CloseIdleConnections()
		}
		delete(m.byHost, host)
	}
	if closer, ok := m.global.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}

// CreateBatchPool returns a throwaway pool sized for one large batch
// invocation (spec §4.5), not tracked in byHost and never reused.
func (m *Manager) CreateBatchPool(batchSize, concurrency int) http.RoundTripper {
	connections := concurrency
	if connections <= 0 {
		connections = defaultConnections(batchSize)
	}
	pipelining := 1
	if batchSize > 50 {
		pipelining = 4
	}
	return m.baseTransport(AgentOptions{Connections: connections, Pipelining: pipelining, KeepAlive: true})
}
