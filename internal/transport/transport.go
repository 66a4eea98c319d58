package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

const (
	// ProbeRequestTimeout bounds a single liveness probe.
	ProbeRequestTimeout = 8 * time.Second
	// ProbeTotalTimeout bounds the whole probe exchange, headers included.
	ProbeTotalTimeout = 15 * time.Second
	// FetchTimeout bounds a full dashboard page fetch.
	FetchTimeout = 30 * time.Second
)

// TrustDecision reports whether certificate validation may be skipped for
// the given host. Evaluated at TLS-handshake time, per connection, so one
// process can trust homelab hosts while validating CDN hosts strictly.
type TrustDecision func(host string) bool

// Client bundles the two HTTP clients the engine uses: a short-timeout one
// for health probes and a longer one for full-page config fetches. Both
// refuse to follow redirects; a 3xx answer is returned to the caller as the
// terminal response, since a redirect already proves the server is alive.
type Client struct {
	Probe *http.Client
	Fetch *http.Client
}

// New builds a transport client whose TLS behaviour is decided per
// handshake by decide. A nil decide validates every host strictly.
func New(decide TrustDecision) *Client {
	return &Client{
		Probe: &http.Client{
			Timeout:       ProbeTotalTimeout,
			Transport:     newTransport(decide, ProbeRequestTimeout),
			CheckRedirect: noRedirects,
		},
		Fetch: &http.Client{
			Timeout:       FetchTimeout,
			Transport:     newTransport(decide, FetchTimeout),
			CheckRedirect: noRedirects,
		},
	}
}

func noRedirects(_ *http.Request, _ []*http.Request) error {
	return http.ErrUseLastResponse
}

func newTransport(decide TrustDecision, headerTimeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		DialTLSContext:        dialTLS(dialer, decide),
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}
}

// dialTLS consults the trust decision for the host being dialed and picks
// the handshake configuration accordingly: skip-verify for trusted hosts,
// standard verification for everything else.
func dialTLS(dialer *net.Dialer, decide TrustDecision) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		conf := &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: host,
		}
		if decide != nil && decide(host) {
			conf.InsecureSkipVerify = true
		}
		td := &tls.Dialer{NetDialer: dialer, Config: conf}
		return td.DialContext(ctx, network, addr)
	}
}
