// Package transport builds the HTTP client used to talk to Vault through an
// optional, possibly TLS-terminating, forward proxy.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"

	"github.com/vyrodovalexey/vaultpki/internal/observability"
	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
)

// Transport defaults.
const (
	// DefaultConnectTimeout bounds TCP connection establishment.
	DefaultConnectTimeout = time.Second

	// DefaultTLSHandshakeTimeout bounds the TLS handshake.
	DefaultTLSHandshakeTimeout = 10 * time.Second

	// DefaultIdleConnTimeout is how long idle pooled connections are kept.
	DefaultIdleConnTimeout = 90 * time.Second

	// DefaultMaxIdleConns is the size of the idle connection pool.
	DefaultMaxIdleConns = 100
)

// Option configures Build.
type Option func(*options)

type options struct {
	connectTimeout time.Duration
	requestTimeout time.Duration
	proxyConfig    *httpproxy.Config
	systemRoots    func() (*x509.CertPool, error)
	logger         observability.Logger
}

// WithConnectTimeout overrides DefaultConnectTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithRequestTimeout bounds the total duration of each request, body included.
// Zero means no limit.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = d
	}
}

// WithProxyConfig replaces proxy discovery from the environment.
func WithProxyConfig(cfg *httpproxy.Config) Option {
	return func(o *options) {
		o.proxyConfig = cfg
	}
}

// WithSystemRoots replaces the platform trust store loader.
func WithSystemRoots(fn func() (*x509.CertPool, error)) Option {
	return func(o *options) {
		o.systemRoots = fn
	}
}

// WithLogger sets the logger for the construction summary.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Build returns an HTTP client that honors the environment's proxy settings and
// additionally trusts the given anchors. Anchors only make sense behind a
// TLS-terminating proxy, so a non-empty anchor set without any resolvable
// proxy is rejected with KindHTTPProxyMisconfigured.
//
// The returned client never follows redirects; callers see 3xx responses as-is.
func Build(anchors []*x509.Certificate, opts ...Option) (*http.Client, error) {
	o := &options{
		connectTimeout: DefaultConnectTimeout,
		systemRoots:    x509.SystemCertPool,
		logger:         observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	proxyConfig := o.proxyConfig
	if proxyConfig == nil {
		proxyConfig = httpproxy.FromEnvironment()
	}

	proxies, err := resolveProxies(proxyConfig)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if len(anchors) > 0 {
		pool, err := trustPool(o.systemRoots, anchors)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool

		if len(proxies) == 0 {
			return nil, pkierr.HTTPProxyMisconfigured(
				"certificates for TLS termination were provided but no proxy to use; please supply correct configuration", nil)
		}
	}

	dialer := &net.Dialer{
		Timeout:   o.connectTimeout,
		KeepAlive: 30 * time.Second,
	}

	proxyFunc := proxyConfig.ProxyFunc()
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			return proxyFunc(req.URL)
		},
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		MaxIdleConns:        DefaultMaxIdleConns,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	o.logger.Info("Using "+describeProxies(proxies)+" and "+describeCertificates(len(anchors))+" for TLS termination.",
		observability.Int("proxies", len(proxies)),
		observability.Int("trusted_certificates", len(anchors)),
		observability.Duration("connect_timeout", o.connectTimeout),
		observability.Duration("request_timeout", o.requestTimeout),
	)

	return &http.Client{
		Transport: transport,
		Timeout:   o.requestTimeout,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// trustPool returns the platform roots plus every anchor.
func trustPool(systemRoots func() (*x509.CertPool, error), anchors []*x509.Certificate) (*x509.CertPool, error) {
	pool, err := systemRoots()
	if err != nil {
		return nil, pkierr.HTTPProxyMisconfigured(
			"unable to build TLS configuration with custom CA certificates", err)
	}
	if pool == nil {
		pool = x509.NewCertPool()
	}

	for i, cert := range anchors {
		if cert == nil {
			return nil, pkierr.CertificateMalformed(fmt.Sprintf("trust anchor %d is nil", i), nil)
		}
		pool.AddCert(cert)
	}
	return pool, nil
}
