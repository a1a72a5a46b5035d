package vault

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/http/httpproxy"

	"github.com/vyrodovalexey/vaultpki/internal/observability"
	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
	"github.com/vyrodovalexey/vaultpki/internal/retry"
	"github.com/vyrodovalexey/vaultpki/internal/transport"
)

const testPEM = "-----BEGIN CERTIFICATE-----\nMIIBszCCAVmgAwIBAgIUKZ\n-----END CERTIFICATE-----\n"

func newTestCertificate(t *testing.T) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "proxy-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func newTestConfig(addr string) *Config {
	return &Config{
		Address: addr,
		Token:   testToken,
		Realm:   "pki_int",
	}
}

func newTestGateway(t *testing.T, addr string, opts ...GatewayOption) *Gateway {
	t.Helper()
	opts = append([]GatewayOption{
		WithBackoff(noWait),
		WithTransportOptions(transport.WithProxyConfig(&httpproxy.Config{})),
	}, opts...)
	gw, err := NewGateway(newTestConfig(addr), nil, observability.NopLogger(), opts...)
	require.NoError(t, err)
	return gw
}

// newPKIServer emulates the three PKI endpoints of a Vault mount.
func newPKIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/pki_int/certs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != MethodList {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"request_id":"1","lease_id":"","renewable":false,"lease_duration":0,` +
			`"data":{"keys":["serial-A","serial-B"]},"wrap_info":null,"warnings":null,"auth":null}`))
	})
	mux.HandleFunc("/v1/pki_int/cert/serial-A/raw/pem", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testPEM))
	})
	mux.HandleFunc("/v1/pki_int/cert/binary/raw/pem", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte{0xff, 0xfe, 0x00})
	})
	mux.HandleFunc("/v1/pki_int/ca/pem", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testPEM))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGateway_CertificateList(t *testing.T) {
	gw := newTestGateway(t, newPKIServer(t).URL)

	serials, err := gw.CertificateList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"serial-A", "serial-B"}, serials)
}

func TestGateway_CertificateList_BadEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>"},
		{name: "empty", body: ""},
		{name: "no data", body: `{"warnings":["x"]}`},
		{name: "keys not a list", body: `{"data":{"keys":"serial-A"}}`},
		{name: "key not a string", body: `{"data":{"keys":["serial-A",7]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			gw := newTestGateway(t, srv.URL)
			_, err := gw.CertificateList(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, pkierr.ErrVaultOtherError)
			assert.Contains(t, err.Error(), "cannot deserialize vault certificate list")
		})
	}
}

func TestGateway_CertificateBySerialAsPEM(t *testing.T) {
	gw := newTestGateway(t, newPKIServer(t).URL)

	pemText, err := gw.CertificateBySerialAsPEM(context.Background(), "serial-A")
	require.NoError(t, err)
	assert.Equal(t, testPEM, pemText)
}

func TestGateway_CertificateBySerialAsPEM_InvalidUTF8(t *testing.T) {
	gw := newTestGateway(t, newPKIServer(t).URL)

	_, err := gw.CertificateBySerialAsPEM(context.Background(), "binary")
	require.Error(t, err)
	assert.ErrorIs(t, err, pkierr.ErrVaultOtherError)
	assert.Contains(t, err.Error(), "cannot parse certificate binary")
}

func TestGateway_CertificateBySerialAsPEM_NotFound(t *testing.T) {
	gw := newTestGateway(t, newPKIServer(t).URL)

	_, err := gw.CertificateBySerialAsPEM(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, "vault error: vault reported client-side error (code 404)", err.Error())
}

func TestGateway_CertificateBySerialAsPEM_InvalidSerial(t *testing.T) {
	gw := newTestGateway(t, newPKIServer(t).URL)

	for _, serial := range []string{"", "a/b", "..", "a?b"} {
		_, err := gw.CertificateBySerialAsPEM(context.Background(), serial)
		assert.ErrorIs(t, err, pkierr.ErrRequestValidationFailed, "serial %q", serial)
	}
}

func TestGateway_IMCertificateAsPEM(t *testing.T) {
	gw := newTestGateway(t, newPKIServer(t).URL)

	pemText, err := gw.IMCertificateAsPEM(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testPEM, pemText)
}

func TestGateway_RecordsRequestMetric(t *testing.T) {
	gw := newTestGateway(t, newPKIServer(t).URL)

	ok := vaultRequestsTotal.WithLabelValues(opIMCertificate, statusSuccess)
	before := testutil.ToFloat64(ok)

	_, err := gw.IMCertificateAsPEM(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(ok))
}

func TestGateway_LogsRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := observability.NewLoggerFromZap(zap.New(core))

	srv := newPKIServer(t)
	gw, err := NewGateway(newTestConfig(srv.URL), nil, logger,
		WithBackoff(noWait),
		WithTransportOptions(transport.WithProxyConfig(&httpproxy.Config{})),
	)
	require.NoError(t, err)

	ctx := observability.ContextWithRequestID(context.Background(), "req-1")
	_, err = gw.IMCertificateAsPEM(ctx)
	require.NoError(t, err)

	entries := logs.FilterMessage("vault operation").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "vault", entries[0].ContextMap()["component"])
}

func TestGateway_WithHealthProberAndUserAgent(t *testing.T) {
	var (
		hits      atomic.Int32
		seenAgent atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAgent.Store(r.UserAgent())
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(testPEM))
	}))
	defer srv.Close()

	prober := &fakeProber{states: []HealthState{{Condition: HealthNotInitialized}}}
	gw := newTestGateway(t, srv.URL, WithHealthProber(prober), WithUserAgent("pkiclient/test"))

	pemText, err := gw.IMCertificateAsPEM(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testPEM, pemText)
	assert.Equal(t, "pkiclient/test", seenAgent.Load())
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 1, prober.Calls())
}

func TestGateway_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sys/health", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gw := newTestGateway(t, srv.URL)
	assert.Equal(t, HealthSealed, gw.Health(context.Background()).Condition)
}

func TestNewGateway_LocalCertificates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "root.pem"), []byte(testPEM), 0o600))

	cfg := newTestConfig("http://127.0.0.1:8200")
	cfg.CACertificatesDir = dir

	gw, err := NewGateway(cfg, nil, nil, WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "root.pem")}, gw.LocalCertificates())
	assert.Equal(t, "pki_int", gw.Realm())
	assert.NotNil(t, gw.Executor())
}

func TestNewGateway_UnreadableCADir(t *testing.T) {
	cfg := newTestConfig("http://127.0.0.1:8200")
	cfg.CACertificatesDir = filepath.Join(t.TempDir(), "missing")

	_, err := NewGateway(cfg, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkierr.ErrConfigurationFailed)
	assert.Contains(t, err.Error(), "unable to read CA certificates")
}

func TestNewGateway_AnchorsWithoutProxy(t *testing.T) {
	_, err := NewGateway(newTestConfig("http://127.0.0.1:8200"), []*x509.Certificate{newTestCertificate(t)}, nil,
		WithTransportOptions(transport.WithProxyConfig(&httpproxy.Config{})))
	require.Error(t, err)
	assert.ErrorIs(t, err, pkierr.ErrHTTPProxyMisconfigured)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad scheme", mutate: func(c *Config) { c.Address = "ftp://vault" }},
		{name: "no host", mutate: func(c *Config) { c.Address = "http://" }},
		{name: "no token", mutate: func(c *Config) { c.Token = "" }},
		{name: "no realm", mutate: func(c *Config) { c.Realm = "/" }},
		{name: "negative timeout", mutate: func(c *Config) { c.RequestTimeout = -1 }},
		{name: "negative attempts", mutate: func(c *Config) { c.MaxAttempts = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig("https://vault.example:8200")
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), pkierr.ErrConfigurationFailed)
		})
	}

	assert.NoError(t, newTestConfig("https://vault.example:8200").Validate())

	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), pkierr.ErrConfigurationFailed)
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, DefaultRequestTimeout, cfg.GetRequestTimeout())
	assert.Equal(t, DefaultConnectTimeout, cfg.GetConnectTimeout())
}

func TestParseAddress_DropsPath(t *testing.T) {
	u, err := ParseAddress("https://vault.example:8200/ui/")
	require.NoError(t, err)
	assert.Equal(t, "https://vault.example:8200", u.String())
}

func TestGateway_RetryIntervalFromConfig(t *testing.T) {
	const interval = 100 * time.Millisecond

	srv := newSequenceServer(t, http.StatusServiceUnavailable, http.StatusOK)
	cfg := newTestConfig(srv.URL)
	cfg.RetryInterval = interval

	gw, err := NewGateway(cfg, nil, observability.NopLogger(),
		WithHealthProber(&fakeProber{states: []HealthState{{Condition: HealthSealed}}}),
		WithTransportOptions(transport.WithProxyConfig(&httpproxy.Config{})),
	)
	require.NoError(t, err)

	start := time.Now()
	_, err = gw.IMCertificateAsPEM(context.Background())
	require.NoError(t, err)

	hits := srv.HitTimes()
	require.Len(t, hits, 2)
	assert.Less(t, hits[0].Sub(start), interval, "first request must not wait")
	assert.GreaterOrEqual(t, hits[1].Sub(hits[0]), interval)
	assert.Less(t, hits[1].Sub(hits[0]), retry.DefaultInterval)
}
