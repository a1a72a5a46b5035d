package vault

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	vaultapi "github.com/hashicorp/vault/api"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vyrodovalexey/vaultpki/internal/observability"
	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
	"github.com/vyrodovalexey/vaultpki/internal/retry"
	"github.com/vyrodovalexey/vaultpki/internal/transport"
)

// CertificateGetter retrieves certificates and the intermediate CA.
type CertificateGetter interface {
	// CertificateList returns the serials of all issued certificates, in
	// backend order.
	CertificateList(ctx context.Context) ([]string, error)

	// CertificateBySerialAsPEM returns one certificate as PEM text.
	CertificateBySerialAsPEM(ctx context.Context, serial string) (string, error)

	// IMCertificateAsPEM returns the intermediate CA certificate as PEM text.
	IMCertificateAsPEM(ctx context.Context) (string, error)
}

// Operation names used for metrics and spans.
const (
	opCertificateList = "certificate_list"
	opCertificate     = "certificate_by_serial"
	opIMCertificate   = "im_certificate"
)

// Gateway is the Vault-backed CertificateGetter.
type Gateway struct {
	realm       string
	maxAttempts int
	executor    *Executor
	localCerts  []string
	logger      observability.Logger
	tracer      *observability.Tracer
}

var _ CertificateGetter = (*Gateway)(nil)

// GatewayOption is a functional option for configuring the gateway.
type GatewayOption func(*gatewayOptions)

type gatewayOptions struct {
	httpClient       *http.Client
	prober           HealthProber
	backoff          retry.Backoff
	tracer           *observability.Tracer
	userAgent        string
	transportOptions []transport.Option
}

// WithHTTPClient uses client instead of building one with the transport package.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(o *gatewayOptions) {
		o.httpClient = client
	}
}

// WithHealthProber replaces the sys/health prober.
func WithHealthProber(prober HealthProber) GatewayOption {
	return func(o *gatewayOptions) {
		o.prober = prober
	}
}

// WithBackoff replaces the fixed inter-attempt pause.
func WithBackoff(backoff retry.Backoff) GatewayOption {
	return func(o *gatewayOptions) {
		o.backoff = backoff
	}
}

// WithTracer sets the tracer for operation and attempt spans.
func WithTracer(tracer *observability.Tracer) GatewayOption {
	return func(o *gatewayOptions) {
		o.tracer = tracer
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(userAgent string) GatewayOption {
	return func(o *gatewayOptions) {
		o.userAgent = userAgent
	}
}

// WithTransportOptions passes extra options to transport.Build.
func WithTransportOptions(opts ...transport.Option) GatewayOption {
	return func(o *gatewayOptions) {
		o.transportOptions = append(o.transportOptions, opts...)
	}
}

// NewGateway builds the Vault-backed gateway. anchors are the process-wide
// trust anchors handed to the transport builder. Construction performs no
// network I/O.
func NewGateway(
	cfg *Config,
	anchors []*x509.Certificate,
	logger observability.Logger,
	opts ...GatewayOption,
) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	logger = logger.With(observability.String("component", "vault"))

	o := &gatewayOptions{userAgent: DefaultUserAgent}
	for _, opt := range opts {
		opt(o)
	}

	localCerts, err := listLocalCertificates(cfg.CACertificatesDir)
	if err != nil {
		return nil, err
	}
	if len(localCerts) > 0 {
		logger.Debug("loaded local certificates", observability.Strings("files", localCerts))
	}

	client := o.httpClient
	if client == nil {
		topts := append([]transport.Option{
			transport.WithRequestTimeout(cfg.GetRequestTimeout()),
			transport.WithConnectTimeout(cfg.GetConnectTimeout()),
			transport.WithLogger(logger),
		}, o.transportOptions...)

		client, err = transport.Build(anchors, topts...)
		if err != nil {
			return nil, err
		}
	}

	base, err := ParseAddress(cfg.Address)
	if err != nil {
		return nil, err
	}

	backoff := o.backoff
	if backoff == nil && cfg.RetryInterval > 0 {
		backoff = retry.NewConstantBackoff(cfg.RetryInterval)
	}

	ep := &endpoint{
		client:    client,
		base:      base,
		token:     cfg.Token,
		userAgent: o.userAgent,
	}

	tracer := o.tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}

	return &Gateway{
		realm:       strings.Trim(cfg.Realm, "/"),
		maxAttempts: cfg.MaxAttempts,
		executor:    newExecutor(ep, o.prober, backoff, logger, tracer),
		localCerts:  localCerts,
		logger:      logger,
		tracer:      tracer,
	}, nil
}

// listLocalCertificates records the paths of the files in dir.
func listLocalCertificates(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pkierr.ConfigurationFailed("unable to read CA certificates", err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

// Realm returns the PKI realm.
func (g *Gateway) Realm() string {
	return g.realm
}

// LocalCertificates returns the CA certificate files found at construction.
func (g *Gateway) LocalCertificates() []string {
	return append([]string(nil), g.localCerts...)
}

// Executor exposes the underlying request executor.
func (g *Gateway) Executor() *Executor {
	return g.executor
}

// Health probes Vault once.
func (g *Gateway) Health(ctx context.Context) HealthState {
	return g.executor.prober.Probe(withRequestID(ctx))
}

// CertificateList lists the serials under {realm}/certs.
func (g *Gateway) CertificateList(ctx context.Context) (serials []string, err error) {
	ctx, finish := g.begin(ctx, opCertificateList)
	defer func() { finish(err) }()

	body, err := g.fetch(ctx, MethodList, g.realm+"/certs", "certificate list")
	if err != nil {
		return nil, err
	}

	serials, err = parseKeyList(body)
	if err != nil {
		return nil, err
	}

	g.logger.WithContext(ctx).Debug("got certificate list", observability.Int("count", len(serials)))
	return serials, nil
}

// CertificateBySerialAsPEM fetches {realm}/cert/{serial}/raw/pem verbatim.
func (g *Gateway) CertificateBySerialAsPEM(ctx context.Context, serial string) (pemText string, err error) {
	ctx, finish := g.begin(ctx, opCertificate)
	defer func() { finish(err) }()

	if err := validateSerial(serial); err != nil {
		return "", err
	}

	what := "certificate " + serial
	body, err := g.fetch(ctx, http.MethodGet, g.realm+"/cert/"+serial+"/raw/pem", what)
	if err != nil {
		return "", err
	}
	return pemString(body, what)
}

// IMCertificateAsPEM fetches {realm}/ca/pem verbatim.
func (g *Gateway) IMCertificateAsPEM(ctx context.Context) (pemText string, err error) {
	ctx, finish := g.begin(ctx, opIMCertificate)
	defer func() { finish(err) }()

	const what = "im-ca certificate"
	body, err := g.fetch(ctx, http.MethodGet, g.realm+"/ca/pem", what)
	if err != nil {
		return "", err
	}
	return pemString(body, what)
}

// begin tags ctx with a request ID and a span; finish records metrics and ends the span.
func (g *Gateway) begin(ctx context.Context, op string) (context.Context, func(error)) {
	ctx = withRequestID(ctx)
	ctx, span := g.tracer.StartSpan(ctx, "vault."+op)
	span.SetAttributes(attribute.String("vault.realm", g.realm))
	start := time.Now()

	g.logger.WithContext(ctx).Debug("vault operation", observability.String("operation", op))

	return ctx, func(err error) {
		RecordRequest(op, time.Since(start), err == nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, pkierr.KindOf(err).String())
		}
		span.End()
	}
}

// fetch runs the request through the executor and reads the whole body.
func (g *Gateway) fetch(ctx context.Context, method, path, what string) ([]byte, error) {
	resp, err := g.executor.Execute(ctx, method, path, g.maxAttempts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkierr.VaultOtherError("cannot retrieve "+what, err)
	}
	return body, nil
}

func withRequestID(ctx context.Context) context.Context {
	if observability.RequestIDFromContext(ctx) != "" {
		return ctx
	}
	return observability.ContextWithRequestID(ctx, uuid.NewString())
}

// validateSerial rejects serials that would escape their path segment.
func validateSerial(serial string) error {
	if serial == "" {
		return pkierr.RequestValidationFailed("certificate serial is empty")
	}
	if strings.ContainsAny(serial, "/?#") || serial == "." || serial == ".." {
		return pkierr.RequestValidationFailed(fmt.Sprintf("certificate serial %q is not a single path segment", serial))
	}
	return nil
}

// parseKeyList extracts data.keys from a Vault LIST response.
func parseKeyList(body []byte) ([]string, error) {
	secret, err := vaultapi.ParseSecret(strings.NewReader(string(body)))
	if err != nil {
		return nil, pkierr.VaultOtherError("cannot deserialize vault certificate list", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, pkierr.VaultOtherError("cannot deserialize vault certificate list: no data", nil)
	}

	raw, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, pkierr.VaultOtherError("cannot deserialize vault certificate list: data.keys is not a list", nil)
	}

	keys := make([]string, 0, len(raw))
	for i, k := range raw {
		s, ok := k.(string)
		if !ok {
			return nil, pkierr.VaultOtherError(
				fmt.Sprintf("cannot deserialize vault certificate list: key %d is not a string", i), nil)
		}
		keys = append(keys, s)
	}
	return keys, nil
}

// pemString returns body as text, rejecting anything that is not UTF-8.
func pemString(body []byte, what string) (string, error) {
	if !utf8.Valid(body) {
		return "", pkierr.VaultOtherError("cannot parse "+what+": invalid UTF-8", nil)
	}
	return string(body), nil
}
