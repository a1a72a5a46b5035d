package vault

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
)

const (
	// TokenHeader carries the Vault token on every request.
	TokenHeader = "X-Vault-Token"

	// DefaultUserAgent identifies this client to Vault.
	DefaultUserAgent = "vaultpki/1.0"

	// MethodList is Vault's LIST verb.
	MethodList = "LIST"

	apiPrefix = "/v1/"
)

// endpoint builds authenticated requests against one Vault address.
type endpoint struct {
	client    *http.Client
	base      *url.URL
	token     string
	userAgent string
}

// ParseAddress validates a Vault address of the form scheme://authority.
// Any path on the address is ignored; API paths are rooted at /v1/.
func ParseAddress(addr string) (*url.URL, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, pkierr.ConfigurationFailed("invalid vault address "+addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, pkierr.ConfigurationFailed("vault address must use http or https: "+addr, nil)
	}
	if u.Host == "" {
		return nil, pkierr.ConfigurationFailed("vault address has no host: "+addr, nil)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// url returns {base}/v1/{path}.
func (e *endpoint) url(path string) string {
	u := url.URL{
		Scheme: e.base.Scheme,
		Host:   e.base.Host,
		Path:   apiPrefix + strings.TrimPrefix(path, "/"),
	}
	return u.String()
}

// newRequest builds a bodiless request carrying the token and user agent headers.
func (e *endpoint) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, e.url(path), http.NoBody)
	if err != nil {
		return nil, pkierr.HTTPRequestBuildFailed(err)
	}
	req.Header.Set(TokenHeader, e.token)
	req.Header.Set("User-Agent", e.userAgent)
	return req, nil
}
