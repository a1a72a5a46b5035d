package transport

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/http/httpproxy"

	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
)

// resolveProxies returns the distinct proxy endpoints named by cfg, sorted.
// Values without a scheme are treated as http proxies, as httpproxy does.
// Credentials are redacted.
func resolveProxies(cfg *httpproxy.Config) ([]string, error) {
	seen := make(map[string]struct{}, 2)
	for _, raw := range []string{cfg.HTTPProxy, cfg.HTTPSProxy} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := parseProxy(raw)
		if err != nil {
			return nil, pkierr.HTTPProxyMisconfigured(fmt.Sprintf("invalid proxy address %q", raw), err)
		}
		seen[u.Redacted()] = struct{}{}
	}

	proxies := make([]string, 0, len(seen))
	for p := range seen {
		proxies = append(proxies, p)
	}
	sort.Strings(proxies)
	return proxies, nil
}

func parseProxy(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
		return u, nil
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
}

func describeProxies(proxies []string) string {
	switch len(proxies) {
	case 0:
		return "no proxy"
	case 1:
		return "proxy " + proxies[0]
	default:
		return fmt.Sprintf("%d proxies %v", len(proxies), proxies)
	}
}

func describeCertificates(n int) string {
	switch n {
	case 0:
		return "no trusted certificate"
	case 1:
		return "a trusted certificate"
	default:
		return fmt.Sprintf("%d trusted certificates", n)
	}
}
