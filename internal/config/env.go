package config

import (
	"os"
	"strconv"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
)

// Environment variables that override the file configuration.
const (
	EnvVaultAddress         = vaultapi.EnvVaultAddress
	EnvVaultToken           = vaultapi.EnvVaultToken
	EnvPKIRealm             = "PKI_REALM"
	EnvPKICACertificatesDir = "PKI_CA_CERTIFICATES_DIR"
	EnvTLSCACertificatesDir = "TLS_CA_CERTIFICATES_DIR"
	EnvVaultRequestTimeout  = "VAULT_REQUEST_TIMEOUT"
	EnvVaultConnectTimeout  = "VAULT_CONNECT_TIMEOUT"
	EnvVaultMaxAttempts     = "VAULT_MAX_ATTEMPTS"
	EnvLogLevel             = "LOG_LEVEL"
	EnvLogFormat            = "LOG_FORMAT"
)

// ApplyEnv overrides fields from set, non-empty environment variables.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}

	if v, ok := get(EnvVaultAddress); ok {
		c.Vault.Address = v
	}
	if v, ok := get(EnvVaultToken); ok {
		c.Vault.Token = v
	}
	if v, ok := get(EnvPKIRealm); ok {
		c.Vault.Realm = v
	}
	if v, ok := get(EnvPKICACertificatesDir); ok {
		c.Vault.CACertificatesDir = v
	}
	if v, ok := get(EnvTLSCACertificatesDir); ok {
		c.TLS.TrustAnchorsDir = v
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := get(EnvLogFormat); ok {
		c.Log.Format = v
	}

	durations := []struct {
		key    string
		target *Duration
	}{
		{EnvVaultRequestTimeout, &c.Vault.RequestTimeout},
		{EnvVaultConnectTimeout, &c.Vault.ConnectTimeout},
	}
	for _, d := range durations {
		v, ok := get(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return pkierr.ConfigurationFailed("invalid "+d.key, err)
		}
		*d.target = Duration(parsed)
	}

	if v, ok := get(EnvVaultMaxAttempts); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return pkierr.ConfigurationFailed("invalid "+EnvVaultMaxAttempts, err)
		}
		c.Vault.MaxAttempts = n
	}
	return nil
}
