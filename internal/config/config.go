package config

import (
	"github.com/vyrodovalexey/vaultpki/internal/observability"
	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
	"github.com/vyrodovalexey/vaultpki/internal/retry"
	"github.com/vyrodovalexey/vaultpki/internal/vault"
)

// Config is the complete client configuration.
type Config struct {
	Vault   VaultConfig                `yaml:"vault"`
	TLS     TLSConfig                  `yaml:"tls"`
	Log     observability.LogConfig    `yaml:"log"`
	Tracing observability.TracerConfig `yaml:"tracing"`
	Metrics MetricsConfig              `yaml:"metrics"`
}

// VaultConfig holds the Vault connection settings.
type VaultConfig struct {
	Address           string   `yaml:"address"`
	Token             string   `yaml:"token"`
	Realm             string   `yaml:"realm"`
	CACertificatesDir string   `yaml:"caCertificatesDir,omitempty"`
	RequestTimeout    Duration `yaml:"requestTimeout,omitempty"`
	ConnectTimeout    Duration `yaml:"connectTimeout,omitempty"`
	MaxAttempts       int      `yaml:"maxAttempts,omitempty"`
	RetryInterval     Duration `yaml:"retryInterval,omitempty"`
}

// TLSConfig configures trust anchors for TLS-terminating proxies.
type TLSConfig struct {
	// TrustAnchorsDir holds PEM files added to the system trust store.
	TrustAnchorsDir string `yaml:"trustAnchorsDir,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables it.
	Addr string `yaml:"addr,omitempty"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Vault: VaultConfig{
			Address:        "http://127.0.0.1:8200",
			RequestTimeout: Duration(vault.DefaultRequestTimeout),
			ConnectTimeout: Duration(vault.DefaultConnectTimeout),
			MaxAttempts:    vault.Unbounded,
			RetryInterval:  Duration(retry.DefaultInterval),
		},
		Log: observability.DefaultLogConfig(),
		Tracing: observability.TracerConfig{
			ServiceName:  "vaultpki",
			SamplingRate: 1.0,
		},
	}
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.ToVaultConfig().Validate(); err != nil {
		return err
	}
	return c.ValidateObservability()
}

// ValidateObservability checks the log and tracing sections only.
func (c *Config) ValidateObservability() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return pkierr.ConfigurationFailed("tracing sampling rate must be between 0 and 1", nil)
	}
	return nil
}

// ToVaultConfig converts the Vault section for the gateway.
func (c *Config) ToVaultConfig() *vault.Config {
	return &vault.Config{
		Address:           c.Vault.Address,
		Token:             c.Vault.Token,
		Realm:             c.Vault.Realm,
		CACertificatesDir: c.Vault.CACertificatesDir,
		RequestTimeout:    c.Vault.RequestTimeout.Duration(),
		ConnectTimeout:    c.Vault.ConnectTimeout.Duration(),
		MaxAttempts:       c.Vault.MaxAttempts,
		RetryInterval:     c.Vault.RetryInterval.Duration(),
	}
}
