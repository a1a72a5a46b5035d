package vault

import (
	"strings"
	"time"

	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
)

// Gateway defaults.
const (
	// DefaultRequestTimeout bounds one HTTP request including its body.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 20 * time.Second
)

// Config holds the settings the gateway consumes. Values are read-only once
// the gateway is built.
type Config struct {
	// Address is the Vault base address, scheme://authority.
	Address string

	// Token authenticates every request. It is never logged.
	Token string

	// Realm is the PKI mount all certificate paths are rooted at.
	Realm string

	// CACertificatesDir is an optional directory whose files are listed at
	// construction for operator visibility.
	CACertificatesDir string

	// RequestTimeout bounds each HTTP request.
	RequestTimeout time.Duration

	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration

	// MaxAttempts bounds primary attempts per operation; 0 means Unbounded.
	MaxAttempts int

	// RetryInterval is the fixed pause between attempts.
	RetryInterval time.Duration
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return pkierr.ConfigurationFailed("vault configuration is nil", nil)
	}
	if _, err := ParseAddress(c.Address); err != nil {
		return err
	}
	if c.Token == "" {
		return pkierr.ConfigurationFailed("vault token is required", nil)
	}
	if strings.Trim(c.Realm, "/") == "" {
		return pkierr.ConfigurationFailed("pki realm is required", nil)
	}
	if c.RequestTimeout < 0 || c.ConnectTimeout < 0 || c.RetryInterval < 0 {
		return pkierr.ConfigurationFailed("timeouts and retry interval must not be negative", nil)
	}
	if c.MaxAttempts < 0 {
		return pkierr.ConfigurationFailed("maxAttempts must not be negative", nil)
	}
	return nil
}

// GetRequestTimeout returns the effective request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return c.RequestTimeout
}

// GetConnectTimeout returns the effective connect timeout.
func (c *Config) GetConnectTimeout() time.Duration {
	if c.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return c.ConnectTimeout
}
