// Package pkierr defines the closed set of failure kinds shared by the
// Vault PKI client components.
package pkierr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind identifies a failure reason. Callers branch on Kind, never on message text.
type Kind int

// Failure kinds.
const (
	KindUnknown Kind = iota
	KindBindAddressInvalid
	KindRequestValidationFailed
	KindConfigurationFailed
	KindVaultUnreachable
	KindVaultSealed
	KindVaultNotInitialized
	KindVaultRedirected
	KindVaultOtherError
	KindHTTPRequestBuildFailed
	KindHTTPProxyMisconfigured
	KindHTTPTimeout
	KindCertificateMalformed
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindBindAddressInvalid:      "bind_address_invalid",
	KindRequestValidationFailed: "request_validation_failed",
	KindConfigurationFailed:     "configuration_failed",
	KindVaultUnreachable:        "vault_unreachable",
	KindVaultSealed:             "vault_sealed",
	KindVaultNotInitialized:     "vault_not_initialized",
	KindVaultRedirected:         "vault_redirected",
	KindVaultOtherError:         "vault_other_error",
	KindHTTPRequestBuildFailed:  "http_request_build_failed",
	KindHTTPProxyMisconfigured:  "http_proxy_misconfigured",
	KindHTTPTimeout:             "http_timeout",
	KindCertificateMalformed:    "certificate_malformed",
}

// String returns the snake_case name of the kind, suitable for metric labels.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is matching. Any *Error of the same Kind matches.
var (
	ErrBindAddressInvalid      = &Error{Kind: KindBindAddressInvalid}
	ErrRequestValidationFailed = &Error{Kind: KindRequestValidationFailed}
	ErrConfigurationFailed     = &Error{Kind: KindConfigurationFailed}
	ErrVaultUnreachable        = &Error{Kind: KindVaultUnreachable}
	ErrVaultSealed             = &Error{Kind: KindVaultSealed}
	ErrVaultNotInitialized     = &Error{Kind: KindVaultNotInitialized}
	ErrVaultRedirected         = &Error{Kind: KindVaultRedirected}
	ErrVaultOtherError         = &Error{Kind: KindVaultOtherError}
	ErrHTTPRequestBuildFailed  = &Error{Kind: KindHTTPRequestBuildFailed}
	ErrHTTPProxyMisconfigured  = &Error{Kind: KindHTTPProxyMisconfigured}
	ErrHTTPTimeout             = &Error{Kind: KindHTTPTimeout}
	ErrCertificateMalformed    = &Error{Kind: KindCertificateMalformed}
)

// Error is a typed PKI client failure.
type Error struct {
	Kind       Kind
	Detail     string // Human-readable detail
	StatusCode int    // HTTP status code for redirect errors
	Location   string // Location header for redirect errors
	Cause      error  // Underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindBindAddressInvalid:
		return withCause("invalid bind address supplied", e.Cause)
	case KindRequestValidationFailed:
		return fmt.Sprintf("the request could not be validated: %s", e.Detail)
	case KindConfigurationFailed:
		return withCause(fmt.Sprintf("unable to read config: %s", e.Detail), e.Cause)
	case KindVaultUnreachable:
		return withCause("unable to connect to vault", e.Cause)
	case KindVaultSealed:
		return "vault is still sealed"
	case KindVaultNotInitialized:
		return "vault has not been initialized yet"
	case KindVaultRedirected:
		return fmt.Sprintf("vault has asked with code %d to redirect to %s; this should not happen",
			e.StatusCode, e.Location)
	case KindVaultOtherError:
		return withCause(fmt.Sprintf("vault error: %s", e.Detail), e.Cause)
	case KindHTTPRequestBuildFailed:
		return withCause("error building HTTP request", e.Cause)
	case KindHTTPProxyMisconfigured:
		return withCause(fmt.Sprintf("problem with HTTP proxy: %s", e.Detail), e.Cause)
	case KindHTTPTimeout:
		return withCause("timeout executing HTTP request", e.Cause)
	case KindCertificateMalformed:
		return withCause(fmt.Sprintf("certificate invalid: %s", e.Detail), e.Cause)
	default:
		return withCause(e.Detail, e.Cause)
	}
}

func withCause(msg string, cause error) string {
	if cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, cause)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of err, or KindUnknown if err carries no *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether a failure of the given kind may succeed on retry.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindVaultUnreachable, KindVaultSealed, KindVaultNotInitialized, KindHTTPTimeout:
		return true
	default:
		return false
	}
}

// BindAddressInvalid creates a KindBindAddressInvalid error.
func BindAddressInvalid(cause error) *Error {
	return &Error{Kind: KindBindAddressInvalid, Cause: cause}
}

// RequestValidationFailed creates a KindRequestValidationFailed error.
func RequestValidationFailed(detail string) *Error {
	return &Error{Kind: KindRequestValidationFailed, Detail: detail}
}

// ConfigurationFailed creates a KindConfigurationFailed error.
func ConfigurationFailed(detail string, cause error) *Error {
	return &Error{Kind: KindConfigurationFailed, Detail: detail, Cause: cause}
}

// VaultUnreachable creates a KindVaultUnreachable error.
func VaultUnreachable(cause error) *Error {
	return &Error{Kind: KindVaultUnreachable, Cause: cause}
}

// VaultSealed creates a KindVaultSealed error.
func VaultSealed() *Error {
	return &Error{Kind: KindVaultSealed}
}

// VaultNotInitialized creates a KindVaultNotInitialized error.
func VaultNotInitialized() *Error {
	return &Error{Kind: KindVaultNotInitialized}
}

// VaultRedirected creates a KindVaultRedirected error.
func VaultRedirected(statusCode int, location string) *Error {
	return &Error{Kind: KindVaultRedirected, StatusCode: statusCode, Location: location}
}

// VaultOtherError creates a KindVaultOtherError error.
func VaultOtherError(detail string, cause error) *Error {
	return &Error{Kind: KindVaultOtherError, Detail: detail, Cause: cause}
}

// HTTPRequestBuildFailed creates a KindHTTPRequestBuildFailed error.
func HTTPRequestBuildFailed(cause error) *Error {
	return &Error{Kind: KindHTTPRequestBuildFailed, Cause: cause}
}

// HTTPProxyMisconfigured creates a KindHTTPProxyMisconfigured error.
func HTTPProxyMisconfigured(detail string, cause error) *Error {
	return &Error{Kind: KindHTTPProxyMisconfigured, Detail: detail, Cause: cause}
}

// HTTPTimeout creates a KindHTTPTimeout error.
func HTTPTimeout(cause error) *Error {
	return &Error{Kind: KindHTTPTimeout, Cause: cause}
}

// CertificateMalformed creates a KindCertificateMalformed error.
func CertificateMalformed(detail string, cause error) *Error {
	return &Error{Kind: KindCertificateMalformed, Detail: detail, Cause: cause}
}

// FromTransport maps a failure returned by an HTTP round trip to exactly one kind.
// Timeouts become KindHTTPTimeout, everything else KindVaultUnreachable.
func FromTransport(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return HTTPTimeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return HTTPTimeout(err)
	}
	return VaultUnreachable(err)
}
