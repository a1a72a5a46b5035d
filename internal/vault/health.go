package vault

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/vyrodovalexey/vaultpki/internal/observability"
	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
)

// HealthPath is the Vault health endpoint relative to /v1/.
const HealthPath = "sys/health"

// Location header placeholders.
const (
	LocationMissing = "(no Location header present)"
	LocationGarbled = "(garbled Location header)"
)

// HealthCondition is the diagnosis of one health probe.
type HealthCondition int

// Health conditions.
const (
	HealthHealthy HealthCondition = iota
	HealthSealed
	HealthNotInitialized
	HealthRedirected
	HealthUnreachable
	HealthOtherError
)

// String returns the metric label for the condition.
func (c HealthCondition) String() string {
	switch c {
	case HealthHealthy:
		return "healthy"
	case HealthSealed:
		return "sealed"
	case HealthNotInitialized:
		return "not_initialized"
	case HealthRedirected:
		return "redirected"
	case HealthUnreachable:
		return "unreachable"
	case HealthOtherError:
		return "other_error"
	default:
		return fmt.Sprintf("condition(%d)", int(c))
	}
}

// HealthState is the result of one probe. StatusCode and Location are set for
// HealthRedirected, Detail for HealthOtherError, Cause for HealthUnreachable.
type HealthState struct {
	Condition  HealthCondition
	StatusCode int
	Location   string
	Detail     string
	Cause      error
}

// Err converts the state to the error taxonomy. Healthy yields nil.
func (s HealthState) Err() error {
	switch s.Condition {
	case HealthHealthy:
		return nil
	case HealthSealed:
		return pkierr.VaultSealed()
	case HealthNotInitialized:
		return pkierr.VaultNotInitialized()
	case HealthRedirected:
		return pkierr.VaultRedirected(s.StatusCode, s.Location)
	case HealthUnreachable:
		return pkierr.VaultUnreachable(s.Cause)
	default:
		return pkierr.VaultOtherError(s.Detail, nil)
	}
}

// HealthProber diagnoses the backend's state with a single request.
type HealthProber interface {
	Probe(ctx context.Context) HealthState
}

// healthProber implements HealthProber against sys/health.
type healthProber struct {
	endpoint *endpoint
	logger   observability.Logger
}

// Probe issues one GET to sys/health and classifies the status code.
// It never retries.
func (p *healthProber) Probe(ctx context.Context) HealthState {
	logger := p.logger.WithContext(ctx)

	req, err := p.endpoint.newRequest(ctx, http.MethodGet, HealthPath)
	if err != nil {
		return HealthState{Condition: HealthOtherError, Detail: err.Error()}
	}

	logger.Debug("checking vault health", observability.String("url", req.URL.String()))

	resp, err := p.endpoint.client.Do(req)
	if err != nil {
		RecordConnectionError()
		state := HealthState{Condition: HealthUnreachable, Cause: err}
		RecordHealthCheck(state.Condition)
		return state
	}
	defer drainAndClose(resp.Body)

	state := classifyHealthResponse(resp)
	RecordHealthCheck(state.Condition)
	return state
}

// classifyHealthResponse maps a sys/health response to a HealthState.
func classifyHealthResponse(resp *http.Response) HealthState {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return HealthState{Condition: HealthHealthy, StatusCode: code}
	case code >= 300 && code < 400:
		return HealthState{Condition: HealthRedirected, StatusCode: code, Location: locationOf(resp.Header)}
	case code == http.StatusNotImplemented:
		return HealthState{Condition: HealthNotInitialized, StatusCode: code}
	case code == http.StatusServiceUnavailable:
		return HealthState{Condition: HealthSealed, StatusCode: code}
	default:
		return HealthState{
			Condition:  HealthOtherError,
			StatusCode: code,
			Detail:     fmt.Sprintf("healthcheck returned statuscode %d", code),
		}
	}
}

// locationOf returns the Location header, or a placeholder when it is absent
// or contains anything but visible ASCII.
func locationOf(h http.Header) string {
	values, ok := h["Location"]
	if !ok || len(values) == 0 {
		return LocationMissing
	}
	loc := values[0]
	for i := 0; i < len(loc); i++ {
		c := loc[i]
		if c != '\t' && (c < 0x20 || c > 0x7e) {
			return LocationGarbled
		}
	}
	return loc
}

// drainAndClose discards a bounded amount of the body so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
