package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vyrodovalexey/vaultpki/internal/observability"
	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
	"github.com/vyrodovalexey/vaultpki/internal/retry"
)

// Unbounded makes Execute retry until success or a fatal classification.
const Unbounded = 0

// outcome classifies one attempt of the executor loop.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetry
	outcomeFatal
)

// String returns the metric label for the outcome.
func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeRetry:
		return "retry"
	case outcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// statusClass is the first-phase decision on a primary response.
type statusClass int

const (
	statusOK statusClass = iota
	statusClientError
	statusRedirect
	statusDiagnose
)

// classifyStatus decides what a primary response status means before any
// health probe is made.
func classifyStatus(code int) statusClass {
	switch {
	case code >= 200 && code < 300:
		return statusOK
	case code >= 300 && code < 400:
		return statusRedirect
	case code >= 400 && code < 500:
		return statusClientError
	default:
		return statusDiagnose
	}
}

// classifyHealth is the second-phase decision after a probe. Only a redirect is
// fatal; every other diagnosis, Healthy included, is retried.
func classifyHealth(state HealthState) (outcome, error) {
	switch state.Condition {
	case HealthRedirected:
		return outcomeFatal, state.Err()
	default:
		return outcomeRetry, state.Err()
	}
}

// Executor runs Vault requests through the retry and diagnosis loop.
// It is safe for concurrent use; each Execute call runs its attempts sequentially.
type Executor struct {
	endpoint *endpoint
	prober   HealthProber
	backoff  retry.Backoff
	logger   observability.Logger
	tracer   *observability.Tracer
}

// Execute sends method to {base}/v1/{path} until it succeeds, a fatal status is
// seen, maxAttempts is spent, or ctx is done. maxAttempts <= 0 means Unbounded.
// On success the caller owns the response body.
func (e *Executor) Execute(ctx context.Context, method, path string, maxAttempts int) (*http.Response, error) {
	logger := e.logger.WithContext(ctx).With(
		observability.String("method", method),
		observability.String("path", path),
	)
	logger.Debug("vault request")

	for attempt := 1; maxAttempts <= 0 || attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait := e.backoff.Next(attempt)
			logger.Debug("waiting before next attempt",
				observability.Int("attempt", attempt),
				observability.Duration("wait", wait),
			)
			if err := retry.Wait(ctx, wait); err != nil {
				return nil, contextError(err)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}

		resp, o, err := e.attempt(ctx, logger, method, path, attempt)
		RecordAttempt(o)

		switch o {
		case outcomeSuccess:
			return resp, nil
		case outcomeFatal:
			logger.Error("vault request failed, not retrying",
				observability.Int("attempt", attempt),
				observability.Error(err),
			)
			return nil, err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(ctxErr)
		}
	}

	err := pkierr.VaultOtherError(fmt.Sprintf("unable to communicate after %d attempts; giving up", maxAttempts), nil)
	logger.Error("vault request exhausted", observability.Error(err))
	return nil, err
}

// attempt performs one primary request and, for ambiguous statuses, one probe.
func (e *Executor) attempt(
	ctx context.Context,
	logger observability.Logger,
	method, path string,
	attempt int,
) (*http.Response, outcome, error) {
	ctx, span := e.tracer.StartSpan(ctx, "vault.attempt")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.Int("vault.attempt", attempt),
	)

	req, err := e.endpoint.newRequest(ctx, method, path)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, outcomeFatal, err
	}

	resp, err := e.endpoint.client.Do(req)
	if err != nil {
		RecordConnectionError()
		terr := pkierr.FromTransport(err)
		span.SetStatus(codes.Error, terr.Error())
		logger.Warn("unable to communicate with vault; retrying",
			observability.Int("attempt", attempt),
			observability.String("kind", terr.Kind.String()),
			observability.Error(err),
		)
		return nil, outcomeRetry, terr
	}

	code := resp.StatusCode
	span.SetAttributes(attribute.Int("http.response.status_code", code))

	switch classifyStatus(code) {
	case statusOK:
		return resp, outcomeSuccess, nil

	case statusRedirect:
		location := locationOf(resp.Header)
		drainAndClose(resp.Body)
		span.SetStatus(codes.Error, "redirect")
		return nil, outcomeFatal, pkierr.VaultRedirected(code, location)

	case statusClientError:
		drainAndClose(resp.Body)
		span.SetStatus(codes.Error, "client error")
		return nil, outcomeFatal, pkierr.VaultOtherError(
			fmt.Sprintf("vault reported client-side error (code %d)", code), nil)
	}

	drainAndClose(resp.Body)

	state := e.prober.Probe(ctx)
	o, diagErr := classifyHealth(state)
	span.SetAttributes(attribute.String("vault.health", state.Condition.String()))

	switch {
	case o == outcomeFatal:
		span.SetStatus(codes.Error, diagErr.Error())
	case state.Condition == HealthHealthy:
		logger.Debug("vault reports healthy after failed request; retrying",
			observability.Int("attempt", attempt),
			observability.Int("status", code),
		)
	case state.Condition == HealthSealed:
		logger.Warn("vault is still sealed; retrying",
			observability.Int("attempt", attempt),
		)
	default:
		logger.Warn("got error from vault; retrying",
			observability.Int("attempt", attempt),
			observability.Int("status", code),
			observability.Error(diagErr),
		)
	}

	if diagErr == nil {
		diagErr = pkierr.VaultOtherError(fmt.Sprintf("vault returned status %d", code), nil)
	}
	return nil, o, diagErr
}

// contextError maps a context failure into the taxonomy.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkierr.HTTPTimeout(err)
	}
	return pkierr.VaultOtherError("request canceled", err)
}

// newExecutor wires an executor with defaults for anything left nil.
func newExecutor(ep *endpoint, prober HealthProber, backoff retry.Backoff,
	logger observability.Logger, tracer *observability.Tracer) *Executor {
	if prober == nil {
		prober = &healthProber{endpoint: ep, logger: logger}
	}
	if backoff == nil {
		backoff = retry.NewConstantBackoff(retry.DefaultInterval)
	}
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	return &Executor{
		endpoint: ep,
		prober:   prober,
		backoff:  backoff,
		logger:   logger,
		tracer:   tracer,
	}
}
