package main

import (
	"context"
	"net/http"
	"time"

	"github.com/vyrodovalexey/vaultpki/internal/config"
	"github.com/vyrodovalexey/vaultpki/internal/observability"
	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
	"github.com/vyrodovalexey/vaultpki/internal/transport"
	"github.com/vyrodovalexey/vaultpki/internal/vault"
)

const shutdownTimeout = 5 * time.Second

// app holds the wired components for one command invocation.
type app struct {
	config        *config.Config
	logger        observability.Logger
	tracer        *observability.Tracer
	metricsServer *http.Server

	// gateway is nil when certificates come from --static-dir.
	gateway *vault.Gateway
	getter  vault.CertificateGetter
}

// newApp loads configuration and wires logging, tracing, metrics and the getter.
func newApp(ctx context.Context, flags *cliFlags) (*app, error) {
	cfg, err := config.NewLoader().Read(flags.configPath)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cfg, flags)

	// --static-dir never talks to Vault, so only the observability sections must hold.
	if flags.staticDir != "" {
		err = cfg.ValidateObservability()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{config: cfg, logger: logger, tracer: observability.NopTracer()}

	if cfg.Tracing.Enabled {
		tracer, err := observability.NewTracer(ctx, cfg.Tracing)
		if err != nil {
			a.close()
			return nil, pkierr.ConfigurationFailed("unable to initialize tracing", err)
		}
		a.tracer = tracer
	}

	if cfg.Metrics.Addr != "" {
		server, ln, err := createMetricsServer(cfg.Metrics.Addr, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.metricsServer = server
		go runMetricsServer(server, ln, logger)
	}

	if flags.staticDir != "" {
		getter, err := vault.LoadStaticGetter(flags.staticDir)
		if err != nil {
			a.close()
			return nil, err
		}
		logger.Info("serving certificates from directory", observability.String("dir", flags.staticDir))
		a.getter = getter
		return a, nil
	}

	anchors, err := transport.LoadTrustAnchors(cfg.TLS.TrustAnchorsDir)
	if err != nil {
		a.close()
		return nil, err
	}

	gw, err := vault.NewGateway(cfg.ToVaultConfig(), anchors, logger,
		vault.WithTracer(a.tracer),
		vault.WithUserAgent("pkiclient/"+version),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.gateway = gw
	a.getter = gw
	return a, nil
}

// applyFlagOverrides lets explicit flags win over file and environment.
func applyFlagOverrides(cfg *config.Config, flags *cliFlags) {
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	if flags.metricsAddr != "" {
		cfg.Metrics.Addr = flags.metricsAddr
	}
}

// close releases everything newApp started.
func (a *app) close() {
	if a.metricsServer != nil {
		shutdownMetricsServer(a.metricsServer, shutdownTimeout, a.logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("tracer shutdown", observability.Error(err))
	}

	_ = a.logger.Sync()
}
