package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/vaultpki/internal/observability"
	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
)

// createMetricsServer binds addr and creates the metrics HTTP server on it.
func createMetricsServer(addr string, logger observability.Logger) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, pkierr.BindAddressInvalid(err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("starting metrics server", observability.String("address", ln.Addr().String()))

	return &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}, ln, nil
}

// runMetricsServer serves metrics on ln until the server is shut down.
func runMetricsServer(server *http.Server, ln net.Listener, logger observability.Logger) {
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", observability.Error(err))
	}
}

// shutdownMetricsServer stops the server, waiting at most timeout.
func shutdownMetricsServer(server *http.Server, timeout time.Duration, logger observability.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown", observability.Error(err))
	}
}
