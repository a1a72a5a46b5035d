package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/vaultpki/internal/pkierr"
)

// cliFlags holds the persistent command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
	staticDir   string
	timeout     time.Duration
}

// newRootCmd builds the command tree writing results to out and logs to errOut.
func newRootCmd(out, errOut io.Writer) *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:           "pkiclient",
		Short:         "Read certificates from a Vault PKI mount",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", getEnvOrDefault("PKICLIENT_CONFIG", ""),
		"path to YAML configuration file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format (json, console)")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	pf.StringVar(&flags.staticDir, "static-dir", "",
		"serve certificates from <serial>.pem and ca.pem files in this directory instead of Vault")
	pf.DurationVar(&flags.timeout, "timeout", 0, "overall deadline for the command (0 means none)")

	root.AddCommand(
		newListCmd(flags),
		newCertCmd(flags),
		newCACmd(flags),
		newHealthCmd(flags),
	)
	return root
}

func newListCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the serials of all issued certificates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				serials, err := a.getter.CertificateList(ctx)
				if err != nil {
					return err
				}
				for _, serial := range serials {
					fmt.Fprintln(cmd.OutOrStdout(), serial)
				}
				return nil
			})
		},
	}
}

func newCertCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cert SERIAL",
		Short: "Print one certificate as PEM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				pemText, err := a.getter.CertificateBySerialAsPEM(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), pemText)
				return nil
			})
		},
	}
}

func newCACmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ca",
		Short: "Print the intermediate CA certificate as PEM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				pemText, err := a.getter.IMCertificateAsPEM(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), pemText)
				return nil
			})
		},
	}
}

func newHealthCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe Vault once and report its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if a.gateway == nil {
					return pkierr.RequestValidationFailed("health is not available with --static-dir")
				}
				state := a.gateway.Health(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), state.Condition.String())
				return state.Err()
			})
		},
	}
}

// withApp builds the application, runs fn under a signal-aware context and
// tears everything down afterwards.
func withApp(cmd *cobra.Command, flags *cliFlags, fn func(context.Context, *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}

	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}
