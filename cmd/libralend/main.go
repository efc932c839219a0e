// cmd/libralend/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"libralend/internal/config"
	"libralend/internal/library"
	"libralend/internal/logger"
	"libralend/internal/membership"
	"libralend/internal/telemetry"
)

// app carries what PersistentPreRunE set up for the subcommands.
type app struct {
	configPath string
	cfg        *config.Config
	log        *logger.Logger
	shutdown   telemetry.Shutdown
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "libralend",
		Short:         "Concurrent lending registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config.yaml", "path to a YAML config file")

	root.AddCommand(newServeCmd(a), newConsoleCmd(a), newChaosCmd(a))
	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg

	log, err := logger.NewLogger(cfg.Log.Environment(), cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(log)
	a.log = log

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.shutdown != nil {
		if err := a.shutdown(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}
	if a.log != nil {
		if err := a.log.Sync(); err != nil && !isStdSyncError(err) {
			return fmt.Errorf("failed to sync logger: %w", err)
		}
	}
	return nil
}

// Syncing a terminal fails on some platforms and is harmless.
func isStdSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr") || strings.Contains(msg, "sync /dev/stdout")
}

func (a *app) newRegistry(opts ...library.Option) *library.Registry {
	base := []library.Option{
		library.WithLogger(a.log),
		library.WithRegistrationLimiter(membership.RegistrationLimiter(
			a.cfg.Membership.RegistrationsPerMinute,
			a.cfg.Membership.RegistrationBurst,
		)),
	}
	return library.New(append(base, opts...)...)
}
