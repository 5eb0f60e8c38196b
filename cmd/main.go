package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/scope/config"
	"github.com/angeloszaimis/scope/internal/api"
	"github.com/angeloszaimis/scope/internal/httpserver"
	"github.com/angeloszaimis/scope/internal/metrics"
	"github.com/angeloszaimis/scope/internal/tap"
	"github.com/angeloszaimis/scope/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scope",
		Short: "Record and pin HTTP traffic between clients and upstream services",
		Long: `scope runs taps: listeners that forward every request to a fixed upstream,
record the last responses per route and can answer a route with a pinned
response instead. Taps are managed through a JSON control plane.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment, os.Stdout)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := run(ctx, cfg, log); err != nil {
				log.Error("Scope stopped with error", slog.Any("err", err))
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String(config.FlagConfig, "", "path to a config file (default ./config/config.yaml or ./config.yaml)")
	flags.String(config.FlagAddress, "127.0.0.1:8080", "control plane listen address")
	flags.String(config.FlagLogLevel, config.LogLevelInfo, "log level: debug, info, warn or error")

	return cmd
}

// run serves the control plane until ctx is cancelled, then stops it and
// every tap.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log)
	collector.Start(ctx)

	tlsConfig, err := loadTLSConfig(cfg.TLS)
	if err != nil {
		return err
	}

	manager := tap.NewManager(log, tap.Options{
		BindHost:  cfg.Tap.BindHost,
		TLSConfig: tlsConfig,
		Collector: collector,
	})

	if err := createPresetTaps(manager, cfg.Taps); err != nil {
		return errors.Join(err, manager.Close(context.Background()))
	}

	srv, err := httpserver.New(cfg.Server.Address,
		setupRouter(api.New(log, manager), collector),
		httpserver.WithLogger(log))
	if err != nil {
		return errors.Join(fmt.Errorf("failed to create control plane: %w", err), manager.Close(context.Background()))
	}

	if err := srv.Listen(); err != nil {
		return errors.Join(fmt.Errorf("failed to bind control plane: %w", err), manager.Close(context.Background()))
	}

	log.Info("Control plane listening", slog.String("address", srv.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Serve)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")

		shutdownCtx := context.Background()
		return errors.Join(srv.Shutdown(shutdownCtx), manager.Close(shutdownCtx))
	})

	return g.Wait()
}

func createPresetTaps(manager *tap.Manager, taps []config.TapConfig) error {
	for _, t := range taps {
		if _, err := manager.CreateTap(t.Address, t.Port, t.Label); err != nil {
			return fmt.Errorf("failed to create tap for %s on port %d: %w", t.Address, t.Port, err)
		}
	}
	return nil
}

// loadTLSConfig returns nil when no key pair is configured.
func loadTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
