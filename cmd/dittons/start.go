package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/dittons/internal/logger"
	"github.com/marmos91/dittons/internal/telemetry"
	"github.com/marmos91/dittons/pkg/config"
	"github.com/marmos91/dittons/pkg/gc"
	"github.com/marmos91/dittons/pkg/server"
	"github.com/spf13/cobra"
)

func newStartCmd(configPath *string) *cobra.Command {
	var (
		logLevel string
		port     int
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the DittoNS server",
		Long: `Start loads the configuration, opens the node and block stores and
serves the namespace until SIGINT or SIGTERM is received.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if cmd.Flags().Changed("port") {
				cfg.Adapters.REST.Port = port
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "override logging.level (DEBUG, INFO, WARN, ERROR)")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultRESTPort, "override adapters.rest.port")
	return cmd
}

func runServer(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("DittoNS %s starting", version)
	logger.Info("Metadata store: %s, block store: %s", cfg.Metadata.Type, cfg.Blocks.Type)

	tp, err := telemetry.NewProvider(ctx, cfg.Server.Telemetry, version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown: %v", err)
		}
	}()

	m := config.InitializeMetrics(cfg)

	engine, nodes, blocks, err := config.CreateEngine(ctx, cfg, m.Namespace)
	if err != nil {
		return fmt.Errorf("failed to create namespace engine: %w", err)
	}
	defer func() {
		if err := nodes.Close(); err != nil {
			logger.Error("Failed to close metadata store: %v", err)
		}
	}()

	collector, err := gc.NewCollector(engine, blocks, cfg.GC, m.GC)
	if err != nil {
		return fmt.Errorf("failed to create garbage collector: %w", err)
	}

	opts := []server.Option{
		server.WithCollector(collector),
		server.WithStopTimeout(cfg.Server.ShutdownTimeout),
	}
	if m.Server != nil {
		opts = append(opts, server.WithMetricsServer(m.Server))
		logger.Info("Metrics enabled on port %d", cfg.Server.Metrics.Port)
	}
	srv := server.New(engine, opts...)

	adapters, err := config.CreateAdapters(cfg, m.HTTP)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error: %v", err)
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// exitOnSignal is used by the fs commands to abort long uploads on Ctrl+C.
func exitOnSignal(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
