// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/plug/internal/config"
	"github.com/holomush/plug/internal/dom"
	"github.com/holomush/plug/internal/facade"
	"github.com/holomush/plug/internal/logging"
	"github.com/holomush/plug/internal/observability"
	"github.com/holomush/plug/pkg/errutil"
	"github.com/holomush/plug/pkg/plug"
	"github.com/holomush/plug/plugins/playground"
)

// runConfig holds configuration for the run command.
type runConfig struct {
	metricsAddr     string
	logFormat       string
	logLevel        string
	plugTimeout     time.Duration
	shutdownTimeout time.Duration
	companionOrigin string
}

// Validate checks that the configuration is valid.
func (cfg *runConfig) Validate() error {
	if cfg.logFormat != logging.FormatJSON && cfg.logFormat != logging.FormatText {
		return fmt.Errorf("log-format must be 'json' or 'text', got %q", cfg.logFormat)
	}
	if _, err := logging.ParseLevel(cfg.logLevel); err != nil {
		return err
	}
	if cfg.plugTimeout <= 0 {
		return fmt.Errorf("plug-timeout must be positive, got %s", cfg.plugTimeout)
	}
	if cfg.shutdownTimeout <= 0 {
		return fmt.Errorf("shutdown-timeout must be positive, got %s", cfg.shutdownTimeout)
	}
	return nil
}

// Default values for run command flags.
const (
	defaultMetricsAddr     = "127.0.0.1:9100"
	defaultLogFormat       = logging.FormatJSON
	defaultLogLevel        = "info"
	defaultPlugTimeout     = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	cfg := &runConfig{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plug in the configured plugins and serve until interrupted",
		Long: `Build the core services, enable the configured plugins in declaration
order and wait until every plugin has settled. The process then serves
metrics and health probes until SIGINT or SIGTERM, and unplugs on the way out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().StringVar(&cfg.logFormat, "log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().StringVar(&cfg.logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&cfg.plugTimeout, "plug-timeout", defaultPlugTimeout, "how long to wait for plugins to settle")
	cmd.Flags().DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", defaultShutdownTimeout, "how long to wait for plugins to disable")
	cmd.Flags().StringVar(&cfg.companionOrigin, "companion-origin", "", "answer handshakes from origins matching this glob with an in-process companion tool")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

// RunDeps contains injectable dependencies for the run command.
// All fields with nil values will use their default implementations.
type RunDeps struct {
	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, registrations ...observability.Registration) ObservabilityServer

	// Signals delivers shutdown signals.
	// Default: SIGINT and SIGTERM via signal.Notify
	Signals func() (<-chan os.Signal, func())

	// LogWriter receives log output.
	// Default: os.Stderr
	LogWriter io.Writer
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// runWithDeps runs one epoch with injectable dependencies.
// If deps is nil, default implementations are used.
func runWithDeps(ctx context.Context, cfg *runConfig, cmd *cobra.Command, deps *RunDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &RunDeps{}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker, registrations ...observability.Registration) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker, registrations...)
		}
	}
	if deps.Signals == nil {
		deps.Signals = func() (<-chan os.Signal, func()) {
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			return sigChan, func() { signal.Stop(sigChan) }
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := logging.ParseLevel(cfg.logLevel) //nolint:errcheck // validated above
	logOpts := logging.Options{
		Service: "plug",
		Version: version,
		Format:  cfg.logFormat,
		Level:   level,
		Writer:  deps.LogWriter,
	}
	logger := logging.SetDefault(logOpts)

	plugCfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if plugCfg.SDK.Debug && level > slog.LevelDebug {
		logOpts.Level = slog.LevelDebug
		logger = logging.SetDefault(logOpts)
		logger.Debug("debug logging enabled by configuration")
	}

	registry, err := builtinRegistry()
	if err != nil {
		return fmt.Errorf("failed to register plugins: %w", err)
	}

	facadeOpts := []facade.Option{facade.WithLogger(logger)}
	if cfg.companionOrigin != "" {
		doc := hostDocument(plugCfg)
		if err := doc.Route(cfg.companionOrigin, companionTool(logger.With("component", "companion"))); err != nil {
			return fmt.Errorf("invalid companion origin: %w", err)
		}
		facadeOpts = append(facadeOpts, facade.WithDocument(doc))
	}

	p := plug.New(
		plug.WithRegistry(registry),
		plug.WithLogger(logger),
		plug.WithFacadeFactory(plug.DefaultFacadeFactory(facadeOpts...)),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	if cfg.metricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.metricsAddr,
			observability.SettledReadiness(p.Plugged),
			plug.RegisterMetrics,
			facade.RegisterMetrics,
			playground.RegisterMetrics,
		)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}
	defer func() {
		if obsServer == nil {
			return
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := obsServer.Stop(stopCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}()

	sigChan, stopSignals := deps.Signals()
	defer stopSignals()

	if err := p.Plug(ctx, plugCfg); err != nil {
		return fmt.Errorf("failed to plug in: %w", err)
	}
	defer func() {
		unplugCtx, unplugCancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
		defer unplugCancel()
		if err := p.Unplug(unplugCtx); err != nil {
			errutil.LogError(logger, "unplug failed", err)
		}
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, cfg.plugTimeout)
	_, err = p.Plugged().Await(waitCtx)
	waitCancel()
	if err != nil {
		return fmt.Errorf("plugins did not settle: %w", err)
	}

	cmd.Println("Plugged in")
	slog.Info("plug ready", "epoch", p.Epoch(), "plugins", len(plugCfg.Plugins))

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	return nil
}

// hostDocument creates the document plugins embed frames into.
func hostDocument(cfg plug.Configuration) *dom.Document {
	origin := cfg.SDK.Document.Origin
	if origin == "" {
		origin = dom.OriginOf(cfg.SDK.Tab.URL)
	}
	return dom.New(origin, dom.WithLogger(slog.Default().With("component", "dom")))
}

// monitorServerErrors cancels ctx when the server reports an error. It
// returns once the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
