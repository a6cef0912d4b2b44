// Package main implements the recordcache server: a normalized record cache
// with conflict-resolving merges in front of a REST record backend.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/recordcache/adapter"
	"github.com/c360/recordcache/config"
	"github.com/c360/recordcache/gateway"
	"github.com/c360/recordcache/health"
	"github.com/c360/recordcache/metric"
	"github.com/c360/recordcache/natsclient"
	"github.com/c360/recordcache/storage/kvmirror"
	"github.com/c360/recordcache/upstream"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "recordcache"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

// run parses args, loads configuration and serves until ctx is done.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cliCfg, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s (%s)\n", appName, Version, BuildTime)
		return nil
	}

	cfg, err := loadConfig(cliCfg.ConfigPaths)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(stdout,
		firstNonEmpty(cliCfg.LogLevel, cfg.Logging.Level),
		firstNonEmpty(cliCfg.LogFormat, cfg.Logging.Format))
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.Redacted())
		return nil
	}

	logger.Info("Starting recordcache",
		"build_time", BuildTime,
		"config_paths", cliCfg.ConfigPaths,
		"upstream", cfg.Upstream.BaseURL,
		"mirror", cfg.Mirror.Enabled)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return a.run(ctx, cliCfg.ShutdownTimeout)
}

// loadConfig layers the given files over the defaults and validates the result.
func loadConfig(paths []string) (*config.Config, error) {
	loader := config.NewLoader()
	for _, path := range paths {
		loader.AddLayer(path)
	}
	loader.EnableValidation(true)
	return loader.Load()
}

// app holds the wired process.
type app struct {
	logger   *slog.Logger
	service  *adapter.Service
	gateway  *gateway.Gateway
	mirror   *kvmirror.Mirror
	nats     *natsclient.Client
	shutdown time.Duration
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	registry := metric.NewMetricsRegistry()
	a := &app{logger: logger, shutdown: cfg.Gateway.ShutdownTimeout.Std()}

	client, err := upstream.New(cfg.UpstreamClientConfig(), registry.CoreMetrics(), logger)
	if err != nil {
		return nil, fmt.Errorf("create upstream client: %w", err)
	}

	deps := adapter.Dependencies{
		Upstream:        client,
		MetricsRegistry: registry,
		Logger:          logger,
	}

	monitor := health.NewMonitor()
	if cfg.Mirror.Enabled {
		if err := a.connectMirror(ctx, cfg, registry); err != nil {
			return nil, err
		}
		deps.Mirror = a.mirror
		nc := a.nats
		monitor.Register("mirror", func(context.Context) health.Status {
			snap := nc.Snapshot()
			if snap.Status == natsclient.StatusConnected {
				return health.NewHealthy("mirror", fmt.Sprintf("connected, rtt %s", snap.RTT))
			}
			return health.NewDegraded("mirror", fmt.Sprintf("mirror %s after %d failures", snap.Status, snap.FailureCount))
		})
	}

	svc, err := adapter.NewService(cfg.AdapterConfig(), deps)
	if err != nil {
		a.closeMirror()
		return nil, fmt.Errorf("create service: %w", err)
	}
	a.service = svc

	if cfg.Mirror.Enabled && cfg.Mirror.Restore {
		restored, err := svc.Restore(ctx, a.mirror)
		if err != nil {
			logger.Warn("Warm start from mirror failed, continuing cold", "error", err, "restored", restored)
		}
	}

	monitor.Register("records", func(context.Context) health.Status {
		stats := svc.Stats()
		return health.NewHealthy("records", "serving").WithMetrics(&health.Metrics{Entries: stats.Records.Entries})
	})
	monitor.Register("refetch", func(context.Context) health.Status {
		stats := svc.Stats().Refetch
		status := health.NewHealthy("refetch", "draining")
		if stats.QueueDepth >= stats.QueueSize {
			status = health.NewDegraded("refetch", "queue full, refetches are being dropped")
		}
		return status.WithMetrics(&health.Metrics{QueueDepth: stats.QueueDepth, Dropped: stats.Dropped})
	})

	handler, err := gateway.NewHandler(gateway.HandlerDeps{
		Service:         svc,
		Health:          monitor,
		MetricsRegistry: registry,
		Logger:          logger,
		RequestTimeout:  cfg.Gateway.WriteTimeout.Std(),
	})
	if err != nil {
		a.closeMirror()
		return nil, err
	}
	a.gateway, err = gateway.New(gateway.Config{
		Addr:            cfg.Gateway.Addr,
		ReadTimeout:     cfg.Gateway.ReadTimeout.Std(),
		WriteTimeout:    cfg.Gateway.WriteTimeout.Std(),
		ShutdownTimeout: cfg.Gateway.ShutdownTimeout.Std(),
		TLS:             cfg.Gateway.TLS,
	}, handler, logger)
	if err != nil {
		a.closeMirror()
		return nil, err
	}
	return a, nil
}

// connectMirror dials NATS, opens the bucket and starts the mirror writer.
func (a *app) connectMirror(ctx context.Context, cfg *config.Config, registry *metric.MetricsRegistry) error {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(a.logger),
		natsclient.WithMetrics(registry.CoreMetrics()),
		natsclient.WithReconnect(-1, time.Duration(cfg.Mirror.ReconnectWait)),
		natsclient.WithAuth(natsclient.Auth{
			Token:    cfg.Mirror.Token,
			Username: cfg.Mirror.Username,
			Password: cfg.Mirror.Password,
		}),
	}
	if cfg.Mirror.TLS != nil {
		opts = append(opts, natsclient.WithTLS(*cfg.Mirror.TLS))
	}

	nc, err := natsclient.NewClient(strings.Join(cfg.Mirror.URLs, ","), opts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	a.logger.Info("Connecting to NATS", "urls", cfg.Mirror.URLs)
	if err := nc.Open(ctx, 10*time.Second); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	a.nats = nc

	bucket, err := kvmirror.OpenBucket(ctx, nc, cfg.Mirror.Bucket)
	if err != nil {
		a.closeMirror()
		return fmt.Errorf("open mirror bucket: %w", err)
	}
	a.mirror = kvmirror.New(cfg.MirrorWriterConfig(), bucket, registry, a.logger)
	if err := a.mirror.Start(ctx); err != nil {
		a.closeMirror()
		return fmt.Errorf("start mirror: %w", err)
	}
	return nil
}

// run starts the adapters and the gateway, then blocks until ctx is done or
// the gateway fails.
func (a *app) run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := a.service.Start(ctx); err != nil {
		a.closeMirror()
		return fmt.Errorf("start service: %w", err)
	}
	if err := a.gateway.Start(ctx); err != nil {
		a.stop(shutdownTimeout)
		return fmt.Errorf("start gateway: %w", err)
	}
	a.logger.Info("recordcache started", "addr", a.gateway.Addr())

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	case serveErr = <-a.gateway.Done():
		a.logger.Error("Gateway exited", "error", serveErr)
	}

	a.stop(shutdownTimeout)
	a.logger.Info("recordcache shutdown complete")
	return serveErr
}

// stop shuts components down in reverse start order.
func (a *app) stop(timeout time.Duration) {
	gatewayTimeout := a.shutdown
	if gatewayTimeout <= 0 || gatewayTimeout > timeout {
		gatewayTimeout = timeout
	}
	if err := a.gateway.Stop(gatewayTimeout); err != nil {
		a.logger.Error("Error stopping gateway", "error", err)
	}
	if err := a.service.Stop(timeout); err != nil {
		a.logger.Error("Error stopping adapters", "error", err)
	}
	a.closeMirror()
}

// closeMirror flushes queued mirror writes and closes the NATS connection.
func (a *app) closeMirror() {
	if a.mirror != nil {
		if err := a.mirror.Stop(5 * time.Second); err != nil {
			a.logger.Error("Error stopping mirror", "error", err)
		}
		a.mirror = nil
	}
	if a.nats != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.nats.Close(ctx); err != nil {
			a.logger.Error("Error closing NATS", "error", err)
		}
		a.nats = nil
	}
}
