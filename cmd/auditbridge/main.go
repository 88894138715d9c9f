// Package main implements the entry point for the auditbridge server, the
// streaming bridge that fans live security-audit events out from Kafka to
// browser clients over SSE and WebSocket push connections.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/SK-Rookies-Final-Project/Backend/auth"
	"github.com/SK-Rookies-Final-Project/Backend/config"
	"github.com/SK-Rookies-Final-Project/Backend/kafkaclient"
	"github.com/SK-Rookies-Final-Project/Backend/metric"
	"github.com/SK-Rookies-Final-Project/Backend/stream"
	"github.com/SK-Rookies-Final-Project/Backend/web"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "auditbridge"
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

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()

	registry, metricsServer, server, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(ctx, registry, metricsServer, server, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting auditbridge (security-audit event streaming)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// buildComponents wires the full stack: consumer factory, credential store,
// permission gate, token service, session registry, metrics, push server.
func buildComponents(
	cfg *config.Config,
	logger *slog.Logger,
) (*stream.Registry, *metric.Server, *web.Server, error) {
	var metricsRegistry *metric.MetricsRegistry
	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsRegistry = metric.NewMetricsRegistry()
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
	}

	factory, err := kafkaclient.NewFactory(cfg.Kafka.Bootstrap,
		kafkaclient.WithDialTimeout(config.Duration(cfg.Kafka.DialTimeout, 10*time.Second)),
		kafkaclient.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create consumer factory: %w", err)
	}

	creds := buildCredentialStore(cfg)
	bindings := stream.NewBindingSet(cfg.Kafka.Topics)

	regCfg := stream.RegistryConfig{
		Bindings:    bindings,
		Credentials: creds,
		Sources: stream.SourceFactoryFunc(func(username, password, topic string) (stream.RecordSource, error) {
			return factory.OpenSource(username, password, topic)
		}),
		Logger:          logger,
		MetricsRegistry: metricsRegistry,
		PushTimeout:     config.Duration(cfg.Stream.PushTimeout, 5*time.Second),
		PollTimeout:     config.Duration(cfg.Stream.PollTimeout, time.Second),
		SweepInterval:   config.Duration(cfg.Stream.SweepInterval, 10*time.Minute),
		BufferSize:      cfg.Stream.BufferSize,
	}
	registry, err := stream.NewRegistry(regCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create session registry: %w", err)
	}

	tokens := auth.NewJWTService(cfg.Auth.JWTSecret, config.Duration(cfg.Auth.TokenTTL, time.Hour))
	gate := auth.NewGate(auth.NewStaticPermissions(cfg.Auth.Grants), logger)

	server, err := web.NewServer(web.ServerConfig{
		Port:     cfg.Server.Port,
		Registry: registry,
		Bindings: bindings,
		Gate:     gate,
		Tokens:   tokens,
		Creds:    creds,
		Verifier: factory,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create push server: %w", err)
	}

	return registry, metricsServer, server, nil
}

// buildCredentialStore selects Redis when configured, in-memory otherwise
func buildCredentialStore(cfg *config.Config) auth.CredentialStore {
	if cfg.Auth.Redis.Addr != "" {
		slog.Info("Using Redis credential store", "addr", cfg.Auth.Redis.Addr)
		return auth.NewRedisCredentialStore(
			cfg.Auth.Redis.Addr,
			cfg.Auth.Redis.Password,
			cfg.Auth.Redis.DB,
			24*time.Hour,
		)
	}
	return auth.NewMemoryCredentialStore()
}

// runWithSignalHandling starts everything and stops in reverse order on
// SIGINT/SIGTERM.
func runWithSignalHandling(
	ctx context.Context,
	registry *stream.Registry,
	metricsServer *metric.Server,
	server *web.Server,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := registry.Start(signalCtx); err != nil {
		return fmt.Errorf("start session registry: %w", err)
	}

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	if err := server.Start(signalCtx); err != nil {
		return fmt.Errorf("start push server: %w", err)
	}

	slog.Info("auditbridge started successfully")
	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := server.Stop(shutdownTimeout); err != nil {
		slog.Error("push server stop failed", "error", err)
	}
	if err := registry.Stop(shutdownTimeout); err != nil {
		slog.Error("session registry stop failed", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownTimeout); err != nil {
			slog.Error("metrics server stop failed", "error", err)
		}
	}

	slog.Info("auditbridge shutdown complete")
	return nil
}
