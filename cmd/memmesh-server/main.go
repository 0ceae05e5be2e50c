// Package main provides the entry point for memmesh-server.
//
// memmesh-server is the federation node process for MemMesh, a
// distributed coordination mesh with peer discovery, health-tracked
// membership, a consensus-replicated keyspace and an eventually
// consistent gossip-replicated keyspace.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/yndnr/memmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/memmesh-go/internal/infra/confloader"
	"github.com/yndnr/memmesh-go/internal/infra/shutdown"
	"github.com/yndnr/memmesh-go/internal/server/config"
	"github.com/yndnr/memmesh-go/internal/server/fedserver"
	"github.com/yndnr/memmesh-go/internal/telemetry/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("memmesh-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, slogLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting memmesh-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", *configFile)

	node, err := fedserver.New(fedserver.Config{
		Base:       cfg,
		ConfigFile: *configFile,
		Logger:     slogLogger,
	})
	if err != nil {
		return fmt.Errorf("assemble node: %w", err)
	}

	if err := node.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	shutdownHandler := shutdown.NewHandler(shutdown.DefaultTimeout)
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down federation node")
		return node.Stop(ctx)
	})

	log.Info("node started, press Ctrl+C to stop",
		"node_id", node.ID(),
		"addr", node.Addr())
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("node stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initLogger initializes the structured logger and installs it as the
// process default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, *slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, nil, err
	}

	logger.SetDefault(log)
	return log, slog.Default(), nil
}
