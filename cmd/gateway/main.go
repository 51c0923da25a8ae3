package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btslabs/chain-gateway/internal/aggregate"
	"github.com/btslabs/chain-gateway/internal/cache"
	"github.com/btslabs/chain-gateway/internal/config"
	"github.com/btslabs/chain-gateway/internal/deeplink"
	"github.com/btslabs/chain-gateway/internal/explorer"
	"github.com/btslabs/chain-gateway/internal/fetch"
	"github.com/btslabs/chain-gateway/internal/metrics"
	"github.com/btslabs/chain-gateway/internal/model"
	"github.com/btslabs/chain-gateway/internal/nodepool"
	"github.com/btslabs/chain-gateway/internal/rpc"
	"github.com/btslabs/chain-gateway/internal/server"
	"github.com/btslabs/chain-gateway/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gateway.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gateway",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"mainnet_nodes", len(cfg.Chains.Bitshares.Nodes),
		"testnet_nodes", len(cfg.Chains.Testnet.Nodes),
		"listen_addr", cfg.Server.ListenAddr,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	m := metrics.New()

	// Build the snapshot cache from the on-disk fixtures
	logger.Info("building snapshot cache", "dir", cfg.Cache.FixturesDir)
	store, err := cache.Build(cache.Config{Dir: cfg.Cache.FixturesDir}, logger)
	if err != nil {
		logger.Error("failed to build snapshot cache", "error", err)
		os.Exit(1)
	}
	logger.Info("snapshot cache ready")

	// Chain node pool and websocket plumbing
	pool, err := nodepool.New(cfg.NodeLists())
	if err != nil {
		logger.Error("failed to build node pool", "error", err)
		os.Exit(1)
	}

	dialer := rpc.NewDialer(rpc.Config{
		DialTimeout: cfg.RPC.DialTimeout,
		CallTimeout: cfg.RPC.CallTimeout,
	}, logger)

	fetcher := fetch.New(fetch.Config{
		ChunkSize:           cfg.Fetch.ChunkSize,
		MaxConcurrentChunks: cfg.Fetch.MaxConcurrentChunks,
	}, pool, dialer, m, logger)

	aggregator := aggregate.New(pool, dialer, m, logger)

	// Explorer passthrough client
	explorerClient := explorer.NewClient(
		explorer.WithBaseURL(model.Mainnet, cfg.Explorer.MainnetURL),
		explorer.WithBaseURL(model.Testnet, cfg.Explorer.TestnetURL),
		explorer.WithTimeout(cfg.Explorer.Timeout),
		explorer.WithRetries(cfg.Explorer.MaxRetries, time.Second),
		explorer.WithLogger(logger),
	)

	// Deep links price transactions through the aggregator
	linker := deeplink.New(deeplink.Config{
		AppName: cfg.Deeplink.AppName,
		Browser: cfg.Deeplink.Browser,
		Origin:  cfg.Deeplink.Origin,
	}, aggregator)

	srv := server.New(server.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsPath:     cfg.Metrics.Path,
	}, store, aggregator, fetcher, explorerClient, linker, m, logger)

	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start http server", "error", err)
		os.Exit(1)
	}

	logger.Info("gateway running", "addr", cfg.Server.ListenAddr)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	logger.Info("gateway stopped")
}
