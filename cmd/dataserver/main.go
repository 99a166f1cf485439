// Package main implements the clusterdata server.
// The server exposes cluster snapshot policies and time-series metrics stored
// as JSON documents, and lets callers insert or update snapshot records.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/clusterdata/cmd/dataserver/config"
	"github.com/HatiCode/clusterdata/cmd/dataserver/health"
	"github.com/HatiCode/clusterdata/cmd/dataserver/logger"
	"github.com/HatiCode/clusterdata/cmd/dataserver/metrics"
	"github.com/HatiCode/clusterdata/cmd/dataserver/router"
	"github.com/HatiCode/clusterdata/cmd/dataserver/store"
	"github.com/HatiCode/clusterdata/pkg/datastore"
	"github.com/HatiCode/clusterdata/pkg/httpx"
)

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting clusterdata server",
		"version", "v0.1.0",
		"listen", cfg.Listen,
		"storage", cfg.Storage,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, locker, err := store.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	ds := datastore.New(backend, datastore.Options{
		SnapshotName:   cfg.SnapshotName,
		TimeSeriesName: cfg.TimeSeriesName,
		Locker:         locker,
		Observer:       m,
		Logger:         log,
	})

	mux := router.SetupRoutes(ds, prometheus.DefaultGatherer, log)
	handler := httpx.RecoveryMiddleware(log)(httpx.LoggingMiddleware(log)(mux))
	httpServer := httpx.NewServer(cfg.Listen, handler, log)

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Start()
	}()

	var healthServer *health.Server
	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			log.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}
		healthServer = health.New(ds.Ping, 0, log)
		go healthServer.Run(ctx)
		go func() {
			serverErr <- healthServer.Serve(lis)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
			exitCode = 1
		}
	}

	log.Info("shutting down")
	cancel()

	if healthServer != nil {
		log.Info("shutting down grpc health server")
		healthServer.Stop()
	}

	if err := httpServer.Stop(cfg.ShutdownTimeout); err != nil {
		log.Error("server shutdown failed", "error", err)
		exitCode = 1
	}

	if err := backend.Close(); err != nil {
		log.Error("failed to close storage", "error", err)
	}

	log.Info("shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
