// Package main provides the entry point for the toy-kv server. It
// initializes the logger, loads configuration, opens the storage engine
// and serves the wire protocol over TCP until interrupted.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/chux0519/toy-kv/internal/config"
	"github.com/chux0519/toy-kv/internal/engine"
	"github.com/chux0519/toy-kv/internal/transport"
)

func main() {
	configPath := pflag.String("config", config.DefaultPath, "path to the YAML configuration file")
	addr := pflag.String("addr", "", "listen address (overrides configuration)")
	dir := pflag.String("dir", "", "data directory (overrides configuration)")
	debug := pflag.Bool("debug", false, "enable verbose logging")
	pflag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	slog.Info("main: loading configuration",
		"path", *configPath)
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("main: failed to load configuration",
			"error", err)
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.LISTEN_ADDR = *addr
	}
	if *dir != "" {
		cfg.DATA_DIR = *dir
	}
	slog.Info("main: configuration loaded",
		"data_dir", cfg.DATA_DIR,
		"listen_addr", cfg.LISTEN_ADDR,
		"heartbeat_interval", cfg.HEARTBEAT_INTERVAL,
		"session_timeout", cfg.SESSION_TIMEOUT,
	)

	store, err := engine.OpenWithOptions(cfg.DATA_DIR, engine.Options{
		BloomCapacity: cfg.BLOOM_CAPACITY,
		BloomFPRate:   cfg.BLOOM_FP_RATE,
	})
	if err != nil {
		slog.Error("main: failed to open store",
			"error", err)
		log.Fatalf("Failed to open store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("main: error closing store",
				"error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := transport.NewServer(cfg, store)
	if err := server.ListenAndServe(ctx); err != nil {
		slog.Error("main: server error",
			"error", err)
		log.Fatalf("Server error: %v", err)
	}
}
