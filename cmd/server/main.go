package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/SanjeetWD1419/chat-web/internal/server"
)

func main() {
	configPath := flag.String("config", "", "optional path to a YAML config file")
	flag.Parse()

	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	server.SetConfig(cfg)

	logger := logs.GetLoggerFromString(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("Starting chat relay",
		"port", cfg.Port,
		"origins", cfg.AllowedOrigins,
		"max_message_size", cfg.MaxMessageSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := server.NewHub(logger)
	go hub.Run()

	if *configPath != "" {
		go func() {
			if err := server.WatchConfig(ctx, *configPath, logger, server.SetConfig); err != nil {
				logger.Error("Config watcher stopped", "err", err)
			}
		}()
	}

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, logger)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server stopped", "err", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	if err := server.ShutdownServer(httpServer, hub, cfg.ShutdownTimeout); err != nil {
		logger.Warn("Shutdown incomplete", "err", err)
	}
	logger.Info("Chat relay stopped")
}
