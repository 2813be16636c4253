// Package server implements the HTTP server lifecycle for the chat relay.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// CreateServer creates and configures the HTTP server with security settings
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer starts the HTTP server and blocks until it exits. A server
// stopped through Shutdown returns nil.
func StartServer(server *http.Server, log *slog.Logger) error {
	log.Info("Server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer stops accepting new connections, then closes every chat
// connection through the hub. Each closed connection runs the normal
// disconnect path. Both steps share timeout.
func ShutdownServer(server *http.Server, hub *Hub, timeout time.Duration) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	// Hijacked WebSocket connections are not tracked by http.Server.Shutdown.
	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	remaining := timeout - time.Since(start)
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	if err := hub.Shutdown(remaining); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
