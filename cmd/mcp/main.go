package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/muffakir/legal-assistant/internal/adapters/mcp"
	"github.com/muffakir/legal-assistant/internal/bootstrap"
	"github.com/muffakir/legal-assistant/internal/config"
	"github.com/muffakir/legal-assistant/internal/observability/logging"
)

const service = "mcp"

var version = "dev"

func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		slog.Error("env_file_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	// stdout carries the protocol on stdio.
	logger := logging.New(os.Stderr, service, cfg.LogLevel, "json")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Service: service})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mcpServer := mcpadapter.NewServer(version, mcpadapter.NewHandlers(app.Answers, app.Search, logger))

	switch cfg.MCPTransport {
	case "http":
		err = serveHTTP(ctx, logger, mcpServer, cfg.MCPHTTPAddr)
	case "stdio", "":
		logger.Info("mcp_stdio_started")
		err = server.NewStdioServer(mcpServer).Listen(ctx, os.Stdin, os.Stdout)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	default:
		logger.Error("mcp_transport_unknown", "transport", cfg.MCPTransport)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}

func serveHTTP(ctx context.Context, logger *slog.Logger, mcpServer *server.MCPServer, addr string) error {
	httpServer := server.NewStreamableHTTPServer(mcpServer)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp_http_listening", "addr", addr)
		errCh <- httpServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
