// Package main provides the HTTP and websocket server for Groundwork.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/groundwork/internal/api"
	"github.com/raphaelgruber/groundwork/internal/app"
	"github.com/raphaelgruber/groundwork/internal/config"
)

func main() {
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, closeLog := config.SetupLogger(cfg)
	defer closeLog()

	logger.Info("starting groundwork-server",
		"port", cfg.ServerPort,
		"store", cfg.Store,
		"embed_provider", cfg.EmbedProvider,
		"llm_provider", cfg.LLMProvider,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     api.New(a).Handler(),
		ReadTimeout: 5 * time.Second,
		// Streaming turns hold the connection for the whole answer.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s/api", cfg.ServerPort))
		logger.Info("chat websocket available", "url", fmt.Sprintf("ws://localhost:%s/ws/chat", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig)
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		exitCode = 1
	}

	// Graceful shutdown with timeout
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		exitCode = 1
	}
	if err := a.Close(ctx); err != nil {
		logger.Error("failed to close app", "error", err)
		exitCode = 1
	}

	logger.Info("server stopped")
	if exitCode != 0 {
		closeLog()
		os.Exit(exitCode)
	}
}
