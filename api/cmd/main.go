// Command folderpush_server serves the folderpush HTTP
// API used by the browser front end: OAuth code
// exchange, account passthrough and folder uploads.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/byte4ever/folderpush/api"
	"github.com/byte4ever/folderpush/config"
	"github.com/byte4ever/folderpush/platform"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	const errCtx = "running folderpush_server"

	configPath := flag.String(
		"config", "",
		"Path to the YAML configuration file",
	)
	listen := flag.String(
		"listen", "",
		"Listen address (overrides the configuration)",
	)
	allowedRoot := flag.String(
		"allowed_root", "",
		"Only accept folders under this directory",
	)

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	if *allowedRoot != "" {
		cfg.Server.AllowedRoot = *allowedRoot
	}

	slog.SetDefault(slog.New(cfg.Log.Handler(os.Stderr)))

	pf, err := platform.New(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	var exchanger api.Exchanger

	if cfg.OAuth.ClientID != "" {
		ex, err := pf.Exchanger()
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		exchanger = ex
	} else {
		slog.Warn(
			"oauth client id not set, authentication disabled",
			"env", config.EnvClientID,
		)
	}

	srv, err := api.NewServer(api.Config{
		Backend:        pf,
		Exchanger:      exchanger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedRoot:    cfg.Server.AllowedRoot,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	hs := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- hs.ListenAndServe()
	}()

	slog.Info(
		"listening",
		"addr", cfg.Server.Listen,
		"platform", pf.Name(),
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	sctx, cancel := context.WithTimeout(
		context.Background(), shutdownTimeout,
	)
	defer cancel()

	if err := hs.Shutdown(sctx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", errCtx, err)
	}

	return nil
}
