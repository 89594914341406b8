// Command server runs the storefront API: checkout, payment confirmation
// through Stripe, admin order management and the admin notification feed.
// Configuration comes from the environment; SIGINT or SIGTERM drains open
// requests, admin sockets and queued notifications before exiting.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storefrontapp/storefront/app"
	"github.com/storefrontapp/storefront/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	application, err := app.New()
	if err != nil {
		bootLogger.Error("storefront failed to start", "error", err)
		return 1
	}
	defer application.Close()

	srv, err := server.New(application.Config, application.Logger, application.Handlers)
	if err != nil {
		application.Logger.Error("failed to build http server", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Run()
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			application.Logger.Error("http server stopped", "error", err)
			return 1
		}
		return 0
	case <-ctx.Done():
		application.Logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked admin sockets are not tracked by http.Server.Shutdown.
	application.Hub.Close()
	if err := srv.Close(shutdownCtx); err != nil {
		application.Logger.Error("http server did not drain in time", "error", err)
		return 1
	}
	return 0
}
