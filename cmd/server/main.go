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

	"github.com/pauljones0/komsu/internal/config"
	"github.com/pauljones0/komsu/internal/identity"
	"github.com/pauljones0/komsu/internal/kv"
	"github.com/pauljones0/komsu/internal/market"
	"github.com/pauljones0/komsu/internal/media"
	"github.com/pauljones0/komsu/internal/notifier"
	"github.com/pauljones0/komsu/internal/overlay"
	"github.com/pauljones0/komsu/internal/storage"
)

func main() {
	slog.Info("Starting Komsu marketplace server...")
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := storage.NewApp(ctx, cfg.ProjectID)
	if err != nil {
		slog.Error("Critical error initializing Firebase app", "error", err)
		os.Exit(1)
	}
	store, err := storage.New(ctx, app)
	if err != nil {
		slog.Error("Critical error initializing Firestore client", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	local, err := kv.Open(ctx, cfg.ProfileDBPath)
	if err != nil {
		slog.Error("Critical error opening local profile store", "error", err)
		os.Exit(1)
	}
	defer local.Close()

	var resolver identity.Resolver = identity.ProfileResolver{}
	if authClient, err := app.Auth(ctx); err != nil {
		slog.Warn("Firebase Auth unavailable, using Google account IDs as user IDs", "error", err)
	} else {
		resolver = identity.NewFirebaseResolver(authClient)
	}

	accounts := identity.NewManager(identity.NewGoogleProvider(cfg.OAuthClientID, cfg.OAuthClientSecret), resolver, local)
	session, err := accounts.SignIn(ctx)
	if err != nil {
		slog.Error("Sign-in failed", "error", err)
		os.Exit(1)
	}

	picker, err := media.New(cfg.MediaRoot)
	if err != nil {
		slog.Error("Critical error initializing media picker", "error", err)
		os.Exit(1)
	}

	ov := overlay.New(store, cfg.StoreWritesPerSec)
	view, err := market.Open(ctx, store, ov, notifier.New(cfg.DiscordWebhookURL), session)
	if err != nil {
		slog.Error("Critical error opening market feeds", "error", err)
		os.Exit(1)
	}

	srv := &Server{view: view, saves: ov, picker: picker, accounts: accounts}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("Received signal, shutting down gracefully...", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port, "user", session.UserID)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}

	view.Close()
	// Let background saves reach the store before the client closes.
	ov.Wait()
	slog.Info("Server stopped.")
}
