package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"kerbside/internal/config"
	transporthttp "kerbside/internal/http"
	"kerbside/internal/identity"
	"kerbside/internal/platform/database"
	"kerbside/internal/platform/logging"
	"kerbside/internal/platform/migrate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)

	repo, cleanup, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	issuer := identity.NewTokenIssuer(cfg.JWTSecret, 15*time.Minute)
	svc := identity.NewService(repo, issuer, 7*24*time.Hour)

	var google *identity.GoogleAuthenticator
	if cfg.GoogleOAuthEnabled() {
		google, err = identity.NewGoogleAuthenticator(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		if err != nil {
			logger.Error("failed to initialize google authenticator", "error", err)
			os.Exit(1)
		}
	}

	router := transporthttp.NewRouter(cfg, svc, google, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go cleanupExpiredTokens(ctx, svc, logger)

	go func() {
		logger.Info("Kerbside identity API listening", "addr", srv.Addr, "store", cfg.DataStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (identity.Repository, func(), error) {
	if cfg.UseInMemoryStore() {
		logger.Info("using in-memory repository")
		return identity.NewInMemoryRepository(seedLocalUsers()...), nil, nil
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		_ = db.Close()
	}

	if err := migrate.Apply(ctx, db, logger); err != nil {
		cleanup()
		return nil, nil, err
	}

	logger.Info("connected to postgres")
	return identity.NewPostgresRepository(db), cleanup, nil
}

func cleanupExpiredTokens(ctx context.Context, svc *identity.Service, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := svc.CleanupExpiredRefreshTokens(ctx)
			if err != nil {
				logger.Error("refresh token cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("expired refresh tokens removed", "count", deleted)
			}
		}
	}
}
