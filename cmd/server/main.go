// Command cloakmsg-server starts the encrypted messaging HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekorn/cloakmsg/internal/config"
	"github.com/ekorn/cloakmsg/internal/limiter"
	"github.com/ekorn/cloakmsg/internal/migrate"
	"github.com/ekorn/cloakmsg/internal/repository/postgres"
	httpserver "github.com/ekorn/cloakmsg/internal/server/http"
	"github.com/ekorn/cloakmsg/internal/service"
	miniostore "github.com/ekorn/cloakmsg/internal/storage/minio"
	"github.com/ekorn/cloakmsg/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations, and starts the HTTP server.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("port", cfg.HTTP.Port),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	// Repositories
	db := &postgres.DB{Pool: pool}
	userRepo := postgres.NewUserRepo(db)
	contactRepo := postgres.NewContactRepo(db)
	messageRepo := postgres.NewMessageRepo(db)

	lim := limiter.NewPostgres(pool, cfg.Limiter.Window, cfg.Limiter.MaxFails, cfg.Limiter.BlockFor)

	// Signing keys must exist and parse; there is no fallback.
	tokens, err := token.New(cfg.Token.Algorithm, cfg.Token.PrivateKeyPath, cfg.Token.PublicKeyPath, cfg.Token.TTL)
	if err != nil {
		logger.Fatal("load signing keys", zap.Error(err))
	}

	avatars, err := miniostore.New(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.UseSSL)
	if err != nil {
		logger.Fatal("object storage", zap.Error(err))
	}

	// Services
	directory := service.NewDirectory(userRepo, contactRepo)
	auth, err := service.NewAuth(directory, userRepo, tokens, lim, cfg.IPSalt, logger)
	if err != nil {
		logger.Fatal("auth service", zap.Error(err))
	}
	messages := service.NewMessages(userRepo, messageRepo)

	app := httpserver.New(auth, directory, messages, tokens, avatars, logger, cfg.IPSalt, cfg.HTTP.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      app.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
