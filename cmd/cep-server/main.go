// Command cep-server starts the postal code lookup and favorites HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justgu1/cepapi/internal/config"
	"github.com/justgu1/cepapi/internal/crypto"
	"github.com/justgu1/cepapi/internal/limiter"
	"github.com/justgu1/cepapi/internal/migrate"
	"github.com/justgu1/cepapi/internal/repository/postgres"
	"github.com/justgu1/cepapi/internal/revoke"
	httpserver "github.com/justgu1/cepapi/internal/server/http"
	"github.com/justgu1/cepapi/internal/service"
	"github.com/justgu1/cepapi/internal/viacep"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves HTTP until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		// logger is not configured yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("cepAPI", cfg.CepAPIURI),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	var revoked revoke.Store = revoke.Noop{}
	if cfg.RedisAddr != "" {
		rc, err := revoke.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer func() { _ = rc.Close() }()
		revoked = revoke.NewRedis(rc)
	} else {
		logger.Warn("REDIS_ADDR not set; logout will not revoke tokens")
	}

	// Repositories
	ceps := postgres.NewCepRepo(db)
	favRepo := postgres.NewFavoriteRepo(db)
	users := postgres.NewUserRepo(db)

	// Services
	lookup := service.NewLookupService(ceps, viacep.New(cfg.CepAPIURI, cfg.UpstreamTimeout), logger)
	favs := service.NewFavoriteService(lookup, ceps, favRepo, cfg.MaxPerPage, logger)
	auth := service.NewAuthService(service.AuthDeps{
		Users:     users,
		Hasher:    crypto.NewHasher(crypto.DefaultParams),
		SignKey:   []byte(cfg.JWTKey),
		AccessTTL: cfg.AccessTTL,
		Limiter:   limiter.NewPG(db.Pool, limiter.DefaultPolicy),
		Revoked:   revoked,
		Log:       logger,
	})

	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.New(auth, lookup, favs, logger).Router(httpserver.Options{CORSOrigins: cfg.CORSOrigins}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forced shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
