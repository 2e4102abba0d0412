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

	"github.com/sirupsen/logrus"

	"vendormall/backend/internal/cache"
	"vendormall/backend/internal/config"
	"vendormall/backend/internal/httpapi"
	"vendormall/backend/internal/lock"
	"vendormall/backend/internal/report"
	"vendormall/backend/internal/service"
	"vendormall/backend/internal/settlement"
	"vendormall/backend/internal/store"
	"vendormall/backend/internal/store/memory"
	pgstore "vendormall/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := config.NewLogger(cfg)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.WithError(err).Fatal("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	handler, closers, err := buildApp(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("startup failed")
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Address()).Info("vendormall backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("close error")
		}
	}
	logger.Info("server stopped")
}

// buildApp wires storage, redis, settlement and reports behind the HTTP API.
// Redis is optional: without it reports are not cached and settlement locks
// are process local.
func buildApp(ctx context.Context, cfg config.Config, logger *logrus.Logger) (http.Handler, []func() error, error) {
	closers := make([]func() error, 0, 2)

	mode, err := settlement.ParseUpdateMode(cfg.SettlementUpdateMode)
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback: %w", err)
		}
		closers = append(closers, pg.Close)
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				return nil, closers, fmt.Errorf("migrate: %w", err)
			}
		}
		repo = pg
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	var (
		reportCache cache.ReportCache = cache.NoopReportCache{}
		locker      lock.Locker       = lock.NewLocal()
	)
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisReportCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, using noop cache and local locks")
			_ = client.Close()
		} else {
			reportCache = redisCache
			locker = lock.NewRedis(client, cfg.LockTTL())
			closers = append(closers, client.Close)
			logger.Info("cache and locks: redis")
		}
	}

	settler := settlement.New(repo, locker, mode, logger)
	aggregator := report.NewAggregator(repo, reportCache, report.Options{
		CacheTTL: cfg.ReportCacheTTL(),
		Location: loc,
		Logger:   logger,
	})
	svc := service.New(repo, settler, aggregator, logger)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo, logger)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	logger.WithFields(logrus.Fields{
		"settlement_mode": mode,
		"timezone":        loc.String(),
	}).Info("services ready")
	return api.Handler(), closers, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
