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

	"barledger/backend/internal/cache"
	"barledger/backend/internal/config"
	"barledger/backend/internal/events"
	"barledger/backend/internal/httpapi"
	"barledger/backend/internal/logging"
	"barledger/backend/internal/service"
	"barledger/backend/internal/store"
	"barledger/backend/internal/store/memory"
	pgstore "barledger/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatalf("migrate postgres: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeededWithLogger(logger)
		logger.Info("repository: in-memory")
	}

	opts := service.Options{
		BillViewTTL:           time.Duration(cfg.BillViewTTLSeconds) * time.Second,
		Logger:                logger,
		DefaultStoreID:        cfg.DefaultStoreID,
		ExtensionPreviewPrice: cfg.ExtensionPreviewPrice,
	}

	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisBillViewCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			logging.LogWarn(logger, "main", "main", "redis unavailable, using noop cache and local locks", cfg.RedisAddr, err)
			_ = redisCache.Close()
		} else {
			opts.Cache = redisCache
			opts.Locker = cache.NewRedisLocker(client)
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: noop, locks: local")
	}

	if cfg.AMQPURL != "" {
		publisher, err := events.DialRabbit(cfg.AMQPURL)
		if err != nil {
			logging.LogWarn(logger, "main", "main", "rabbitmq unavailable, events are dropped", nil, err)
		} else {
			opts.Publisher = publisher
			closers = append(closers, publisher.Close)
			logger.Info("events: rabbitmq")
		}
	} else {
		logger.Info("events: noop")
	}

	svc := service.New(repo, opts)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Address()).Info("barledger backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "main", "main", "shutdown", nil, err)
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logging.LogError(logger, "main", "main", "close dependency", nil, err)
		}
	}
	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	for _, r := range cfg.ManagerPIN {
		if r < '0' || r > '9' {
			return fmt.Errorf("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

var commonPINs = map[string]struct{}{
	"121212": {}, "112233": {}, "123123": {}, "696969": {}, "101010": {}, "202020": {},
}

// validatePINStrength rejects common, repeated-digit and sequential PINs.
func validatePINStrength(pin string) error {
	if _, ok := commonPINs[pin]; ok {
		return fmt.Errorf("common PIN not allowed")
	}
	if strideOf(pin) == 0 {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}
	if stride := strideOf(pin); stride == 1 || stride == -1 {
		return fmt.Errorf("sequential PIN not allowed")
	}
	return nil
}

// strideOf returns the constant step between consecutive digits, or 99 when
// the steps differ.
func strideOf(pin string) int {
	if len(pin) < 2 {
		return 99
	}
	step := int(pin[1]) - int(pin[0])
	for i := 2; i < len(pin); i++ {
		if int(pin[i])-int(pin[i-1]) != step {
			return 99
		}
	}
	return step
}
