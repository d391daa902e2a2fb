package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hongminglow/ondata-be/internal/config"
	"github.com/hongminglow/ondata-be/internal/logging"
	"github.com/hongminglow/ondata-be/internal/server"
	"github.com/hongminglow/ondata-be/internal/storage"
	"github.com/hongminglow/ondata-be/internal/storage/postgres"
	"github.com/hongminglow/ondata-be/internal/storage/sqlite"
)

func main() {
	loadLocalEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("init database", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	defer store.Close()

	srv := server.New(cfg, store, logger)

	go func() {
		logger.Info("OnData backend listening",
			zap.String("addr", cfg.HTTPAddress()),
			zap.String("driver", cfg.DatabaseDriver),
			zap.Bool("strict_ownership", cfg.StrictOwnership),
		)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("graceful shutdown error", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		return postgres.NewStore(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		return sqlite.NewStore(ctx, cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}
}
