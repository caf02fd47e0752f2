// Package main provides the ledger API service entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/go-iis/internal/api"
	"github.com/drfirst/go-iis/internal/api/middleware"
	"github.com/drfirst/go-iis/internal/config"
	"github.com/drfirst/go-iis/internal/domain/transmission"
	"github.com/drfirst/go-iis/internal/infrastructure/sqlstore"
	"github.com/drfirst/go-iis/internal/observability/logging"
	"github.com/drfirst/go-iis/internal/observability/metrics"
	"github.com/drfirst/go-iis/internal/observability/tracing"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "dotenv configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "ledger-api:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.With(zap.String("service", api.ServiceName))

	tcfg := tracing.DefaultConfig(api.ServiceName)
	tcfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	tcfg.SampleRate = cfg.Observability.OTelSampleRate
	tp, err := tracing.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tp.Shutdown(context.Background())

	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:   cfg.Database.Driver,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.CheckLedger(ctx); err != nil {
		return err
	}

	m := metrics.New()
	keys := middleware.ParseKeys(cfg.API.Keys)
	if len(keys) == 0 {
		logger.Warn("no API keys configured, /api/v1 will reject every request")
	}

	server := &http.Server{
		Addr: ":" + cfg.API.Port,
		Handler: api.NewRouter(api.Options{
			Ledger:  transmission.NewLedger(db, m, logger),
			DB:      db,
			Metrics: m.Handler(),
			APIKeys: keys,
			Logger:  logger,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting ledger API", zap.String("port", cfg.API.Port))
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
	return nil
}
