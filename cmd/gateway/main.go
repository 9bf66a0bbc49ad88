// Package main runs the GM engine gateway: the HTTP surface over the
// mission, streak, leaderboard and admin reset services.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/gm_engine/internal/app"
	"github.com/R3E-Network/gm_engine/internal/app/httpapi"
	"github.com/R3E-Network/gm_engine/internal/app/metrics"
	"github.com/R3E-Network/gm_engine/internal/app/storage"
	redisstore "github.com/R3E-Network/gm_engine/internal/app/storage/redis"
	"github.com/R3E-Network/gm_engine/internal/config"
	"github.com/R3E-Network/gm_engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	envFile := flag.String("env", "", "Path to .env file (optional)")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "load env (%s): %v\n", *envFile, err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	}).WithField("component", "gateway")

	var kv storage.KV
	var closeStore func() error
	if cfg.Redis.Addr != "" {
		store, err := redisstore.New(redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			log.WithError(err).Error("redis connection failed")
			os.Exit(1)
		}
		kv = store
		closeStore = store.Close
		log.WithField("addr", cfg.Redis.Addr).Info("connected to redis")
	}

	application := app.New(app.Options{
		KV:               kv,
		LeaderboardTopN:  cfg.Leaderboard.TopN,
		EffectsQueueSize: cfg.Effects.QueueSize,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("application start failed")
		os.Exit(1)
	}

	scheduler := cron.New(cron.WithLocation(time.UTC))
	// Shortly after each UTC midnight, report the completed day's active
	// address count. Observability only: streak corrections stay lazy.
	if _, err := scheduler.AddFunc("10 0 * * *", func() {
		day := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
		reportCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		count, err := application.Streaks.DailyActiveCount(reportCtx, day)
		if err != nil {
			log.WithField("day", day).WithError(err).Warn("daily active report failed")
			return
		}
		metrics.SetDailyActive(count)
		log.WithField("day", day).WithField("active_addresses", count).Info("daily active report")
	}); err != nil {
		log.WithError(err).Error("schedule daily report failed")
		os.Exit(1)
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      httpapi.New(application, log),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	<-scheduler.Stop().Done()
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop incomplete")
	}
	if closeStore != nil {
		if err := closeStore(); err != nil {
			log.WithError(err).Warn("store close failed")
		}
	}
}
