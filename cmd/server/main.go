package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/saviobatista/telemetry-server/internal/api"
	"github.com/saviobatista/telemetry-server/internal/bus"
	"github.com/saviobatista/telemetry-server/internal/config"
	"github.com/saviobatista/telemetry-server/internal/hub"
	"github.com/saviobatista/telemetry-server/internal/ingest"
	"github.com/saviobatista/telemetry-server/internal/livecache"
	"github.com/saviobatista/telemetry-server/internal/stats"
	"github.com/saviobatista/telemetry-server/internal/store"
	"github.com/saviobatista/telemetry-server/internal/tracker"
)

const (
	timeoutCheckInterval = time.Second
	statsLogInterval     = time.Minute
	shutdownTimeout      = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Fatal("Invalid log level")
	}
	log.SetLevel(level)
	logger := log.StandardLogger()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer st.Close()

	ingestStats := stats.New()

	tr, err := tracker.New(st, logger, ingestStats)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create tracker")
	}

	broadcastHub := hub.New(logger, cfg.StreamBuffer)

	var mirrors []ingest.Mirror
	if cfg.NATSURL != "" {
		busClient, err := bus.New(cfg.NATSURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to NATS")
		}
		defer busClient.Close()
		mirrors = append(mirrors, busClient)
		logger.WithField("url", cfg.NATSURL).Info("NATS packet mirror enabled")
	}
	if cfg.RedisAddr != "" {
		cacheClient, err := livecache.New(cfg.RedisAddr)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer cacheClient.Close()
		mirrors = append(mirrors, cacheClient)
		logger.WithField("addr", cfg.RedisAddr).Info("Redis live cache enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ingestSvc := ingest.New(cfg.ProducerAddr, tr, broadcastHub, ingestStats, logger, mirrors...)
	go ingestSvc.Run(ctx)

	// Flight timeout runs on its own clock so a silent producer still ends
	// the active flight.
	go func() {
		ticker := time.NewTicker(timeoutCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				tr.CheckTimeout(now)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(statsLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Infof("Statistics:\n%s\nSubscribers: %d\nBroadcast Drops: %d",
					ingestStats, broadcastHub.Count(), broadcastHub.Dropped())
			}
		}
	}()

	apiServer := api.New(st, broadcastHub, tr, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiServer.Router(),
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP shutdown failed")
	}
}
