package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/localnotify/internal/config"
	"github.com/jwalitptl/localnotify/internal/repository/postgres"
	"github.com/jwalitptl/localnotify/internal/worker"
	"github.com/jwalitptl/localnotify/pkg/logger"
	redisBroker "github.com/jwalitptl/localnotify/pkg/messaging/redis"
	"github.com/jwalitptl/localnotify/pkg/metrics"
)

const metricsAddr = ":8081"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	}).WithFields(map[string]interface{}{"component": "worker"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	workerMetrics := metrics.NewMetrics(cfg.Monitoring.Namespace, "worker", registry)

	var wg sync.WaitGroup

	var outbox *postgres.OutboxRepository
	if cfg.Backend.Driver == "postgres" {
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			appLogger.Fatal(err, "Failed to connect to database")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			appLogger.Fatal(err, "Failed to migrate database")
		}

		base := postgres.NewBaseRepository(db)
		outbox = postgres.NewOutboxRepository(base)
		backend := postgres.NewBackend(base)
		pruner := worker.NewPruner(backend, cfg.Worker.Retention, cfg.Worker.PruneInterval, appLogger, workerMetrics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruner.Start(ctx)
		}()
	}

	if cfg.Redis.Enabled {
		broker, err := redisBroker.NewRedisBroker(redisBroker.Config{URL: cfg.Redis.URL}, &appLogger.ZL)
		if err != nil {
			appLogger.Fatal(err, "Failed to connect to Redis")
		}
		defer broker.Close()

		if outbox != nil {
			relay, err := worker.NewOutboxRelay(outbox, broker, worker.DefaultOutboxRelayConfig(cfg.Redis.Channel), appLogger)
			if err != nil {
				appLogger.Fatal(err, "Failed to create outbox relay")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				relay.Start(ctx)
			}()
		}

		listener := worker.NewEventListener(broker, cfg.Redis.Channel, appLogger, registry)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Run(ctx); err != nil {
				appLogger.Error(err, "Event listener stopped")
			}
		}()
	}

	srv := setupMetricsServer(registry, appLogger)

	<-ctx.Done()
	appLogger.Info("Shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "Metrics server forced to shutdown")
	}
	wg.Wait()
	appLogger.Info("Worker exited properly")
}

func setupMetricsServer(registry *prometheus.Registry, l *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error(err, "Metrics server failed")
		}
	}()
	return srv
}
