package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/localnotify/internal/config"
	"github.com/jwalitptl/localnotify/internal/handler/health"
	notificationHandler "github.com/jwalitptl/localnotify/internal/handler/notification"
	"github.com/jwalitptl/localnotify/internal/handler/prometheus"
	"github.com/jwalitptl/localnotify/internal/middleware"
	"github.com/jwalitptl/localnotify/internal/model"
	"github.com/jwalitptl/localnotify/internal/repository"
	"github.com/jwalitptl/localnotify/internal/repository/memory"
	"github.com/jwalitptl/localnotify/internal/repository/postgres"
	redisStore "github.com/jwalitptl/localnotify/internal/repository/redis"
	"github.com/jwalitptl/localnotify/internal/router"
	"github.com/jwalitptl/localnotify/internal/service/audit"
	"github.com/jwalitptl/localnotify/internal/service/notification"
	"github.com/jwalitptl/localnotify/pkg/auth"
	"github.com/jwalitptl/localnotify/pkg/logger"
	"github.com/jwalitptl/localnotify/pkg/messaging"
	redisBroker "github.com/jwalitptl/localnotify/pkg/messaging/redis"
	"github.com/jwalitptl/localnotify/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = appLogger.ZL
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler := prometheus.New()
	serviceMetrics := metrics.NewMetrics(cfg.Monitoring.Namespace, "", metricsHandler.Registry())

	auditLogger, err := audit.NewLogger(cfg.Log.Level)
	if err != nil {
		appLogger.Fatal(err, "Failed to build audit logger")
	}
	defer func() { _ = auditLogger.Sync() }()

	var checks []health.Check
	opts := []notification.Option{
		notification.WithLogger(appLogger),
		notification.WithMetrics(serviceMetrics),
		notification.WithAuditor(audit.NewService(auditLogger)),
		notification.WithLocation(cfg.Notifications.Location()),
		notification.WithErrorClearDelay(cfg.Notifications.ErrorClearDelay),
		notification.WithRecheckBeforeSchedule(cfg.Notifications.RecheckBeforeSchedule),
		notification.WithGranularRepeats(cfg.Notifications.GranularRepeats),
	}

	var (
		backend   repository.NotificationBackend
		publisher messaging.Publisher
	)
	switch cfg.Backend.Driver {
	case "postgres":
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			appLogger.Fatal(err, "Failed to connect to database")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			appLogger.Fatal(err, "Failed to migrate database")
		}
		// Fired one-shot rows are pruned by cmd/worker.
		base := postgres.NewBaseRepository(db)
		backend = postgres.NewBackend(base,
			postgres.WithDecision(model.ParseAuthorizationStatus(cfg.Backend.Decision)))
		// Events go through the outbox; the worker relays them to Redis.
		publisher = postgres.NewOutboxRepository(base)
		checks = append(checks, health.Check{Name: "postgres", Ping: base.Ping})
	default:
		backend = memory.NewBackend(memory.WithDecision(model.ParseAuthorizationStatus(cfg.Backend.Decision)))
	}

	if cfg.Redis.Enabled {
		client, err := newRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			appLogger.Fatal(err, "Failed to connect to Redis")
		}
		broker := redisBroker.NewRedisBrokerWithClient(client, redisBroker.Config{URL: cfg.Redis.URL}, &appLogger.ZL)
		defer broker.Close()

		opts = append(opts, notification.WithIntervalStore(redisStore.NewIntervalStore(client, redisStore.DefaultKey)))
		if publisher == nil {
			publisher = messaging.NewChannelPublisher(broker, cfg.Redis.Channel)
		}
		checks = append(checks, health.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	} else {
		if cfg.VolatileIntervals() {
			appLogger.Warn("Redis is disabled; repeat intervals are kept in memory and are guessed from trigger shape after a restart",
				"backend", cfg.Backend.Driver)
		}
		opts = append(opts, notification.WithIntervalStore(memory.NewIntervalStore()))
	}

	if publisher != nil {
		opts = append(opts, notification.WithPublisher(publisher))
	}

	svc := notification.NewService(backend, opts...)
	defer svc.Close()

	if err := svc.RegisterCategories(ctx); err != nil {
		appLogger.Error(err, "Failed to register categories")
	}
	if err := svc.Start(ctx); err != nil {
		appLogger.Error(err, "Initial authorization check failed")
	}
	go logStateChanges(ctx, svc, appLogger)

	var tokens auth.JWTService
	if cfg.Auth.Secret != "" {
		tokens = auth.NewJWTService(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	} else {
		appLogger.Warn("No auth secret configured; the API accepts unauthenticated requests")
	}

	routerConfig := router.RouterConfig{
		SizeLimit:     middleware.DefaultSizeLimitConfig(),
		MetricsPrefix: cfg.Monitoring.Namespace,
	}
	if cfg.Monitoring.PrometheusEnabled {
		routerConfig.Registerer = metricsHandler.Registry()
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}

	public := []router.Handler{health.NewHandler(checks...)}
	if cfg.Monitoring.PrometheusEnabled {
		public = append(public, metricsHandler)
	}
	r := router.NewRouter(
		middleware.NewAuthMiddleware(tokens),
		public,
		[]router.Handler{notificationHandler.NewHandler(svc)},
		routerConfig,
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port, "backend", cfg.Backend.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(err, "Failed to start server")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "Server forced to shutdown")
		os.Exit(1)
	}

	appLogger.Info("Server exited properly")
}

func newRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

// logStateChanges follows the service's published state at debug level.
func logStateChanges(ctx context.Context, svc *notification.Service, l *logger.Logger) {
	states, cancel := svc.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			fields := []interface{}{
				"authorization", string(state.AuthorizationStatus),
				"pending", len(state.PendingNotifications),
			}
			if state.LastError != nil {
				fields = append(fields, "last_error", *state.LastError)
			}
			l.Debug("Notification state changed", fields...)
		}
	}
}
