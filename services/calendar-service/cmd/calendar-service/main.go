package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/calendarhub/libs/config"
	"github.com/md-rashed-zaman/calendarhub/libs/db"
	"github.com/md-rashed-zaman/calendarhub/libs/httpx"
	"github.com/md-rashed-zaman/calendarhub/libs/kafkax"
	otelx "github.com/md-rashed-zaman/calendarhub/libs/otel"
	"github.com/md-rashed-zaman/calendarhub/libs/runtime"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/handlers"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/locking"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/orchestrator"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/outbox"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/registry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "calendar-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("config error", "err", err)
		os.Exit(1)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.PositiveInt("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	sealer, err := registry.NewSealer(config.String("TOKEN_SEALING_KEY", ""))
	if err != nil {
		logger.Error("config error", "err", err)
		os.Exit(1)
	}
	if sealer == nil {
		logger.Warn("TOKEN_SEALING_KEY not set; oauth tokens are stored unencrypted")
	}

	outboxRepo := outbox.NewRepository(pool)
	reg := registry.NewPostgres(pool, sealer, outboxRepo, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{Brokers: brokers})
	go publisher.Run(ctx)

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	limitPerMinute := config.PositiveInt("RATE_LIMIT_PER_MINUTE", 120)
	var (
		locker      locking.Locker
		rateLimitMW httpx.Middleware
	)
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.PositiveInt("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		locker = locking.NewRedisLocker(rdb, config.String("BOOKING_LOCK_PREFIX", "calendar:lock"))
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("booking locks and rate limiting use redis", "redis_addr", addr, "per_minute", limitPerMinute)
	} else {
		locker = locking.NewMemoryLocker()
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Warn("REDIS_ADDR not set; booking locks are process-local")
	}

	provs := buildProviders(logger)
	if len(provs) == 0 {
		logger.Warn("no calendar providers configured; every connection will report a configuration error")
	}
	orch := orchestrator.New(orchestratorConfig(), provs,
		orchestrator.WithTokenStore(reg),
		orchestrator.WithLocker(locker),
		orchestrator.WithEventRecorder(outboxRepo),
		orchestrator.WithLogger(logger),
	)

	if err := startGrpcServer(ctx, logger, orch, reg); err != nil {
		logger.Error("grpc server failed", "err", err)
		os.Exit(1)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	api := http.NewServeMux()
	handlers.NewHandler(orch, reg, logger).Register(api)

	var apiHandler http.Handler = api
	if secret := config.String("JWT_SECRET", ""); secret != "" {
		apiHandler = httpx.Chain(api, httpx.RequireTenant(secret))
	} else {
		logger.Warn("JWT_SECRET not set; tenant is taken from the X-Tenant-Id header")
	}
	mux.Handle("/api/", apiHandler)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders: config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,X-Tenant-Id"),
			MaxAge:         config.Seconds("CORS_MAX_AGE_SECONDS", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.PositiveInt("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 30*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func orchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Granularity:     config.Minutes("SLOT_GRANULARITY_MINUTES", 30*time.Minute),
		LookAhead:       time.Duration(config.PositiveInt("LOOKAHEAD_DAYS", 7)) * 24 * time.Hour,
		MaxAlternatives: config.PositiveInt("MAX_ALTERNATIVES", 5),
		Concurrency:     config.PositiveInt("FANOUT_CONCURRENCY", 8),
		BranchTimeout:   config.Seconds("PROVIDER_REQUEST_TIMEOUT_SECONDS", 10*time.Second),
		MaxWindow:       time.Duration(config.PositiveInt("MAX_QUERY_WINDOW_DAYS", 31)) * 24 * time.Hour,
		LockTTL:         config.Seconds("BOOKING_LOCK_TTL_SECONDS", 30*time.Second),
		LockWait:        config.Seconds("BOOKING_LOCK_WAIT_SECONDS", 5*time.Second),
	}
}
