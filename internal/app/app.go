package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/labqa/qualitylab/internal/auth"
	"github.com/labqa/qualitylab/internal/config"
	"github.com/labqa/qualitylab/internal/event"
	handler "github.com/labqa/qualitylab/internal/handler/http"
	"github.com/labqa/qualitylab/internal/repository"
	"github.com/labqa/qualitylab/internal/repository/postgres"
	redisrepo "github.com/labqa/qualitylab/internal/repository/redis"
	"github.com/labqa/qualitylab/internal/service"
	"github.com/labqa/qualitylab/internal/session"
	"github.com/labqa/qualitylab/migrations"
	"github.com/labqa/qualitylab/pkg/breaker"
	"github.com/labqa/qualitylab/pkg/database"
	"github.com/labqa/qualitylab/pkg/health"
	pkgkafka "github.com/labqa/qualitylab/pkg/kafka"
	"github.com/labqa/qualitylab/pkg/middleware"
	"github.com/labqa/qualitylab/pkg/tracing"
)

// seenTTL is how long a consumed event id is remembered.
const seenTTL = 24 * time.Hour

// App wires together all dependencies and runs the qualitylab service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	consumer       *pkgkafka.Consumer
	deadLetter     *pkgkafka.DeadLetterWriter
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
	stopLimiter    context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := cfg.Postgres()
	a.pool, err = database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool, cfg.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if threshold := cfg.SlowQueryThreshold(); threshold > 0 {
		database.SetSlowQueryLogging(threshold, logger)
	}

	// Credential store backend.
	var backend repository.CredentialStore
	switch cfg.CredentialStore {
	case config.StoreRedis:
		a.redis, err = database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
		backend = redisrepo.NewCredentialStore(a.redis)
	default:
		backend = postgres.NewCredentialStore(a.pool)
	}
	creds := repository.NewGuardedCredentialStore(backend,
		breaker.DefaultConfig("credential-store-"+cfg.CredentialStore), cfg.StoreTimeout, logger)

	users := postgres.NewUserRepository(a.pool)
	tests := postgres.NewTestRepository(a.pool)

	// Tokens and the session gate.
	codecOpts := []auth.CodecOption{}
	if cfg.JWTIssuer != "" {
		codecOpts = append(codecOpts, auth.WithIssuer(cfg.JWTIssuer))
	}
	codec, err := auth.NewCodec(cfg.JWTSecret, cfg.JWTAlgorithm, codecOpts...)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	accessTTL, refreshTTL := cfg.TokenTTLs()
	issuer := auth.NewIssuer(codec, creds, accessTTL, refreshTTL)

	var gateOpts []session.Option
	if cfg.Mode() == session.ModeStrict {
		gateOpts = append(gateOpts, session.WithStrictMode(users))
	}
	gate := session.New(codec, issuer, creds, logger, gateOpts...)
	logger.Info("session gate ready", slog.String("mode", string(gate.Mode())))

	// Events.
	var events service.Events = event.Discard{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(a.producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

		a.deadLetter = pkgkafka.NewDeadLetterWriter(cfg.KafkaBrokers, logger)
		var seen pkgkafka.SeenStore = pkgkafka.NewMemorySeenStore(seenTTL)
		if a.redis != nil {
			seen = pkgkafka.NewRedisSeenStore(a.redis, cfg.ServiceName+":seen:", seenTTL)
		}
		identity := event.NewIdentityHandler(creds, logger)
		a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.KafkaIdentityTopic,
		}, identity.Handle, logger,
			pkgkafka.WithDeadLetter(a.deadLetter),
			pkgkafka.WithSeenStore(seen),
		)
	}

	// Services.
	revocation := service.NewRevocationService(creds, events, logger)
	profiles := service.NewProfileService(users, revocation, events, logger)
	authSvc := service.NewAuthService(users, creds, issuer, events, logger)
	workflow := service.NewWorkflowService(tests, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return a.pool.Ping(ctx)
	})
	if a.redis != nil {
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}
	healthHandler.RegisterNonCritical("credential-store-breaker", func(context.Context) error {
		if creds.Breaker().State().String() == "open" {
			return breaker.ErrOpen
		}
		return nil
	})

	// HTTP router.
	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	a.stopLimiter = stopLimiter
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment

	router := handler.NewRouter(
		handler.Handlers{
			Auth:    handler.NewAuthHandler(authSvc, revocation, profiles, logger),
			Profile: handler.NewProfileHandler(profiles, logger),
			Tests:   handler.NewTestHandler(workflow, logger),
		},
		gate.Authenticator(),
		healthHandler,
		handler.RouterConfig{
			ServiceName:       cfg.ServiceName,
			CORS:              corsCfg,
			PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
			LoginLimiter: middleware.NewRateLimiter(limiterCtx,
				cfg.LoginRateLimitRPS, cfg.LoginRateLimitBurst, logger,
				middleware.WithTrustedProxies(cfg.TrustedProxyCIDRs)),
		},
		logger,
	)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and the identity consumer, and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(consumerCtx); err != nil {
				errCh <- fmt.Errorf("identity consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		stopConsumer()
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumer, dead-letter writer and producer
// 4. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases everything except the HTTP server. It is also
// used when NewApp fails half way.
func (a *App) closeResources() []error {
	var errs []error
	if a.stopLimiter != nil {
		a.stopLimiter()
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer: %w", err))
		}
	}
	if a.deadLetter != nil {
		if err := a.deadLetter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dead-letter writer: %w", err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
		}
	}
	if a.tracerShutdown != nil {
		_ = a.tracerShutdown(context.Background())
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	for _, err := range errs {
		a.logger.Error("shutdown error", slog.String("error", err.Error()))
	}
	return errs
}
