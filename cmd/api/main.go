package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/workshoplabs/backend-garage/internal/app"
	"github.com/workshoplabs/backend-garage/internal/auth"
	"github.com/workshoplabs/backend-garage/internal/common"
	"github.com/workshoplabs/backend-garage/internal/config"
	"github.com/workshoplabs/backend-garage/internal/customer"
	"github.com/workshoplabs/backend-garage/internal/events"
	"github.com/workshoplabs/backend-garage/internal/health"
	"github.com/workshoplabs/backend-garage/internal/invoice"
	"github.com/workshoplabs/backend-garage/internal/notify"
	"github.com/workshoplabs/backend-garage/internal/obs"
	"github.com/workshoplabs/backend-garage/internal/parts"
	"github.com/workshoplabs/backend-garage/internal/payable"
	"github.com/workshoplabs/backend-garage/internal/ratelimit"
	"github.com/workshoplabs/backend-garage/internal/security"
	"github.com/workshoplabs/backend-garage/internal/staff"
	"github.com/workshoplabs/backend-garage/internal/tenant"
	"github.com/workshoplabs/backend-garage/internal/vehicle"
	"github.com/workshoplabs/backend-garage/internal/workshop"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   cfg.ServiceName,
			Endpoint:      cfg.TracingEndpoint,
			SamplingRatio: cfg.TracingSampleRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	if cfg.RunMigrations {
		m, err := migrate.New(cfg.MigrationsPath, migrateURL(cfg.DatabaseURL))
		if err != nil {
			logger.Fatal().Err(err).Msg("open migrations")
		}
		if err := app.RunMigrations(m); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	validate := validator.New()

	limiterStore, err := app.NewLimiterStore(redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise limiter store")
	}
	deps := app.Dependencies{
		Context:      ctx,
		DB:           pool,
		Redis:        redisClient,
		Validator:    validate,
		Limiter:      limiter.New(limiterStore, limiter.Rate{Period: cfg.LoginRateWindow, Limit: int64(cfg.LoginRateMax)}),
		LimiterStore: limiterStore,
		TaskClient:   asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB}),
	}
	defer func() {
		if err := deps.TaskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	staffStore := staff.Store{Pool: pool}
	customerStore := customer.Store{Pool: pool}
	vehicleStore := vehicle.Store{Pool: pool}
	workshopStore := workshop.Store{Pool: pool}
	partsStore := parts.Store{Pool: pool}
	invoiceStore := invoice.Store{Pool: pool}
	payableStore := payable.Store{Pool: pool}

	mailer := common.NopEmailSender{}
	bus := &events.Bus{
		Store: events.PGStore{Pool: pool},
		Notifiers: []events.Notifier{notify.EmailNotifier{
			Mail:    mailer,
			Enabled: cfg.ReminderEmailEnabled,
			From:    cfg.ReminderEmailFrom,
		}},
	}

	authService, err := auth.NewService(auth.Config{
		Store:          staffStore,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := auth.NewHandler(auth.HandlerConfig{Service: authService, Validate: validate})
	authMiddleware := auth.Middleware{Service: authService}

	partsService, err := parts.NewService(parts.ServiceConfig{
		Store:    partsStore,
		Redis:    redisClient,
		CacheTTL: cfg.PartsCacheTTL,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise parts service")
	}
	workshopService, err := workshop.NewService(workshop.ServiceConfig{Store: workshopStore, Bus: bus, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise workshop service")
	}
	invoiceService, err := invoice.NewService(invoice.ServiceConfig{Store: invoiceStore, Bus: bus, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise invoice service")
	}

	customerHandler := customer.NewHandler(customer.HandlerConfig{Store: customerStore, Validate: validate})
	vehicleHandler := vehicle.NewHandler(vehicle.HandlerConfig{Store: vehicleStore, Validate: validate})
	staffHandler := staff.NewHandler(staff.HandlerConfig{Store: staffStore, Validate: validate})
	workshopHandler := workshop.NewHandler(workshop.HandlerConfig{Service: workshopService, Validate: validate})
	partsHandler := parts.NewHandler(parts.HandlerConfig{Service: partsService, Validate: validate})
	invoiceHandler := invoice.NewHandler(invoice.HandlerConfig{Service: invoiceService, Validate: validate})
	payableHandler := payable.NewHandler(payable.HandlerConfig{Store: payableStore, Validate: validate})

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	loginLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: cfg.QueueRedisPrefix + ":rl:"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return "login:" + common.ClientIP(r) },
			Window: cfg.LoginRateWindow,
			Max:    cfg.LoginRateMax,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)
	orgResolver := tenant.NewResolver(cfg.OrgHeaderName, cfg.OrgRootDomain, cfg.DefaultOrg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeadersEnabled, EnableHSTS: cfg.HSTSEnabled}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyMaxBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", cfg.OrgHeaderName},
		ExposedHeaders:   []string{"X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(orgResolver.Middleware)

	r.Handle("/metrics", promhttp.Handler())
	if envBool("OBS_ENABLE_PPROF", false) {
		r.Mount("/debug/pprof", newPprofMux())
	}

	healthHandler := health.Handler{Checker: readinessChecker{db: pool, redis: redisClient}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/v1", func(v chi.Router) {
		v.Route("/auth", func(a chi.Router) {
			a.With(loginLimit.Middleware).Post("/login", authHandler.Login)
			a.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Group(func(g chi.Router) {
			g.Use(authMiddleware.RequireAuth)

			g.Route("/customers", func(c chi.Router) {
				c.Post("/", customerHandler.Create)
				c.Get("/", customerHandler.List)
				c.Get("/{customerID}", customerHandler.Get)
				c.Put("/{customerID}", customerHandler.Update)
				c.Delete("/{customerID}", customerHandler.Delete)
			})

			g.Route("/vehicles", func(c chi.Router) {
				c.Post("/", vehicleHandler.Create)
				c.Get("/", vehicleHandler.List)
				c.Get("/{vehicleID}", vehicleHandler.Get)
				c.Put("/{vehicleID}", vehicleHandler.Update)
				c.Delete("/{vehicleID}", vehicleHandler.Delete)
			})

			g.Route("/staff", func(c chi.Router) {
				c.Post("/", staffHandler.Create)
				c.Get("/", staffHandler.List)
				c.Get("/{staffID}", staffHandler.Get)
				c.Put("/{staffID}", staffHandler.Update)
				c.Delete("/{staffID}", staffHandler.Delete)
				c.Post("/{staffID}/clock-in", staffHandler.ClockIn)
				c.Post("/{staffID}/clock-out", staffHandler.ClockOut)
				c.Get("/{staffID}/attendance", staffHandler.Attendance)
			})

			g.Route("/workshop/tasks", func(c chi.Router) {
				c.Post("/", workshopHandler.Create)
				c.Get("/", workshopHandler.List)
				c.Get("/candidates", workshopHandler.LaborCandidates)
				c.Get("/{taskID}", workshopHandler.Get)
				c.Put("/{taskID}", workshopHandler.Update)
				c.Delete("/{taskID}", workshopHandler.Delete)
			})

			g.Route("/parts", func(c chi.Router) {
				c.Post("/", partsHandler.Create)
				c.Get("/", partsHandler.List)
				c.Get("/candidates", partsHandler.LineCandidates)
				c.Get("/low-stock", partsHandler.LowStock)
				c.Get("/{partID}", partsHandler.Get)
				c.Put("/{partID}", partsHandler.Update)
				c.Delete("/{partID}", partsHandler.Delete)
			})

			g.Route("/invoices", func(c chi.Router) {
				c.With(idem.Middleware).Post("/", invoiceHandler.Create)
				c.Get("/", invoiceHandler.List)
				c.Get("/{invoiceID}", invoiceHandler.Get)
				c.With(idem.Middleware).Put("/{invoiceID}", invoiceHandler.Save)
				c.With(idem.Middleware).Post("/{invoiceID}/payments", invoiceHandler.RecordPayment)
				c.Delete("/{invoiceID}", invoiceHandler.Delete)
			})

			g.Route("/payables", func(c chi.Router) {
				c.Post("/", payableHandler.Create)
				c.Get("/", payableHandler.List)
				c.Get("/{payableID}", payableHandler.Get)
				c.Put("/{payableID}", payableHandler.Update)
				c.Post("/{payableID}/pay", payableHandler.MarkPaid)
				c.Delete("/{payableID}", payableHandler.Delete)
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.ServiceName
	if cfg.DBMaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.DBMaxIdleConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

// migrateURL maps the pool connection string onto the migrate pgx5 driver.
func migrateURL(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgres://") {
		return "pgx5://" + strings.TrimPrefix(databaseURL, "postgres://")
	}
	if strings.HasPrefix(databaseURL, "postgresql://") {
		return "pgx5://" + strings.TrimPrefix(databaseURL, "postgresql://")
	}
	return databaseURL
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}
