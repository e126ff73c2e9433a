package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/parserhub/hub-server-go/internal/authclient"
	"github.com/parserhub/hub-server-go/internal/config"
	"github.com/parserhub/hub-server-go/internal/database"
	"github.com/parserhub/hub-server-go/internal/handler"
	"github.com/parserhub/hub-server-go/internal/jobclient"
	"github.com/parserhub/hub-server-go/internal/jobs"
	"github.com/parserhub/hub-server-go/internal/middleware"
	"github.com/parserhub/hub-server-go/internal/redis"
	"github.com/parserhub/hub-server-go/internal/repository"
	"github.com/parserhub/hub-server-go/internal/service"
	"github.com/parserhub/hub-server-go/internal/sessionfile"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	files, err := sessionfile.NewStore(cfg.SessionsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare sessions directory")
	}

	userRepo := repository.NewUserRepository(db.DB)
	taskRepo := repository.NewTaskRepository(db.DB)
	entitlementRepo := repository.NewEntitlementRepository(db.DB)

	registry := jobclient.NewRegistry(
		jobclient.NewWorkersClient(cfg.WorkersServiceURL),
		jobclient.NewRealtyClient(cfg.RealtyServiceURL),
	)
	dialer := authclient.NewBrokerDialer(cfg.AuthBrokerURL)

	entitlementService := service.NewEntitlementService(entitlementRepo)
	authRegistry := service.NewAuthSessionRegistry(dialer, files)
	ledger := service.NewTaskLedger(taskRepo, registry, entitlementService, files)
	cooldown := service.NewCooldownLimiter()

	// Reconcile before accepting traffic so the single-flight rule never
	// trips on rows for jobs that died while we were down.
	reconcileCtx, reconcileCancel := context.WithTimeout(context.Background(), config.ServerRequestTimeout)
	if _, err := service.NewReconciler(taskRepo, registry).Run(reconcileCtx); err != nil {
		log.Fatal().Err(err).Msg("startup reconciliation failed")
	}
	reconcileCancel()

	authMiddleware := middleware.NewAuthMiddleware(userRepo)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.RateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	authHandler := handler.NewAuthHandler(authRegistry, userRepo, files, cooldown)
	taskHandler := handler.NewTaskHandler(ledger, cooldown)
	entitlementHandler := handler.NewEntitlementHandler(entitlementService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)
		r.Mount("/auth", authHandler.Routes())
		r.Mount("/tasks", taskHandler.Routes())
		r.Mount("/entitlement", entitlementHandler.Routes())
	})

	janitors := jobs.NewGroup(
		jobs.Janitor{
			Name:     "entitlement sweep",
			Interval: cfg.EntitlementSweepInterval(),
			Run:      entitlementService.SweepExpired,
		},
		jobs.Janitor{
			Name:     "stale auth sweep",
			Interval: cfg.SessionSweepInterval(),
			Run: func(ctx context.Context) (int64, error) {
				return int64(authRegistry.CleanupStale(cfg.StaleSessionThreshold())), nil
			},
		},
		jobs.Janitor{
			Name:     "cooldown prune",
			Interval: cfg.CooldownPruneInterval(),
			Run: func(ctx context.Context) (int64, error) {
				return int64(cooldown.Prune(config.CooldownRetention)), nil
			},
		},
	)
	janitors.Start()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		IdleTimeout: config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	janitors.Stop()
	authRegistry.CloseAll()

	// Fresh context: the drain above may have used up shutdownCtx.
	bookkeepingCtx, bookkeepingCancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	defer bookkeepingCancel()

	// The remote jobs keep running; the rows are marked so the next start
	// reconciles against live services instead of trusting stale state.
	if cleared, err := ledger.ClearRunning(bookkeepingCtx); err != nil {
		log.Error().Err(err).Msg("failed to clear running tasks")
	} else if cleared > 0 {
		log.Info().Int64("count", cleared).Msg("running tasks marked stopped")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
