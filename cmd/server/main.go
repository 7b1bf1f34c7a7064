package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"talentforge/internal/actionplan"
	"talentforge/internal/assessment"
	"talentforge/internal/auth"
	"talentforge/internal/candidate"
	"talentforge/internal/config"
	"talentforge/internal/copc"
	"talentforge/internal/db"
	"talentforge/internal/employee"
	"talentforge/internal/insights"
	"talentforge/internal/job"
	"talentforge/internal/logging"
	"talentforge/internal/metrics"
	"talentforge/internal/middleware"
	"talentforge/internal/nr1"
	"talentforge/internal/observability"
	"talentforge/internal/tfci"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.Init(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Closer()

	flushSentry, err := observability.InitSentry(cfg.SentryDSN, cfg.Environment, version)
	if err != nil {
		logger.Sugar.Warnw("sentry init failed", "error", err)
	}
	defer flushSentry()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Sugar.Fatalw("db connect failed", "error", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, "migrations"); err != nil {
			logger.Sugar.Fatalw("migrations failed", "error", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			logger.Sugar.Fatalw("seed failed", "error", err)
		}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger.Base))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute, logger.Base))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		start := time.Now()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		metrics.ObserveDBPing(time.Since(start))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Handle("/metrics", metrics.Handler())
	}

	assessmentHandler := assessment.NewHandler(pool, logger.Base)

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := auth.NewHandler(pool, cfg.JWTSecret)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		// candidates answer without an account
		assessmentHandler.RegisterPublicRoutes(r)

		employee.NewHandler(pool, logger.Base).RegisterRoutes(r)
		job.NewHandler(pool, logger.Base).RegisterRoutes(r)
		candidate.NewHandler(pool, logger.Base).RegisterRoutes(r)
		assessmentHandler.RegisterRoutes(r)

		tfci.NewHandler(tfci.NewService(tfci.NewStore(pool))).RegisterRoutes(r)

		nr1.NewHandler(pool, logger.Base).RegisterRoutes(r)
		copc.NewHandler(pool, logger.Base).RegisterRoutes(r)
		actionplan.NewHandler(pool, logger.Base).RegisterRoutes(r)

		narrator := insights.NewNarrator(cfg.GenAIAPIKey, logger.Base)
		insights.NewHandler(insights.NewService(pool, logger.Base, narrator)).RegisterRoutes(r)
	})

	logger.Sugar.Infow("talentforge server listening", "addr", cfg.Addr, "env", cfg.Environment)
	if err := http.ListenAndServe(cfg.Addr, router); err != nil {
		logger.Sugar.Fatalw("server failed", "error", err)
	}
}
