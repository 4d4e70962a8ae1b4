package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/gram-swasthya/platform/internal/audit"
	"github.com/gram-swasthya/platform/internal/auth"
	"github.com/gram-swasthya/platform/internal/authz"
	"github.com/gram-swasthya/platform/internal/hierarchy"
	hierarchyapi "github.com/gram-swasthya/platform/internal/hierarchy/api"
	"github.com/gram-swasthya/platform/internal/notification"
	reportapi "github.com/gram-swasthya/platform/internal/report/api"
	"github.com/gram-swasthya/platform/internal/report/domain"
	reportinfra "github.com/gram-swasthya/platform/internal/report/infrastructure"
	"github.com/gram-swasthya/platform/internal/scope"
	"github.com/gram-swasthya/platform/internal/shared/config"
	"github.com/gram-swasthya/platform/internal/shared/database"
	"github.com/gram-swasthya/platform/internal/shared/events"
	"github.com/gram-swasthya/platform/internal/shared/logging"
	"github.com/gram-swasthya/platform/internal/shared/metrics"
	secmiddleware "github.com/gram-swasthya/platform/internal/shared/middleware"
	"github.com/gram-swasthya/platform/internal/staff"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *database.DB
	Bus    *events.Bus
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	app := &App{Config: cfg, Logger: logger}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("database not available", zap.Error(err))
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool, logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Event bus is optional: without KurrentDB the platform runs, it just
	// skips event publication and the audit subscriber.
	bus, err := events.NewBus(ctx, cfg.KurrentDB)
	if err != nil {
		logger.Warn("KurrentDB not available, running without event streaming", zap.Error(err))
	} else {
		app.Bus = bus
		defer bus.Close()
		logger.Info("event bus initialized",
			zap.String("host", cfg.KurrentDB.Host), zap.Int("port", cfg.KurrentDB.Port))
	}

	// Hierarchy snapshots and scope resolution
	hierarchyRepo := hierarchy.NewRepository(db.Pool)
	provider := hierarchy.NewProvider(hierarchyRepo, cfg.Scope.CacheTTL)

	var scopeCache scope.Cache
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		scopeCache = scope.NewRedisCache(redisClient, cfg.Scope.CacheTTL)
		logger.Info("scope cache using redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		scopeCache = scope.NewMemoryCache(cfg.Scope.CacheTTL)
	}
	resolver := scope.NewResolver(provider.Trees(), scopeCache)

	// Authorization
	policy := auth.MustLoadPolicy()
	evaluator := authz.NewEvaluator(policy, resolver)

	// Notifications
	var notifier notification.Notifier = notification.Noop{}
	if cfg.Notify.Enabled && cfg.Notify.WebhookURL != "" {
		notifier = notification.NewAsync(notification.NewWebhook(cfg.Notify.WebhookURL, logger), logger)
		logger.Info("notification webhook enabled")
	}

	// Report workflow
	validator := domain.NewValidator()
	engine := domain.NewEngine(validator)
	reportRepo := reportinfra.NewPostgresRepository(db.Pool)

	var eventBus events.EventBus
	if app.Bus != nil {
		eventBus = app.Bus
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.RateLimiter(100, 200))
	r.Use(secmiddleware.BodyLimit(1 << 20))
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth))

		reportHandler := reportapi.NewHandler(reportRepo, engine, validator, evaluator, provider, eventBus, notifier)
		r.Mount("/health-reports", reportHandler.Routes())

		hierarchyHandler := hierarchyapi.NewHandler(hierarchyRepo, provider, evaluator, eventBus)
		r.Mount("/districts", hierarchyHandler.DistrictRoutes())
		r.Mount("/blocks", hierarchyHandler.BlockRoutes())
		r.Mount("/villages", hierarchyHandler.VillageRoutes())

		staffHandler := staff.NewHandler(staff.NewRepository(db.Pool), evaluator, eventBus)
		r.Mount("/staff-assignments", staffHandler.Routes())

		// Audit trail lives in KurrentDB; without the bus there is nothing
		// to record or query.
		if app.Bus != nil {
			auditStore := audit.NewKurrentDBStore(app.Bus.Client())
			if err := auditStore.Initialize(ctx); err != nil {
				logger.Warn("audit initialization failed", zap.Error(err))
			}
			r.Mount("/audit", audit.NewHandler(auditStore, evaluator).Routes())

			subscriber := audit.NewSubscriber(auditStore, app.Bus)
			if err := subscriber.Start(ctx); err != nil {
				logger.Warn("audit subscriber failed to start", zap.Error(err))
			} else {
				logger.Info("audit subscriber started")
			}
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		close(done)
	}()

	logger.Info("gram swasthya platform listening",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	<-done
	logger.Info("server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Gram Swasthya Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
