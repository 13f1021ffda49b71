package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/benestar-app/benestar/internal/ai"
	"github.com/benestar-app/benestar/internal/api"
	"github.com/benestar-app/benestar/internal/assistant"
	"github.com/benestar-app/benestar/internal/auth"
	"github.com/benestar-app/benestar/internal/config"
	"github.com/benestar-app/benestar/internal/database"
	"github.com/benestar-app/benestar/internal/governance"
	"github.com/benestar-app/benestar/internal/governance/audit"
	"github.com/benestar-app/benestar/internal/middleware"
	inats "github.com/benestar-app/benestar/internal/nats"
	"github.com/benestar-app/benestar/internal/quota"
	iredis "github.com/benestar-app/benestar/internal/redis"
	"github.com/benestar-app/benestar/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis backs the per-IP limiter and, by default, the quota counters.
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// PostgreSQL holds quota counters (postgres backend) and denial events.
	var pool *pgxpool.Pool
	if cfg.Store.Backend == config.StorePostgres || cfg.NATS.URL != "" {
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
			slog.Error("running migrations", "error", err)
			os.Exit(1)
		}
		pool, err = database.NewPostgresPool(ctx, cfg.DB)
		if err != nil {
			slog.Error("connecting to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	checks := readinessChecks(redisClient, pool)

	// Quota counter store
	var store quota.Store
	switch cfg.Store.Backend {
	case config.StorePostgres:
		store = quota.NewPostgresStore(pool)
	default:
		store = quota.NewRedisStore(redisClient)
	}
	slog.Info("quota store selected", "backend", cfg.Store.Backend)

	// NATS (optional): publishes denials and persists them.
	var gateOpts []quota.Option
	var eventRepo *audit.Repository
	if cfg.NATS.URL != "" {
		natsClient, err := inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		checks["nats"] = func(context.Context) error {
			if !natsClient.Healthy() {
				return errors.New("nats disconnected")
			}
			return nil
		}

		gateOpts = append(gateOpts, quota.WithNotifier(inats.NewPublisher(natsClient.JetStream())))

		eventRepo = audit.NewRepository(pool)
		consumer := audit.NewConsumer(eventRepo, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("quota event consumer stopped", "error", err)
			}
		}()
	}

	gate, err := quota.NewGate(store, quota.GateConfig{
		Limits:      quotaLimits(cfg.Quota),
		MaxAttempts: cfg.Quota.MaxAttempts,
		BaseBackoff: cfg.Quota.BaseBackoff,
	}, gateOpts...)
	if err != nil {
		slog.Error("creating quota gate", "error", err)
		os.Exit(1)
	}
	go gate.RunNotifier(ctx)

	// Gemini
	completer, err := ai.NewGemini(ctx, cfg.Gemini)
	if err != nil {
		slog.Error("creating gemini client", "error", err)
		os.Exit(1)
	}

	// Auth
	jwtManager := auth.NewJWTManager(cfg.JWT.AccessSecret, cfg.JWT.Issuer, cfg.JWT.AccessExpiry)

	// Handlers
	assistantHandler := assistant.NewHandler(assistant.NewService(gate, completer))
	var events governance.EventLister
	if eventRepo != nil {
		events = eventRepo
	}
	governanceHandler := governance.NewHandler(gate, events)

	rateLimiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.WindowSec)

	// Router
	router := api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		IPRateLimiter:      rateLimiter.Middleware,
		Checks:             checks,
	}, api.HandlerSet{
		Chat:            assistantHandler.Chat,
		RoleplayStep:    assistantHandler.RoleplayStep,
		AnalyzeJournal:  assistantHandler.AnalyzeJournal,
		GetQuota:        governanceHandler.GetQuota,
		ListQuotaEvents: governanceHandler.ListQuotaEvents,
		AuthMiddleware:  auth.Middleware(jwtManager),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func quotaLimits(cfg config.QuotaConfig) map[quota.Kind]quota.Limits {
	return map[quota.Kind]quota.Limits{
		quota.KindChat:     {PerMinute: cfg.Chat.PerMinute, PerDay: cfg.Chat.PerDay},
		quota.KindRoleplay: {PerMinute: cfg.Roleplay.PerMinute, PerDay: cfg.Roleplay.PerDay},
		quota.KindJournal:  {PerMinute: cfg.Journal.PerMinute, PerDay: cfg.Journal.PerDay},
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// readinessChecks checks every backing service the process connected to.
// Postgres is checked whenever it is open, whether it holds counters or only
// denial events. NATS starts as "not configured" and is filled in later.
func readinessChecks(redisClient goredis.UniversalClient, pool *pgxpool.Pool) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"redis": func(ctx context.Context) error { return iredis.HealthCheck(ctx, redisClient) },
		"nats":  nil,
	}
	if pool != nil {
		checks["database"] = func(ctx context.Context) error { return database.HealthCheck(ctx, pool) }
	}
	return checks
}
