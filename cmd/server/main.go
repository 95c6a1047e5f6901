package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pztrick/television/internal/adapter/auth"
	"github.com/pztrick/television/internal/adapter/httpserver"
	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/adapter/postgres"
	"github.com/pztrick/television/internal/adapter/redis"
	"github.com/pztrick/television/internal/app"
	"github.com/pztrick/television/internal/dispatch"
	"github.com/pztrick/television/internal/hub"
	"github.com/pztrick/television/internal/platform/config"
	"github.com/pztrick/television/internal/platform/logging"
	"github.com/pztrick/television/internal/platform/telemetry"
	"github.com/pztrick/television/internal/platform/version"
)

const instanceHeartbeat = 15 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, m *metrics.DatabaseMetrics) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		slog.Info("DATABASE_URL not set, using in-memory entity stores")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, m)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, broadcasts stay in-process")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupResolver(cfg *config.Config) auth.Resolver {
	var chain auth.Chain
	if cfg.JWTSecret != "" {
		chain = append(chain, auth.NewTokenResolver(cfg.JWTSecret, cfg.JWTIssuer))
	}
	store := auth.NewCookieStore(cfg.SessionSecret, cfg.SessionMaxAge, cfg.IsProduction())
	return append(chain, auth.NewSessionResolver(store, cfg.SessionName))
}

func healthChecks(pool *pgxpool.Pool, rdb *goredis.Client) []httpserver.HealthCheck {
	var checks []httpserver.HealthCheck
	if pool != nil {
		checks = append(checks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	}
	if rdb != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	return checks
}

type shutdownDeps struct {
	server     *httpserver.Server
	dispatcher *dispatch.Dispatcher
	directory  *hub.Directory
	stopLayer  context.CancelFunc
	telemetry  telemetry.ShutdownFunc
}

func runGracefulShutdown(deps shutdownDeps) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := deps.server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// In-flight handlers finish their store writes and broadcasts first.
		deps.dispatcher.Wait()
		deps.stopLayer()
		deps.directory.Stop()

		if err := deps.telemetry(shutdownCtx); err != nil {
			slog.Error("Telemetry shutdown error", "error", err)
		}
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", append([]any{"env", cfg.AppEnv, "port", cfg.Port}, info.LogAttrs()...)...)

	shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.OTLPEndpoint, info.Version)
	if err != nil {
		slog.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	promReg := metrics.NewRegistry()
	m := metrics.New(promReg)

	pool := setupDB(cfg, m.Database)
	if pool != nil {
		defer pool.Close()
	}
	redisClient := setupRedis(cfg, m.Redis)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// A nil *redis.Layer must not reach the directory as a non-nil interface.
	var layer hub.Layer
	layerCtx, stopLayer := context.WithCancel(context.Background())
	defer stopLayer()
	if redisClient != nil {
		layer = redis.NewLayer(redisClient, redis.DefaultPrefix, m.Redis)
	}
	directory := hub.NewDirectory(clock, layer, m.Groups)
	if layer != nil {
		go func() {
			if err := layer.Subscribe(layerCtx, directory.DeliverFunc()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Channel layer subscription ended", "error", err)
			}
		}()
	}

	overrides, err := app.LoadBindingOverrides(cfg.BindingsFile)
	if err != nil {
		slog.Error("Failed to load binding overrides", "error", err)
		os.Exit(1)
	}
	stores, err := app.NewStores(pool, clock)
	if err != nil {
		slog.Error("Failed to create entity stores", "error", err)
		os.Exit(1)
	}
	application, err := app.Bootstrap(context.Background(), app.Options{
		Broadcaster: directory,
		Stores:      stores,
		Overrides:   overrides,
		Metrics:     m.Bindings,
		Clock:       clock,
	})
	if err != nil {
		slog.Error("Failed to bootstrap application", "error", err)
		os.Exit(1)
	}

	dispatcher, err := dispatch.New(application.Registry, dispatch.Options{
		Debug:   cfg.Debug,
		Metrics: m.Dispatch,
	})
	if err != nil {
		slog.Error("Failed to create dispatcher", "error", err)
		os.Exit(1)
	}

	var srv *httpserver.Server
	deps := httpserver.Deps{
		Directory:    directory,
		Dispatcher:   dispatcher,
		Registry:     application.Registry,
		Resolver:     setupResolver(cfg),
		Metrics:      m,
		Prometheus:   promReg,
		HealthChecks: healthChecks(pool, redisClient),
		Clock:        clock,
	}
	var instances *redis.Instances
	if redisClient != nil {
		connections := func() int64 { return srv.Limits().Current() }
		instances = redis.NewInstances(redisClient, uuid.NewString(), info.Version, instanceHeartbeat, clock, connections)
		deps.Instances = instances
	}
	srv = httpserver.NewServer(cfg, deps)
	if instances != nil {
		go instances.Run(layerCtx)
	}

	done := runGracefulShutdown(shutdownDeps{
		server:     srv,
		dispatcher: dispatcher,
		directory:  directory,
		stopLayer:  stopLayer,
		telemetry:  shutdownTelemetry,
	})

	slog.Info("Server starting", "port", cfg.Port, "listeners", application.Registry.Len())
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
