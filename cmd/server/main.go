package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/person-registry/internal/api"
	"github.com/ignite/person-registry/internal/cache"
	"github.com/ignite/person-registry/internal/config"
	"github.com/ignite/person-registry/internal/notify"
	"github.com/ignite/person-registry/internal/objectstore"
	"github.com/ignite/person-registry/internal/pkg/distlock"
	"github.com/ignite/person-registry/internal/pkg/logger"
	"github.com/ignite/person-registry/internal/pkg/txn"
	"github.com/ignite/person-registry/internal/repository/postgres"
	"github.com/ignite/person-registry/internal/service/importer"
	"github.com/ignite/person-registry/internal/service/location"
	"github.com/ignite/person-registry/internal/service/person"
	"github.com/ignite/person-registry/internal/worker"
)

const defaultConfigPath = "config/config.yaml"

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// extractHost returns the host part of a postgres URL for logging without credentials.
func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	if err := logger.SetLevelName(cfg.Log.Level); err != nil {
		logger.Warn("unknown log level, keeping info", "level", cfg.Log.Level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to open database", "error", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		logger.Fatal("database unreachable", "host", extractHost(cfg.Database.URL), "error", err)
	}
	logger.Info("connected to PostgreSQL", "host", extractHost(cfg.Database.URL))

	// Redis is optional: without it the entity cache is disabled and leader
	// election falls back to PostgreSQL advisory locks.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", "error", err)
		}
		redisClient = redis.NewClient(opts)
		rCtx, rCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(rCtx).Err(); err != nil {
			logger.Warn("redis unreachable, entity cache disabled", "error", err)
			redisClient.Close()
			redisClient = nil
		}
		rCancel()
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	store, err := objectstore.NewFromConfig(ctx, cfg.ObjectStore)
	if err != nil {
		logger.Fatal("failed to initialize object store", "error", err)
	}

	var entityCache *cache.EntityCache
	if redisClient != nil {
		entityCache = cache.New(redisClient, cfg.Cache.TTL())
	}
	cacheLogging := cache.NewToggle(cfg.Cache.LogStats)

	hub := notify.NewHub(cfg.Notify.BufferSize)
	if cfg.Notify.RelayEnabled {
		relay := notify.NewRelay(db, cfg.Database.URL, cfg.Notify.RelayChannel, hub)
		hub.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("notify relay stopped", "error", err)
			}
		}()
	}

	tx := txn.NewManager(db)
	personRepo := postgres.NewPersonRepo(db)
	locationRepo := postgres.NewLocationRepo(db)
	coordinatesRepo := postgres.NewCoordinatesRepo(db)
	jobRepo := postgres.NewImportJobRepo(db)

	persons := person.NewService(person.Deps{
		Repo:        personRepo,
		Coordinates: coordinatesRepo,
		Locations:   locationRepo,
		Tx:          tx,
		Locker:      distlock.NewNameLocker(),
		Notifier:    hub,
		Cache:       entityCache,
	})
	locations := location.NewService(locationRepo, coordinatesRepo, tx, hub, entityCache)
	imports := importer.NewService(importer.Deps{
		Storage:   store,
		Jobs:      jobRepo,
		Persons:   persons,
		Locations: locations,
		Tx:        tx,
		Notifier:  hub,
	})

	if cfg.Reconciler.Enabled {
		lock := distlock.NewLock(redisClient, db, worker.LockKey(), cfg.Reconciler.Interval())
		reconciler := worker.NewStorageReconciler(store, jobRepo, lock, cfg.Reconciler.Interval(), cfg.Reconciler.Grace())
		go reconciler.Start(ctx)
	}

	handlers := api.NewHandlers(api.Deps{
		Persons:        persons,
		Locations:      locations,
		Imports:        imports,
		Hub:            hub,
		Cache:          entityCache,
		CacheLogging:   cacheLogging,
		DB:             db,
		KeepAlive:      cfg.Notify.KeepAlive(),
		MaxUploadBytes: cfg.Import.MaxUploadBytes(),
	})
	server := api.NewServer(cfg.Server, handlers)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", "error", err)
		}
	}()

	<-done
	logger.Info("shutting down")

	// Cancel background tasks
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
