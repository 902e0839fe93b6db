package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/person-registry/internal/config"
	"github.com/ignite/person-registry/internal/objectstore"
	"github.com/ignite/person-registry/internal/pkg/distlock"
	"github.com/ignite/person-registry/internal/pkg/logger"
	"github.com/ignite/person-registry/internal/repository/postgres"
	"github.com/ignite/person-registry/internal/worker"
)

// The worker runs the storage reconciler outside the API process. With
// --once it performs a single sweep and exits, for cron-style scheduling.
func main() {
	once := flag.Bool("once", false, "run a single reconciliation sweep and exit")
	flag.Parse()

	workerID := uuid.NewString()[:8]
	logger.Info("starting storage worker", "worker_id", workerID)

	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	if err := logger.SetLevelName(cfg.Log.Level); err != nil {
		logger.Warn("unknown log level, keeping info", "level", cfg.Log.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		logger.Fatal("failed to ping database", "error", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", "error", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	store, err := objectstore.NewFromConfig(ctx, cfg.ObjectStore)
	if err != nil {
		logger.Fatal("failed to initialize object store", "error", err)
	}

	lock := distlock.NewLock(redisClient, db, worker.LockKey(), cfg.Reconciler.Interval())
	reconciler := worker.NewStorageReconciler(store, postgres.NewImportJobRepo(db), lock, cfg.Reconciler.Interval(), cfg.Reconciler.Grace())

	if *once {
		report, err := reconciler.RunOnce(ctx)
		if err != nil {
			logger.Fatal("reconciliation failed", "worker_id", workerID, "error", err)
		}
		logger.Info("reconciliation finished",
			"worker_id", workerID,
			"skipped", report.Skipped,
			"staging_deleted", report.StagingDeleted,
			"orphans_deleted", report.OrphansDeleted,
			"missing_files", report.MissingFiles,
		)
		return
	}

	go reconciler.Start(ctx)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down storage worker", "worker_id", workerID)
	cancel()
}
