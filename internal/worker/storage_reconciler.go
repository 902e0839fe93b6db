package worker

import (
	"context"
	"strings"
	"time"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/objectstore"
	"github.com/ignite/person-registry/internal/pkg/distlock"
	"github.com/ignite/person-registry/internal/pkg/logger"
)

// =============================================================================
// STORAGE RECONCILER: repairs drift between object storage and import jobs
// =============================================================================
// Object storage and PostgreSQL commit separately. A crash between the two
// leaves one of:
//   - a staging object no import will ever commit or roll back
//   - a final object with no SUCCESS job pointing at it
//   - a SUCCESS job whose retained file is gone
// The first two are deleted once older than the grace period; the third
// cannot be repaired and is logged.
//
// Only one instance sweeps at a time; the others skip the cycle.

const (
	DefaultReconcileInterval = 15 * time.Minute
	DefaultReconcileGrace    = time.Hour

	reconcilerLockKey = "storage-reconciler"
)

// ObjectStore is the part of objectstore.Store the reconciler uses.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// JobIndex answers which object keys import jobs still reference.
type JobIndex interface {
	KeyRetained(ctx context.Context, key string) (bool, error)
	RetainedJobs(ctx context.Context) ([]domain.ImportJob, error)
}

// ReconcileReport summarizes one sweep.
type ReconcileReport struct {
	Skipped        bool
	StagingDeleted int
	OrphansDeleted int
	MissingFiles   int
}

// StorageReconciler periodically removes abandoned import files.
type StorageReconciler struct {
	store    ObjectStore
	jobs     JobIndex
	lock     distlock.DistLock
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
}

// NewStorageReconciler creates a reconciler. lock elects the instance that sweeps.
func NewStorageReconciler(store ObjectStore, jobs JobIndex, lock distlock.DistLock, interval, grace time.Duration) *StorageReconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	if grace <= 0 {
		grace = DefaultReconcileGrace
	}
	return &StorageReconciler{
		store:    store,
		jobs:     jobs,
		lock:     lock,
		interval: interval,
		grace:    grace,
		now:      time.Now,
	}
}

// LockKey is the distlock key shared by all reconciler instances.
func LockKey() string { return reconcilerLockKey }

// Start runs a sweep immediately and then every interval until ctx is cancelled.
func (r *StorageReconciler) Start(ctx context.Context) {
	logger.Info("storage reconciler starting", "component", "reconciler", "interval", r.interval.String(), "grace", r.grace.String())

	r.runLogged(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("storage reconciler stopping", "component", "reconciler")
			return
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

func (r *StorageReconciler) runLogged(ctx context.Context) {
	start := time.Now()
	rep, err := r.RunOnce(ctx)
	if err != nil {
		logger.Error("storage reconcile failed", "component", "reconciler", "error", err)
		return
	}
	if rep.Skipped {
		logger.Debug("storage reconcile skipped, another instance holds the lock", "component", "reconciler")
		return
	}
	logger.Info("storage reconcile finished",
		"component", "reconciler",
		"staging_deleted", rep.StagingDeleted,
		"orphans_deleted", rep.OrphansDeleted,
		"missing_files", rep.MissingFiles,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
}

// RunOnce performs a single sweep if this instance wins the lock.
func (r *StorageReconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	acquired, err := r.lock.Acquire(ctx)
	if err != nil {
		return rep, err
	}
	if !acquired {
		rep.Skipped = true
		return rep, nil
	}
	defer func() {
		if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("storage reconciler: release lock", "component", "reconciler", "error", err)
		}
	}()

	cutoff := r.now().Add(-r.grace)

	staging, err := r.store.List(ctx, objectstore.StagingPrefix)
	if err != nil {
		return rep, err
	}
	for _, obj := range staging {
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if err := r.store.Delete(ctx, obj.Key); err != nil {
			logger.Warn("storage reconciler: delete staging object", "component", "reconciler", "key", obj.Key, "error", err)
			continue
		}
		rep.StagingDeleted++
	}

	final, err := r.store.List(ctx, objectstore.FinalPrefix)
	if err != nil {
		return rep, err
	}
	for _, obj := range final {
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		retained, err := r.jobs.KeyRetained(ctx, obj.Key)
		if err != nil {
			return rep, err
		}
		if retained {
			continue
		}
		if err := r.store.Delete(ctx, obj.Key); err != nil {
			logger.Warn("storage reconciler: delete orphan", "component", "reconciler", "key", obj.Key, "error", err)
			continue
		}
		rep.OrphansDeleted++
	}

	jobs, err := r.jobs.RetainedJobs(ctx)
	if err != nil {
		return rep, err
	}
	for _, job := range jobs {
		key := *job.FileObjectKey
		if !strings.HasPrefix(key, objectstore.FinalPrefix) {
			continue
		}
		ok, err := r.store.Exists(ctx, key)
		if err != nil {
			return rep, err
		}
		if !ok {
			rep.MissingFiles++
			logger.Warn("import job file missing from object store",
				"component", "reconciler",
				"job_id", job.ID,
				"key", key,
			)
		}
	}
	return rep, nil
}
