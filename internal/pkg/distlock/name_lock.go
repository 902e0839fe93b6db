package distlock

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/txn"
)

// =============================================================================
// Transaction-scoped name lock
// =============================================================================
// pg_advisory_xact_lock blocks until the key is free and is released by
// PostgreSQL when the owning transaction commits or rolls back. There is no
// unlock call. Holders of different names never wait on each other, up to
// 64-bit hash collisions.

const nameLockNamespace = "person-name:"

// NameLocker serializes read-decide-write sequences that depend on a name.
type NameLocker struct{}

// NewNameLocker creates a transaction-scoped advisory name locker.
func NewNameLocker() *NameLocker {
	return &NameLocker{}
}

// LockName blocks until the transaction in ctx holds the lock for name.
// It returns txn.ErrNoTx when ctx carries no database transaction.
func (l *NameLocker) LockName(ctx context.Context, name string) error {
	tx, err := txn.Tx(ctx)
	if err != nil {
		return fmt.Errorf("lock name %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", NameKey(name)); err != nil {
		return fmt.Errorf("lock name %q: %w", name, err)
	}
	return nil
}

// NameKey maps a name to its advisory lock key. Names equal after
// case-folding and trimming share a key.
func NameKey(name string) int64 {
	return lockID(nameLockNamespace + domain.NormalizeName(name))
}

func lockID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}
