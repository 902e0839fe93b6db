// Package txn carries a database transaction and its completion hooks in a
// context.Context.
//
// Repositories obtain their query handle with Conn, so the same repository
// method runs inside or outside a transaction. Work that must only happen
// once the transaction is durable (notifications, cache population) is queued
// with AfterCommit and is dropped when the transaction rolls back.
package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/ignite/person-registry/internal/pkg/logger"
)

// ErrNoTx is returned by operations that require an active transaction.
var ErrNoTx = errors.New("no transaction found in context")

type scopeKey struct{}

// DBTX is the query surface shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Scope is the per-transaction hook registry. A Scope without a *sql.Tx is
// valid and is used by runners that are not backed by database/sql.
type Scope struct {
	tx *sql.Tx

	mu          sync.Mutex
	done        bool
	afterCommit []func(context.Context)
	onEnd       []func(committed bool)
}

// NewScope creates a scope for tx. tx may be nil.
func NewScope(tx *sql.Tx) *Scope {
	return &Scope{tx: tx}
}

// WithScope binds s to ctx.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the scope bound to ctx, if any.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}

// Active reports whether ctx carries an unfinished transaction scope.
func Active(ctx context.Context) bool {
	s, ok := FromContext(ctx)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.done
}

// Tx returns the transaction bound to ctx.
func Tx(ctx context.Context) (*sql.Tx, error) {
	s, ok := FromContext(ctx)
	if !ok || s.tx == nil {
		return nil, ErrNoTx
	}
	return s.tx, nil
}

// Conn returns the transaction bound to ctx, or db when there is none.
func Conn(ctx context.Context, db *sql.DB) DBTX {
	if tx, err := Tx(ctx); err == nil {
		return tx
	}
	return db
}

// AfterCommit queues fn to run after the transaction in ctx commits. Without
// an active transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	if s, ok := FromContext(ctx); ok && s.queue(fn) {
		return
	}
	safeRun(func() { fn(ctx) })
}

// OnEnd queues fn to run when the transaction in ctx ends either way.
// End hooks run before after-commit hooks, last registered first.
// Without an active transaction fn runs immediately with committed=true.
func OnEnd(ctx context.Context, fn func(committed bool)) {
	if s, ok := FromContext(ctx); ok {
		s.mu.Lock()
		if !s.done {
			s.onEnd = append(s.onEnd, fn)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
	safeRun(func() { fn(true) })
}

func (s *Scope) queue(fn func(context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.afterCommit = append(s.afterCommit, fn)
	return true
}

// Commit marks the scope committed and runs the queued hooks in registration
// order with ctx, which should not carry the scope.
func (s *Scope) Commit(ctx context.Context) {
	for _, fn := range s.finish(true) {
		safeRun(func() { fn(ctx) })
	}
}

// Abort marks the scope rolled back. After-commit hooks are discarded.
func (s *Scope) Abort() {
	s.finish(false)
}

func (s *Scope) finish(committed bool) []func(context.Context) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	hooks, ends := s.afterCommit, s.onEnd
	s.afterCommit, s.onEnd = nil, nil
	s.mu.Unlock()

	for i := len(ends) - 1; i >= 0; i-- {
		fn := ends[i]
		safeRun(func() { fn(committed) })
	}
	if !committed {
		return nil
	}
	return hooks
}

func safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("transaction hook panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// Manager begins transactions on a *sql.DB.
type Manager struct {
	db *sql.DB
}

// NewManager creates a transaction manager for db.
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// DB returns the underlying pool.
func (m *Manager) DB() *sql.DB { return m.db }

// InTx runs fn in a transaction. When ctx already carries one, fn joins it
// and the outermost InTx decides the outcome.
func (m *Manager) InTx(ctx context.Context, fn func(context.Context) error) (err error) {
	if Active(ctx) {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	scope := NewScope(tx)
	txCtx := WithScope(ctx, scope)

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			scope.Abort()
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		rErr := tx.Rollback()
		scope.Abort()
		if rErr != nil && !errors.Is(rErr, sql.ErrTxDone) {
			return errors.Join(err, rErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		scope.Abort()
		return fmt.Errorf("commit transaction: %w", err)
	}
	scope.Commit(context.WithoutCancel(ctx))
	return nil
}

// Simulate runs fn inside a scope with no database transaction behind it.
// A nil error from fn commits the scope. It exists for callers that keep
// state outside database/sql (in-memory stores in tests).
func Simulate(ctx context.Context, fn func(context.Context) error) error {
	if Active(ctx) {
		return fn(ctx)
	}
	scope := NewScope(nil)
	defer scope.Abort()
	if err := fn(WithScope(ctx, scope)); err != nil {
		scope.Abort()
		return err
	}
	scope.Commit(context.WithoutCancel(ctx))
	return nil
}
