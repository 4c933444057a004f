package repository

import (
	"context"
	"errors"
	"sync"

	"bizledger/internal/model"

	"gorm.io/gorm"
)

type contextKey string

const (
	txKey       contextKey = "gorm_tx"
	quietKey    contextKey = "quiet_commit"
	callbackKey contextKey = "after_commit"
)

// ErrRevisionConflict is returned when a compare-and-swap on the ledger
// revision finds that another writer committed first.
var ErrRevisionConflict = errors.New("ledger revision changed since it was read")

// CommitHook runs after a mutating transaction commits, with the revision it produced.
type CommitHook func(ctx context.Context, revision int64)

// TransactionManager manages database transactions via context injection.
// Every RunInTx is a ledger mutation: writers are serialized, the ledger
// revision is bumped inside the transaction, and commit hooks fire after commit.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
	OnCommit(hook CommitHook)
}

type transactionManager struct {
	db    *gorm.DB
	mu    sync.Mutex
	hooks []CommitHook
}

func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db}
}

func (t *transactionManager) OnCommit(hook CommitHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, hook)
}

func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	// Nested calls join the outer transaction.
	if _, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return fn(ctx)
	}

	t.mu.Lock()
	var revision int64
	var callbacks []func()
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey, tx)
		txCtx = context.WithValue(txCtx, callbackKey, &callbacks)
		if err := fn(txCtx); err != nil {
			return err
		}
		var bumpErr error
		revision, bumpErr = bumpRevision(tx)
		return bumpErr
	})
	hooks := append([]CommitHook(nil), t.hooks...)
	t.mu.Unlock()

	if err != nil {
		return err
	}
	for _, fn := range callbacks {
		fn()
	}
	if quiet, _ := ctx.Value(quietKey).(bool); quiet {
		return nil
	}
	for _, hook := range hooks {
		hook(ctx, revision)
	}
	return nil
}

// AfterCommit defers fn until the transaction carried by ctx commits. It is
// dropped on rollback. Outside a transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	if callbacks, ok := ctx.Value(callbackKey).(*[]func()); ok {
		*callbacks = append(*callbacks, fn)
		return
	}
	fn()
}

// Quiet marks a context so its commit does not fire hooks. Used when
// applying state that came from the remote authority.
func Quiet(ctx context.Context) context.Context {
	return context.WithValue(ctx, quietKey, true)
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}

func bumpRevision(tx *gorm.DB) (int64, error) {
	if err := tx.Model(&model.SyncState{}).
		Where("id = ?", model.SyncStateID).
		UpdateColumn("revision", gorm.Expr("revision + ?", 1)).Error; err != nil {
		return 0, err
	}
	var state model.SyncState
	if err := tx.First(&state, "id = ?", model.SyncStateID).Error; err != nil {
		return 0, err
	}
	return state.Revision, nil
}
