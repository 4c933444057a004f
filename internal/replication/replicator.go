package replication

import (
	"context"
	"errors"
	"sync"
	"time"

	"bizledger/internal/config"
	"bizledger/internal/metrics"
	"bizledger/internal/model"
	"bizledger/internal/repository"

	"go.uber.org/zap"
)

// Actor is recorded in the audit trail for imports driven by replication.
const Actor = "replication"

// Store is the local side of replication.
type Store interface {
	Export(ctx context.Context) (*model.Snapshot, error)
	Import(ctx context.Context, actor string, snap *model.Snapshot, expectedRevision int64) (int64, error)
	State(ctx context.Context) (*model.SyncState, error)
	MarkReplicated(ctx context.Context, revision int64) error
}

type Options struct {
	Debounce    time.Duration
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	// RetryAfter is how long to wait before trying again once every attempt failed.
	RetryAfter time.Duration
}

func OptionsFromConfig(cfg config.ReplicationConfig) Options {
	return Options{
		Debounce:    cfg.Debounce,
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
	}
}

func (o Options) withDefaults() Options {
	if o.Debounce < 0 {
		o.Debounce = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 5
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.RetryAfter <= 0 {
		o.RetryAfter = o.Backoff << uint(o.MaxAttempts)
	}
	return o
}

// Health is the observable state of the outbound replication path.
type Health struct {
	Enabled             bool       `json:"enabled"`
	Healthy             bool       `json:"healthy"`
	LastError           string     `json:"last_error,omitempty"`
	LastErrorAt         *time.Time `json:"last_error_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	PendingRevision     int64      `json:"pending_revision"`
	ReplicatedRevision  int64      `json:"replicated_revision"`
}

// Replicator pushes the local snapshot to the remote after commits. Commits
// only signal it; the push happens on its own goroutine, debounced, with a
// per-attempt timeout and bounded retries.
type Replicator struct {
	remote  Remote
	store   Store
	opts    Options
	metrics *metrics.Metrics
	log     *zap.Logger

	notify chan struct{}

	mu     sync.Mutex
	health Health
}

func NewReplicator(remote Remote, store Store, opts Options, m *metrics.Metrics, log *zap.Logger) *Replicator {
	return &Replicator{
		remote:  remote,
		store:   store,
		opts:    opts.withDefaults(),
		metrics: m,
		log:     log.Named("replication"),
		notify:  make(chan struct{}, 1),
		health:  Health{Enabled: remote != nil, Healthy: true},
	}
}

// Enabled reports whether a remote authority is configured.
func (r *Replicator) Enabled() bool {
	return r.remote != nil
}

// Hook is registered on the transaction manager.
func (r *Replicator) Hook() repository.CommitHook {
	return func(_ context.Context, revision int64) {
		r.Notify(revision)
	}
}

// Notify records that revision is committed locally. It never blocks;
// bursts of notifications coalesce into one push.
func (r *Replicator) Notify(revision int64) {
	if !r.Enabled() {
		return
	}
	r.mu.Lock()
	if revision > r.health.PendingRevision {
		r.health.PendingRevision = revision
	}
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Run processes notifications until ctx is cancelled.
func (r *Replicator) Run(ctx context.Context) {
	if !r.Enabled() {
		return
	}
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.notify:
		case <-retry:
		}
		retry = nil

		if !r.debounce(ctx) {
			return
		}
		if err := r.Push(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Warn("replication gave up, will retry later",
				zap.Error(err),
				zap.Duration("retry_after", r.opts.RetryAfter),
			)
			retry = time.After(r.opts.RetryAfter)
		}
	}
}

// debounce waits until no notification arrived for the debounce window.
func (r *Replicator) debounce(ctx context.Context) bool {
	if r.opts.Debounce == 0 {
		return true
	}
	timer := time.NewTimer(r.opts.Debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-r.notify:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(r.opts.Debounce)
		case <-timer.C:
			return true
		}
	}
}

// Push sends the current snapshot, retrying with exponential backoff.
func (r *Replicator) Push(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}
	var err error
	backoff := r.opts.Backoff
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if err = r.pushOnce(ctx); err == nil {
			return nil
		}
		r.recordFailure(err)
		r.log.Warn("replication attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.opts.MaxAttempts),
			zap.Error(err),
		)
		if attempt == r.opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func (r *Replicator) pushOnce(ctx context.Context) error {
	attemptCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	snap, err := r.store.Export(attemptCtx)
	if err != nil {
		return err
	}
	if err := r.remote.Replace(attemptCtx, snap); err != nil {
		return err
	}
	if err := r.store.MarkReplicated(attemptCtx, snap.Revision); err != nil {
		return err
	}
	r.recordSuccess(snap.Revision)
	return nil
}

// Pull imports the remote snapshot over the local state. It returns false
// when there is nothing to pull.
func (r *Replicator) Pull(ctx context.Context) (bool, error) {
	if !r.Enabled() {
		return false, nil
	}
	snap, err := r.fetch(ctx, func(c context.Context) (*model.Snapshot, error) { return r.remote.Fetch(c) })
	if errors.Is(err, ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := r.importSnapshot(repository.Quiet(ctx), snap); err != nil {
		return false, err
	}
	r.log.Info("pulled snapshot from remote", zap.Int64("remote_revision", snap.Revision))
	return true, nil
}

// PullIfUnseeded restores a fresh local ledger from the remote at startup.
func (r *Replicator) PullIfUnseeded(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}
	state, err := r.store.State(ctx)
	if err != nil {
		return err
	}
	if state.Seeded {
		return nil
	}
	_, err = r.Pull(ctx)
	return err
}

func (r *Replicator) Backup(ctx context.Context, name string) error {
	if !r.Enabled() {
		return ErrRemoteNotConfigured
	}
	snap, err := r.store.Export(ctx)
	if err != nil {
		return err
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	if err := r.remote.ReplaceBackup(attemptCtx, name, snap); err != nil {
		return err
	}
	r.log.Info("backup stored", zap.String("name", name), zap.Int64("revision", snap.Revision))
	return nil
}

// Restore replaces local state with a named backup. The result is pushed
// as the new remote snapshot like any other commit.
func (r *Replicator) Restore(ctx context.Context, name string) error {
	if !r.Enabled() {
		return ErrRemoteNotConfigured
	}
	snap, err := r.fetch(ctx, func(c context.Context) (*model.Snapshot, error) { return r.remote.FetchBackup(c, name) })
	if err != nil {
		return err
	}
	state, err := r.store.State(ctx)
	if err != nil {
		return err
	}
	if _, err := r.store.Import(ctx, Actor, snap, state.Revision); err != nil {
		return err
	}
	r.log.Info("backup restored", zap.String("name", name))
	return nil
}

func (r *Replicator) fetch(ctx context.Context, get func(context.Context) (*model.Snapshot, error)) (*model.Snapshot, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return get(attemptCtx)
}

// importSnapshot applies a snapshot the remote already holds, so the produced
// revision counts as replicated.
func (r *Replicator) importSnapshot(ctx context.Context, snap *model.Snapshot) error {
	state, err := r.store.State(ctx)
	if err != nil {
		return err
	}
	revision, err := r.store.Import(ctx, Actor, snap, state.Revision)
	if err != nil {
		return err
	}
	if err := r.store.MarkReplicated(ctx, revision); err != nil {
		return err
	}
	r.recordSuccess(revision)
	return nil
}

// Health returns a copy of the current replication health.
func (r *Replicator) Health(ctx context.Context) Health {
	r.mu.Lock()
	h := r.health
	r.mu.Unlock()

	if state, err := r.store.State(ctx); err == nil {
		h.ReplicatedRevision = state.ReplicatedRevision
		if state.Revision > h.PendingRevision {
			h.PendingRevision = state.Revision
		}
	}
	return h
}

func (r *Replicator) recordSuccess(revision int64) {
	now := time.Now().UTC()
	r.mu.Lock()
	r.health.Healthy = true
	r.health.LastSuccessAt = &now
	r.health.ConsecutiveFailures = 0
	if revision > r.health.ReplicatedRevision {
		r.health.ReplicatedRevision = revision
	}
	lag := r.health.PendingRevision - r.health.ReplicatedRevision
	r.mu.Unlock()

	if lag < 0 {
		lag = 0
	}
	r.metrics.ObserveReplication(true, lag)
}

func (r *Replicator) recordFailure(err error) {
	now := time.Now().UTC()
	r.mu.Lock()
	r.health.Healthy = false
	r.health.LastError = err.Error()
	r.health.LastErrorAt = &now
	r.health.ConsecutiveFailures++
	lag := r.health.PendingRevision - r.health.ReplicatedRevision
	r.mu.Unlock()

	r.metrics.ObserveReplication(false, lag)
}
