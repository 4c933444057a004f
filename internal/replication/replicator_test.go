package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bizledger/internal/clock"
	"bizledger/internal/database"
	"bizledger/internal/model"
	"bizledger/internal/repository"
	"bizledger/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryRemote struct {
	mu       sync.Mutex
	snapshot []byte
	backups  map[string][]byte
	replaces int
	failNext int
}

func newMemoryRemote() *memoryRemote {
	return &memoryRemote{backups: map[string][]byte{}}
}

func (m *memoryRemote) fail(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

func (m *memoryRemote) replaceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaces
}

func (m *memoryRemote) stored() *model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil
	}
	snap, _ := decodeSnapshot(m.snapshot)
	return snap
}

func (m *memoryRemote) Fetch(ctx context.Context) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil, ErrNoSnapshot
	}
	return decodeSnapshot(m.snapshot)
}

func (m *memoryRemote) Replace(ctx context.Context, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return errors.New("connection refused")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.snapshot = raw
	m.replaces++
	return nil
}

func (m *memoryRemote) FetchBackup(ctx context.Context, name string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.backups[name]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return decodeSnapshot(raw)
}

func (m *memoryRemote) ReplaceBackup(ctx context.Context, name string, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.backups[name] = raw
	return nil
}

type ledger struct {
	tx        repository.TransactionManager
	snapshots service.SnapshotService
	catalog   service.CatalogService
}

func newLedger(t *testing.T) *ledger {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.NewConnection(database.DriverSQLite, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	tx := repository.NewTransactionManager(db)
	depotRepo := repository.NewDepotRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	clk := clock.NewFakeClock(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))
	sequence := service.NewSequenceService(repository.NewCounterRepository(db), tx, clk)

	return &ledger{
		tx: tx,
		snapshots: service.NewSnapshotService(repository.NewSnapshotRepository(db), depotRepo, auditRepo, tx,
			model.Company{Name: "Test Co"}, clk, zap.NewNop()),
		catalog: service.NewCatalogService(repository.NewClientRepository(db), depotRepo,
			repository.NewProductRepository(db), auditRepo, tx, sequence),
	}
}

func fastOptions() Options {
	return Options{
		Debounce:    20 * time.Millisecond,
		Timeout:     time.Second,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		RetryAfter:  time.Hour,
	}
}

func TestReplicatorPushesAfterCommit(t *testing.T) {
	l := newLedger(t)
	remote := newMemoryRemote()
	opts := fastOptions()
	opts.Debounce = 100 * time.Millisecond
	r := NewReplicator(remote, l.snapshots, opts, nil, zap.NewNop())
	l.tx.OnCommit(r.Hook())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	for i := 0; i < 5; i++ {
		_, err := l.catalog.CreateDepot(context.Background(), "tester", service.CreateDepotRequest{Name: fmt.Sprintf("Depot %d", i)})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		snap := remote.stored()
		return snap != nil && len(snap.Depots) == 5
	}, 2*time.Second, 10*time.Millisecond)

	assert.Less(t, remote.replaceCount(), 5, "rapid commits coalesce")

	h := r.Health(context.Background())
	assert.True(t, h.Enabled)
	assert.True(t, h.Healthy)
	assert.NotNil(t, h.LastSuccessAt)
	assert.Equal(t, h.PendingRevision, h.ReplicatedRevision)
}

func TestReplicatorRetriesAndSurfacesFailure(t *testing.T) {
	l := newLedger(t)
	remote := newMemoryRemote()
	r := NewReplicator(remote, l.snapshots, fastOptions(), nil, zap.NewNop())

	remote.fail(10)
	err := r.Push(context.Background())
	require.Error(t, err)

	h := r.Health(context.Background())
	assert.False(t, h.Healthy)
	assert.Equal(t, 3, h.ConsecutiveFailures)
	assert.Contains(t, h.LastError, "connection refused")
	assert.NotNil(t, h.LastErrorAt)

	// A transient failure is absorbed by the retry budget.
	remote.fail(2)
	require.NoError(t, r.Push(context.Background()))
	h = r.Health(context.Background())
	assert.True(t, h.Healthy)
	assert.Zero(t, h.ConsecutiveFailures)
}

func TestReplicatorFailureNeverBlocksMutations(t *testing.T) {
	l := newLedger(t)
	remote := newMemoryRemote()
	remote.fail(1000)
	r := NewReplicator(remote, l.snapshots, fastOptions(), nil, zap.NewNop())
	l.tx.OnCommit(r.Hook())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	for i := 0; i < 3; i++ {
		_, err := l.catalog.CreateDepot(context.Background(), "tester", service.CreateDepotRequest{Name: fmt.Sprintf("Depot %d", i)})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return r.Health(context.Background()).ConsecutiveFailures >= 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, r.Health(context.Background()).Healthy)
}

func TestReplicatorPullIntoFreshLedger(t *testing.T) {
	remote := newMemoryRemote()

	origin := newLedger(t)
	_, err := origin.catalog.CreateClient(context.Background(), "tester", service.CreateClientRequest{Name: "ACME"})
	require.NoError(t, err)
	require.NoError(t, origin.snapshots.Seed(context.Background()))
	require.NoError(t, NewReplicator(remote, origin.snapshots, fastOptions(), nil, zap.NewNop()).Push(context.Background()))
	pushes := remote.replaceCount()

	fresh := newLedger(t)
	r := NewReplicator(remote, fresh.snapshots, fastOptions(), nil, zap.NewNop())
	fresh.tx.OnCommit(r.Hook())

	require.NoError(t, r.PullIfUnseeded(context.Background()))

	clients, _, err := fresh.catalog.ListClients(context.Background(), 1, 10, "")
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "CL-00001", clients[0].Code)

	state, err := fresh.snapshots.State(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Seeded)
	assert.Equal(t, state.Revision, state.ReplicatedRevision)

	// The pulled state is not echoed back to the remote.
	assert.Zero(t, r.Health(context.Background()).PendingRevision-state.ReplicatedRevision)
	assert.Equal(t, pushes, remote.replaceCount())

	// Once seeded, startup does not pull again.
	require.NoError(t, r.PullIfUnseeded(context.Background()))
}

func TestReplicatorBackupRestore(t *testing.T) {
	l := newLedger(t)
	remote := newMemoryRemote()
	r := NewReplicator(remote, l.snapshots, fastOptions(), nil, zap.NewNop())
	ctx := context.Background()

	_, err := l.catalog.CreateDepot(ctx, "tester", service.CreateDepotRequest{Name: "North"})
	require.NoError(t, err)
	require.NoError(t, r.Backup(ctx, "before-south"))

	_, err = l.catalog.CreateDepot(ctx, "tester", service.CreateDepotRequest{Name: "South"})
	require.NoError(t, err)

	require.NoError(t, r.Restore(ctx, "before-south"))

	depots, err := l.catalog.ListDepots(ctx)
	require.NoError(t, err)
	require.Len(t, depots, 1)
	assert.Equal(t, "North", depots[0].Name)

	assert.ErrorIs(t, r.Restore(ctx, "missing"), ErrNoSnapshot)
}

func TestReplicatorWithoutRemoteIsLocalOnly(t *testing.T) {
	l := newLedger(t)
	r := NewReplicator(nil, l.snapshots, fastOptions(), nil, zap.NewNop())
	l.tx.OnCommit(r.Hook())
	ctx := context.Background()

	_, err := l.catalog.CreateDepot(ctx, "tester", service.CreateDepotRequest{Name: "North"})
	require.NoError(t, err)

	pulled, err := r.Pull(ctx)
	assert.NoError(t, err)
	assert.False(t, pulled)
	assert.NoError(t, r.Push(ctx))
	assert.NoError(t, r.PullIfUnseeded(ctx))
	assert.ErrorIs(t, r.Backup(ctx, "x"), ErrRemoteNotConfigured)
	assert.False(t, r.Health(ctx).Enabled)

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately without a remote")
	}
}

func TestRedisRemoteKeys(t *testing.T) {
	r := NewRedisRemote(nil, "")
	assert.Equal(t, "bizledger:snapshot", r.snapshotKey())
	assert.Equal(t, "bizledger:backup:nightly", r.backupKey(" nightly "))

	r = NewRedisRemote(nil, "shop")
	assert.Equal(t, "shop:snapshot", r.snapshotKey())
}

func TestDecodeSnapshot(t *testing.T) {
	snap, err := decodeSnapshot([]byte(`{"seeded":true,"revision":7}`))
	require.NoError(t, err)
	assert.True(t, snap.Seeded)
	assert.EqualValues(t, 7, snap.Revision)
	assert.NotNil(t, snap.Counters)

	_, err = decodeSnapshot([]byte(`not json`))
	assert.Error(t, err)
}
