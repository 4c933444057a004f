package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bizledger/internal/config"
	"bizledger/internal/model"

	redis "github.com/redis/go-redis/v9"
)

const (
	keySnapshot = "%s:snapshot"
	keyBackup   = "%s:backup:%s"
)

var (
	// ErrNoSnapshot is returned when the remote holds nothing under the key.
	ErrNoSnapshot = errors.New("remote holds no snapshot")
	// ErrRemoteNotConfigured is returned by explicit remote operations when
	// the ledger runs local-only.
	ErrRemoteNotConfigured = errors.New("no remote authority configured")
)

// Remote is the authority a local ledger replicates to.
type Remote interface {
	Fetch(ctx context.Context) (*model.Snapshot, error)
	Replace(ctx context.Context, snap *model.Snapshot) error
	FetchBackup(ctx context.Context, name string) (*model.Snapshot, error)
	ReplaceBackup(ctx context.Context, name string, snap *model.Snapshot) error
}

// RedisRemote stores whole snapshots as JSON values.
type RedisRemote struct {
	client *redis.Client
	prefix string
}

// NewRemote returns nil when no remote is configured, which callers treat
// as local-only mode.
func NewRemote(cfg config.ReplicationConfig) Remote {
	if !cfg.Enabled() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	return NewRedisRemote(client, cfg.KeyPrefix)
}

func NewRedisRemote(client *redis.Client, prefix string) *RedisRemote {
	if prefix == "" {
		prefix = "bizledger"
	}
	return &RedisRemote{client: client, prefix: prefix}
}

func (r *RedisRemote) snapshotKey() string {
	return fmt.Sprintf(keySnapshot, r.prefix)
}

func (r *RedisRemote) backupKey(name string) string {
	return fmt.Sprintf(keyBackup, r.prefix, strings.TrimSpace(name))
}

func (r *RedisRemote) Fetch(ctx context.Context) (*model.Snapshot, error) {
	return r.get(ctx, r.snapshotKey())
}

func (r *RedisRemote) Replace(ctx context.Context, snap *model.Snapshot) error {
	return r.set(ctx, r.snapshotKey(), snap)
}

func (r *RedisRemote) FetchBackup(ctx context.Context, name string) (*model.Snapshot, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("backup name is empty")
	}
	return r.get(ctx, r.backupKey(name))
}

func (r *RedisRemote) ReplaceBackup(ctx context.Context, name string, snap *model.Snapshot) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("backup name is empty")
	}
	return r.set(ctx, r.backupKey(name), snap)
}

// Ping checks that the remote is reachable.
func (r *RedisRemote) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRemote) Close() error {
	return r.client.Close()
}

func (r *RedisRemote) get(ctx context.Context, key string) (*model.Snapshot, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	return decodeSnapshot(raw)
}

func (r *RedisRemote) set(ctx context.Context, key string, snap *model.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func decodeSnapshot(raw []byte) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Counters == nil {
		snap.Counters = map[string]int64{}
	}
	return &snap, nil
}
