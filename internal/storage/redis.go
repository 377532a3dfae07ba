package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"antrian-klinik/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss means the key is not stored.
var ErrCacheMiss = errors.New("cache miss")

// KVStore is the slice of Redis the snapshot store needs; tests swap in a
// map-backed fake.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

/*
|--------------------------------------------------------------------------
| Snapshot Store
|--------------------------------------------------------------------------
| Key: queue:snapshot:{specialist}:{day}:{department}
*/

type SnapshotStore struct {
	kv  KVStore
	ttl time.Duration
}

func NewSnapshotStore(kv KVStore, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{kv: kv, ttl: ttl}
}

func SnapshotKey(key models.QueueKey) string {
	return fmt.Sprintf("queue:snapshot:%s:%s:%s", key.SpecialistID, key.Day, key.Department)
}

func (s *SnapshotStore) Load(ctx context.Context, key models.QueueKey) (models.Snapshot, bool, error) {
	raw, err := s.kv.Get(ctx, SnapshotKey(key))
	if errors.Is(err, ErrCacheMiss) {
		return models.Snapshot{}, false, nil
	}
	if err != nil {
		return models.Snapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return models.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Key != key {
		return models.Snapshot{}, false, fmt.Errorf("snapshot key mismatch: stored %s", snap.Key)
	}
	return snap, true, nil
}

func (s *SnapshotStore) Save(ctx context.Context, snap models.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, SnapshotKey(snap.Key), string(raw), s.ttl); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}
