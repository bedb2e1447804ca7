package undo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/timmy/pricebook/internal/domain"
)

// RedisConfig holds connection settings for RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps windows in Redis with a key TTL, so they are shared by
// every API replica and consumed with GETDEL.
type RedisStore struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
// Parameters:
//   - cfg: connection settings.
// Returns:
//   - *RedisStore: connected store.
//   - error: non-nil if the server is unreachable.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreFromClient(rdb, cfg.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *goredis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Open implements Store.
func (s *RedisStore) Open(ctx context.Context, key string, snap Snapshot, ttl time.Duration) error {
	snap.ExpiresAt = time.Now().Add(ttl)
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode undo snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to open undo window: %w", err)
	}
	return nil
}

// Consume implements Store.
func (s *RedisStore) Consume(ctx context.Context, key string) (*Snapshot, error) {
	return s.decode(s.rdb.GetDel(ctx, s.prefix+key).Bytes())
}

// Peek implements Store.
func (s *RedisStore) Peek(ctx context.Context, key string) (*Snapshot, error) {
	return s.decode(s.rdb.Get(ctx, s.prefix+key).Bytes())
}

func (s *RedisStore) decode(raw []byte, err error) (*Snapshot, error) {
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrUndoWindowClosed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read undo window: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode undo snapshot: %w", err)
	}
	return &snap, nil
}
