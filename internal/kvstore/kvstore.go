// Package kvstore is a thin, typed abstraction over the shared store —
// hash records, TTL'd strings, set membership, key-pattern scans — that
// the recovery and DMS logic packages are built against.
package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/logx"
)

// Store is the full set of atomicity primitives the two services rely on.
type Store interface {
	// HSet writes/overwrites a hash record.
	HSet(ctx context.Context, key string, fields map[string]string) error
	// HGetAll reads a hash record; ok is false when the key does not exist.
	HGetAll(ctx context.Context, key string) (map[string]string, bool, error)
	// HIncrBy atomically bumps an integer hash field.
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
	// Expire sets/refreshes a key's TTL.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Del removes one or more keys; missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
	// SetNX writes a TTL'd string only if the key is absent — the
	// set-if-not-exists primitive that makes "approve at most once"
	// enforceable without a separate lock.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Set unconditionally writes a TTL'd string (ttl<=0 means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get reads a string; ok is false when the key does not exist.
	Get(ctx context.Context, key string) (string, bool, error)
	// SAdd adds members to a set.
	SAdd(ctx context.Context, key string, members ...string) error
	// SRem removes members from a set.
	SRem(ctx context.Context, key string, members ...string) error
	// SMembers returns all members of a set.
	SMembers(ctx context.Context, key string) ([]string, error)
	// ScanKeys iterates the keyspace for a glob pattern, e.g.
	// "recovery:share:<guardian>:*".
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

// RedisStore backs Store with go-redis/v9.
type RedisStore struct {
	client *redis.Client
}

// New dials Redis: build options, ping with a bounded context, fail fast
// on connect error.
func New(host string, port int, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logx.Errorf("failed to connect to kv store: %v", err)
		return nil, fmt.Errorf("failed to connect to kv store: %w", err)
	}

	logx.Info("connected to kv store")
	return &RedisStore{client: rdb}, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]string, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.client.HSet(ctx, key, args).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, bool, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(m) == 0 {
		return nil, false, nil
	}
	return m, true, nil
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	v, err := s.client.HIncrBy(ctx, key, field, n).Result()
	if err != nil {
		return 0, fmt.Errorf("hincrby %s.%s: %w", key, field, err)
	}
	return v, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del %v: %w", keys, err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("srem %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return members, nil
}

func (s *RedisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
