// Package redis implements the storage.KV contract on top of a shared
// redis instance. Every logical key is namespaced under an application
// prefix so several deployments can share one database.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/gm_engine/internal/app/storage"
)

// DefaultPrefix is the namespace applied to all keys.
const DefaultPrefix = "gm:"

const scanBatch = 200

// compareAndSet implements an atomic conditional write. ARGV[1] signals
// whether a previous value is expected ("1") or the key must be absent
// ("0"); ARGV[2] is the expected value, ARGV[3] the replacement.
var compareAndSet = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if ARGV[1] == '0' then
  if cur then return 0 end
else
  if not cur or cur ~= ARGV[2] then return 0 end
end
redis.call('SET', KEYS[1], ARGV[3])
return 1
`)

// Config configures the adapter.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // defaults to DefaultPrefix
}

// Store is a redis-backed key-value store.
type Store struct {
	client *redis.Client
	prefix string
}

var _ storage.KV = (*Store)(nil)

// New connects to redis and verifies the connection with a ping.
func New(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(logical string) string {
	return s.prefix + logical
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) CompareAndSet(ctx context.Context, key string, expected, next []byte) (bool, error) {
	hasExpected := "1"
	if expected == nil {
		hasExpected = "0"
	}
	applied, err := compareAndSet.Run(ctx, s.client, []string{s.key(key)}, hasExpected, string(expected), string(next)).Int()
	if err != nil {
		return false, fmt.Errorf("redis cas %s: %w", key, err)
	}
	return applied == 1, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.key(key)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.key(pattern), scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
		}
		for _, key := range batch {
			keys = append(keys, strings.TrimPrefix(key, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			// SCAN can return a key more than once during a rehash.
			return storage.DedupeKeys(keys), nil
		}
	}
}

func (s *Store) SortedSetIncrBy(ctx context.Context, key, member string, delta float64) error {
	if err := s.client.ZIncrBy(ctx, s.key(key), delta, member).Err(); err != nil {
		return fmt.Errorf("redis zincrby %s: %w", key, err)
	}
	return nil
}

func (s *Store) SortedSetSet(ctx context.Context, key, member string, score float64) error {
	if err := s.client.ZAdd(ctx, s.key(key), &redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("redis zadd %s: %w", key, err)
	}
	return nil
}

func (s *Store) SortedSetRevRange(ctx context.Context, key string, offset, limit int64) ([]storage.ScoredMember, error) {
	stop := int64(-1)
	if limit >= 0 {
		stop = offset + limit - 1
	}
	entries, err := s.client.ZRevRangeWithScores(ctx, s.key(key), offset, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange %s: %w", key, err)
	}
	members := make([]storage.ScoredMember, 0, len(entries))
	for _, entry := range entries {
		member, _ := entry.Member.(string)
		members = append(members, storage.ScoredMember{Member: member, Score: entry.Score})
	}
	return members, nil
}

func (s *Store) SetAdd(ctx context.Context, key, member string) error {
	if err := s.client.SAdd(ctx, s.key(key), member).Err(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", key, err)
	}
	return nil
}

func (s *Store) SetCount(ctx context.Context, key string) (int64, error) {
	count, err := s.client.SCard(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard %s: %w", key, err)
	}
	return count, nil
}
