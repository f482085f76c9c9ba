package sessionstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix    = "sessionstore:"
	defaultRedisReapBatch = 500
)

// RedisConfig holds configuration for the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // Defaults to "sessionstore:".
	// ReapBatch is how many expired sessions DeleteExpired removes per
	// round trip. Defaults to 500.
	ReapBatch int
}

// RedisBackend keeps each session in a hash (payload, expires_at) and an
// expiry index in a sorted set scored by expiry in Unix milliseconds. Keys
// carry no native TTL: reclamation happens through DeleteExpired.
type RedisBackend struct {
	client    redis.UniversalClient
	prefix    string
	reapBatch int
}

// Session hashes are written only when their existence matches the
// operation, so a racing writer elsewhere cannot resurrect a deleted record.
var (
	redisInsertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'payload', ARGV[1], 'expires_at', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1`)

	redisReplaceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], 'payload', ARGV[1], 'expires_at', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1`)

	redisTouchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], 'expires_at', ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
return 1`)

	redisDeleteScript = redis.NewScript(`
local n = redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return n`)
)

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	backend := NewRedisBackendFromClient(client, cfg.Prefix)
	if cfg.ReapBatch > 0 {
		backend.reapBatch = cfg.ReapBatch
	}
	return backend, nil
}

// NewRedisBackendFromClient wraps an existing client. The backend closes
// the client in Close.
func NewRedisBackendFromClient(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix, reapBatch: defaultRedisReapBatch}
}

func (r *RedisBackend) key(id string) string {
	return r.prefix + "session:" + id
}

func (r *RedisBackend) indexKey() string {
	return r.prefix + "expiry"
}

func (r *RedisBackend) Insert(ctx context.Context, rec Record) error {
	ok, err := redisInsertScript.Run(ctx, r.client,
		[]string{r.key(rec.ID), r.indexKey()},
		rec.Payload, millis(rec.ExpiresAt), rec.ID,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	if ok == 0 {
		return ErrKeyExists
	}
	return nil
}

func (r *RedisBackend) Get(ctx context.Context, id string) (*Record, error) {
	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec := &Record{ID: id, Payload: []byte(fields["payload"])}
	if raw, ok := fields["expires_at"]; ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse session expiry %q: %w", raw, err)
		}
		rec.ExpiresAt = time.UnixMilli(ms).UTC()
	}
	return rec, nil
}

func (r *RedisBackend) Replace(ctx context.Context, rec Record) (bool, error) {
	ok, err := redisReplaceScript.Run(ctx, r.client,
		[]string{r.key(rec.ID), r.indexKey()},
		rec.Payload, millis(rec.ExpiresAt), rec.ID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to update in redis: %w", err)
	}
	return ok == 1, nil
}

func (r *RedisBackend) Touch(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	ok, err := redisTouchScript.Run(ctx, r.client,
		[]string{r.key(id), r.indexKey()},
		millis(expiresAt), id,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to update ttl in redis: %w", err)
	}
	return ok == 1, nil
}

func (r *RedisBackend) Delete(ctx context.Context, id string) (bool, error) {
	n, err := redisDeleteScript.Run(ctx, r.client,
		[]string{r.key(id), r.indexKey()},
		id,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to delete from redis: %w", err)
	}
	return n == 1, nil
}

func (r *RedisBackend) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	// Exclusive bound: records expiring exactly at before survive.
	maxScore := "(" + strconv.FormatInt(before.UnixMilli(), 10)

	var total int64
	for {
		ids, err := r.client.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   maxScore,
			Count: int64(r.reapBatch),
		}).Result()
		if err != nil {
			return total, fmt.Errorf("failed to scan expired sessions: %w", err)
		}
		if len(ids) == 0 {
			return total, nil
		}

		n, err := r.deleteBatch(ctx, ids)
		if err != nil {
			return total, err
		}
		total += n
		if len(ids) < r.reapBatch {
			return total, nil
		}
	}
}

// deleteBatch removes the session hashes and their index entries. Index
// entries go even when the hash is already gone, so the scan always advances.
func (r *RedisBackend) deleteBatch(ctx context.Context, ids []string) (int64, error) {
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
		members[i] = id
	}

	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, r.indexKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	return del.Val(), nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
