package embcache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/semdex/codec"
)

// RedisOptions contains configuration options for the Redis cache.
type RedisOptions struct {
	// Namespace prefixes every key so multiple caches can share a database.
	Namespace string

	// TTL is the entry lifetime. Zero means entries never expire.
	TTL time.Duration
}

// DefaultRedisOptions contains the default configuration options for the
// Redis cache.
var DefaultRedisOptions = RedisOptions{
	Namespace: "semdex:emb:",
	TTL:       0,
}

// Compile-time check to ensure Redis satisfies the cache interface.
var _ Cache = (*Redis)(nil)

// Redis is a cache backed by a Redis server. Vectors and metadata are stored
// under separate namespaced keys; hit and miss counters are process-local.
type Redis struct {
	client redis.UniversalClient
	opts   RedisOptions
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedis creates a Redis cache on top of an existing client. The cache
// does not own the client; Close leaves it open.
func NewRedis(client redis.UniversalClient, optFns ...func(o *RedisOptions)) *Redis {
	opts := DefaultRedisOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Redis{client: client, opts: opts}
}

func (r *Redis) vectorKey(key string) string { return r.opts.Namespace + "v:" + key }
func (r *Redis) metaKey(key string) string   { return r.opts.Namespace + "m:" + key }

// Get returns the cached vector for key.
func (r *Redis) Get(ctx context.Context, key string) ([]float32, bool, error) {
	buf, err := r.client.Get(ctx, r.vectorKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			r.misses.Add(1)
			return nil, false, nil
		}
		return nil, false, err
	}

	vec, err := decodeVector(buf)
	if err != nil {
		// Drop the broken entry so it does not fail again next time.
		_ = r.client.Del(ctx, r.vectorKey(key), r.metaKey(key)).Err()
		r.misses.Add(1)
		return nil, false, nil
	}

	r.hits.Add(1)

	return vec, true, nil
}

// Put stores a vector under key.
func (r *Redis) Put(ctx context.Context, key string, vec []float32, meta EntryMeta) error {
	encoded, err := codec.Default.Marshal(meta)
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.vectorKey(key), encodeVector(vec), r.opts.TTL)
	pipe.Set(ctx, r.metaKey(key), encoded, r.opts.TTL)

	_, err = pipe.Exec(ctx)

	return err
}

// Meta returns the metadata for key, if present.
func (r *Redis) Meta(ctx context.Context, key string) (EntryMeta, bool, error) {
	raw, err := r.client.Get(ctx, r.metaKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return EntryMeta{}, false, nil
		}
		return EntryMeta{}, false, err
	}

	var meta EntryMeta
	if err := codec.Default.Unmarshal(raw, &meta); err != nil {
		return EntryMeta{}, false, err
	}

	return meta, true, nil
}

// Stats scans the vector namespace to report entry count and size.
func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Hits:   r.hits.Load(),
		Misses: r.misses.Load(),
	}

	iter := r.client.Scan(ctx, 0, r.opts.Namespace+"v:*", 0).Iterator()
	for iter.Next(ctx) {
		stats.Entries++

		if size, err := r.client.StrLen(ctx, iter.Val()).Result(); err == nil {
			stats.SizeBytes += size
		}
	}

	if err := iter.Err(); err != nil {
		return Stats{}, err
	}

	return stats, nil
}

// Clear removes all entries in this cache's namespace.
func (r *Redis) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.opts.Namespace+"*", 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	return r.client.Del(ctx, keys...).Err()
}

// Close is a no-op; the underlying client is owned by the caller.
func (r *Redis) Close() error { return nil }
