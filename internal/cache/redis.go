package cache

import (
	"context"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// redisEnvelope wraps the blob with freshness metadata. Redis retention runs
// longer than the freshness TTL so stale reads stay possible for the
// stale-while-revalidate fallback.
type redisEnvelope struct {
	Data       []byte    `json:"data"`
	StoredAt   time.Time `json:"stored_at"`
	TTLSeconds int       `json:"ttl_seconds"`
}

// Redis is the shared-process Cache backed by go-redis.
type Redis struct {
	rdb        *redis.Client
	prefix     string
	staleGrace time.Duration

	hits, misses, evictions, sets uint64
}

func NewRedis(addr, password string, db int) *Redis {
	return &Redis{
		rdb:        redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		prefix:     "mls:",
		staleGrace: time.Hour,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	env, ok := r.load(ctx, key)
	if !ok || time.Now().After(env.StoredAt.Add(time.Duration(env.TTLSeconds)*time.Second)) {
		atomic.AddUint64(&r.misses, 1)
		return nil, false
	}
	atomic.AddUint64(&r.hits, 1)
	return env.Data, true
}

func (r *Redis) GetStale(ctx context.Context, key string) ([]byte, bool, bool) {
	env, ok := r.load(ctx, key)
	if !ok {
		return nil, false, false
	}
	fresh := !time.Now().After(env.StoredAt.Add(time.Duration(env.TTLSeconds) * time.Second))
	return env.Data, true, fresh
}

func (r *Redis) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	env := redisEnvelope{Data: data, StoredAt: time.Now(), TTLSeconds: int(ttl.Seconds())}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	atomic.AddUint64(&r.sets, 1)
	return r.rdb.Set(ctx, r.prefix+key, string(b), ttl+r.staleGrace).Err()
}

func (r *Redis) Invalidate(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}

// Cleanup is a no-op for Redis; retention expiry is server-side.
func (r *Redis) Cleanup(context.Context) int { return 0 }

// SetNX takes a short-lived lock, used to collapse concurrent fills of the
// same key.
func (r *Redis) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, r.prefix+"lock:"+key, "1", ttl).Result()
}

func (r *Redis) Stats(ctx context.Context) Stats {
	entries := 0
	if n, err := r.rdb.DBSize(ctx).Result(); err == nil {
		entries = int(n)
	}
	return Stats{
		Entries:   entries,
		Hits:      atomic.LoadUint64(&r.hits),
		Misses:    atomic.LoadUint64(&r.misses),
		Evictions: atomic.LoadUint64(&r.evictions),
		Sets:      atomic.LoadUint64(&r.sets),
	}
}

func (r *Redis) load(ctx context.Context, key string) (redisEnvelope, bool) {
	var env redisEnvelope
	val, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if err != nil || val == "" {
		return env, false
	}
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return env, false
	}
	return env, true
}
