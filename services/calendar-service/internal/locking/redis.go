package locking

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker stores leases as SET NX PX keys so every replica sees the same lease.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLocker(rdb *redis.Client, prefix string) *RedisLocker {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "lock"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

func (r *RedisLocker) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, r.key(key), owner, ttl).Result()
}

// Release deletes the key only while owner still holds it.
func (r *RedisLocker) Release(ctx context.Context, key, owner string) error {
	return releaseScript.Run(ctx, r.rdb, []string{r.key(key)}, owner).Err()
}

func (r *RedisLocker) key(k string) string {
	return r.prefix + ":" + k
}
