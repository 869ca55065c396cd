package mutex

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// RedisManager is the fast-path Manager for deployments that would
// rather not put lease churn on Postgres, using SetNX for acquisition
// and a compare-and-delete Lua script on release (value must match holder
// to avoid releasing a lease that has since rolled over to a new
// holder after expiry).
type RedisManager struct {
	client *redis.Client
}

func NewRedisManager(client *redis.Client) *RedisManager {
	return &RedisManager{client: client}
}

func lockRedisKey(key string) string { return "execcore:mutex:" + key }

func (m *RedisManager) Acquire(ctx context.Context, keys []string, holderID string, ttl time.Duration, deadline time.Time) ([]string, error) {
	sorted := SortKeys(keys)
	acquired := make([]string, 0, len(sorted))

	for _, key := range sorted {
		if err := m.acquireOne(ctx, key, holderID, ttl, deadline); err != nil {
			_ = m.Release(ctx, acquired, holderID)
			return nil, err
		}
		acquired = append(acquired, key)
	}
	return acquired, nil
}

func (m *RedisManager) acquireOne(ctx context.Context, key, holderID string, ttl time.Duration, deadline time.Time) error {
	backoff := 25 * time.Millisecond
	for {
		ok, err := m.client.SetNX(ctx, lockRedisKey(key), holderID, ttl).Result()
		if err != nil {
			return apperr.Wrap(err, apperr.KindTransient, "redis mutex acquire failed")
		}
		if ok {
			return nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return apperr.Newf(apperr.KindConflict, "mutex %q not available before deadline", key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 2*time.Second {
			backoff = 2 * time.Second
		}
	}
}

// releaseScript deletes the key only if it still belongs to holderID, so
// a caller never releases a lease another holder already re-acquired
// after expiry.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

func (m *RedisManager) Release(ctx context.Context, keys []string, holderID string) error {
	var firstErr error
	for _, key := range keys {
		err := m.client.Eval(ctx, releaseScript, []string{lockRedisKey(key)}, holderID).Err()
		if err != nil && firstErr == nil {
			firstErr = apperr.Wrap(err, apperr.KindTransient, "redis mutex release failed")
		}
	}
	return firstErr
}

func (m *RedisManager) Heartbeat(ctx context.Context, keys []string, holderID string, ttl time.Duration) error {
	for _, key := range keys {
		extended, err := m.client.Expire(ctx, lockRedisKey(key), ttl).Result()
		if err != nil {
			return apperr.Wrap(err, apperr.KindTransient, "redis mutex heartbeat failed")
		}
		if !extended {
			return apperr.Newf(apperr.KindConflict, "mutex %q lease lost before heartbeat", key)
		}
	}
	return nil
}
