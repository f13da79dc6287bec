package guard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultLockTTL = 10 * time.Minute

// releaseScript deletes the lock only if it still holds our token, so a lock that expired
// and was taken by another instance is not released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis is a Guard shared by every process using the same Redis instance.
// Locks expire after ttl so a crashed holder cannot block a period forever.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	tokens map[Key]string
}

// NewRedis returns a Guard backed by client. ttl <= 0 uses a 10 minute expiry.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if prefix == "" {
		prefix = "nikki:guard:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
		tokens: make(map[Key]string),
	}
}

// TryBegin sets the lock key with SETNX semantics.
func (r *Redis) TryBegin(ctx context.Context, key Key) (bool, error) {
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, r.prefix+key.String(), token, r.ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	r.mu.Lock()
	r.tokens[key] = token
	r.mu.Unlock()
	return true, nil
}

// End releases key if this instance still owns it.
func (r *Redis) End(ctx context.Context, key Key) {
	r.mu.Lock()
	token, ok := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()
	if !ok {
		return
	}
	// Release even when the caller's context is already cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + key.String()}, token).Err(); err != nil {
		r.logger.Warn("guard release failed", zap.String("key", key.String()), zap.Error(err))
	}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
