package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/jdaLoan/pkg/config"
	"github.com/mcclellann/jdaLoan/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix         = "jdaloan:lock:"
	defaultRetryDelay = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript pushes the expiry of a lease we still hold ttl ms out.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Locker backed by a Redis lease, for several API replicas
// sharing one database.
type RedisLocker struct {
	client     redis.UniversalClient
	ttl        time.Duration
	retryDelay time.Duration
}

// NewRedisLocker returns a locker whose leases expire after ttl unless
// renewed. A held lease is extended every ttl/3 until released, so ttl
// bounds how long a crashed holder blocks the key, not how long an
// operation may take.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retryDelay: defaultRetryDelay}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-time.After(r.retryDelay):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The caller's context may already be cancelled by now.
			if err := releaseScript.Run(context.Background(), r.client, []string{redisKey}, token).Err(); err != nil {
				logger.Warn("failed to release lock %s: %v", key, err)
			}
		})
	}, nil
}

// keepAlive extends the lease until stop is closed or the lease is lost.
func (r *RedisLocker) keepAlive(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := refreshScript.Run(context.Background(), r.client, []string{redisKey}, token, r.ttl.Milliseconds()).Int()
			if err != nil {
				logger.Warn("failed to extend lock %s: %v", redisKey, err)
				continue
			}
			if held == 0 {
				logger.Warn("lock %s lease lost before release", redisKey)
				return
			}
		}
	}
}

// Connect opens a Redis client from cfg and pings it.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	logger.Info("Connecting to Redis at %s (db %d)", cfg.Addr, cfg.DB)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
