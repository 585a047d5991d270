package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"qrattend/internal/attendance"
)

// RedisGuard is a dedup guard shared by every API instance. Admitted
// student ids live in one set per scan session.
type RedisGuard struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisGuard creates the guard for one session.
func NewRedisGuard(client redis.Cmdable, sessionID string, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, key: guardKey(sessionID), ttl: ttl}
}

// RedisGuards returns a factory for attendance.Sessions.
func RedisGuards(client redis.Cmdable, ttl time.Duration) attendance.GuardFactory {
	return func(sessionID string) attendance.Guard {
		return NewRedisGuard(client, sessionID, ttl)
	}
}

func guardKey(sessionID string) string {
	return fmt.Sprintf("scan:%s:admitted", sessionID)
}

// Admit adds studentID to the session set. SADD reports whether the member
// was new, which makes the check-and-set atomic.
func (g *RedisGuard) Admit(ctx context.Context, studentID string) (bool, error) {
	pipe := g.client.TxPipeline()
	added := pipe.SAdd(ctx, g.key, studentID)
	if g.ttl > 0 {
		pipe.Expire(ctx, g.key, g.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis guard admit: %w", err)
	}
	return added.Val() == 1, nil
}

// Release drops the session set.
func (g *RedisGuard) Release(ctx context.Context) error {
	return g.client.Del(ctx, g.key).Err()
}
