package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"qrattend/internal/attendance"
)

// SummaryCache keeps derived summaries in redis as JSON with a TTL. A
// per-pair generation counter guards fills against concurrent invalidation.
type SummaryCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// Generation counters outlive any in-flight computation by a wide margin.
const generationTTL = 24 * time.Hour

// KEYS[1] generation, KEYS[2] summary; ARGV gen, payload, ttl ms.
var setIfCurrent = redis.NewScript(`
local cur = redis.call("GET", KEYS[1]) or "0"
if cur ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

func NewSummaryCache(client redis.Cmdable, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(courseID, studentID string) string {
	return fmt.Sprintf("summary:%s:%s", courseID, studentID)
}

func generationKey(courseID, studentID string) string {
	return fmt.Sprintf("summary:%s:%s:gen", courseID, studentID)
}

func (c *SummaryCache) Get(ctx context.Context, courseID, studentID string) (*attendance.Summary, error) {
	raw, err := c.client.Get(ctx, summaryKey(courseID, studentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("summary cache get: %w", err)
	}
	var s attendance.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		// Unreadable entries count as a miss; the next fill overwrites them.
		return nil, nil
	}
	return &s, nil
}

func (c *SummaryCache) Generation(ctx context.Context, courseID, studentID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(courseID, studentID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("summary cache generation: %w", err)
	}
	return gen, nil
}

func (c *SummaryCache) SetIfCurrent(ctx context.Context, s attendance.Summary, gen int64) (bool, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("summary cache encode: %w", err)
	}
	keys := []string{generationKey(s.CourseID, s.StudentID), summaryKey(s.CourseID, s.StudentID)}
	n, err := setIfCurrent.Run(ctx, c.client, keys, strconv.FormatInt(gen, 10), raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("summary cache set: %w", err)
	}
	return n == 1, nil
}

// Invalidate advances the pair's generation and drops the cached entry.
func (c *SummaryCache) Invalidate(ctx context.Context, courseID, studentID string) error {
	gk := generationKey(courseID, studentID)
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, gk)
		p.Expire(ctx, gk, generationTTL)
		p.Del(ctx, summaryKey(courseID, studentID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("summary cache invalidate: %w", err)
	}
	return nil
}
