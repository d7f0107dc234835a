package redis

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"weekly-exam-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// LeaderboardCache keeps computed boards in a Redis hash per exam, one field
// per requested limit: HSET weekly-exam:{examID}:leaderboard {limit} {json}.
// A short TTL bounds staleness during an active window; submit and finalize
// drop the whole hash. Everything here is best-effort: a Redis hiccup only
// costs a recomputation.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) Get(ctx context.Context, examID string, limit int) (domain.Leaderboard, bool) {
	raw, err := c.client.HGet(ctx, c.key(examID), strconv.Itoa(limit)).Bytes()
	if err != nil {
		return domain.Leaderboard{}, false
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, false
	}
	return lb, true
}

func (c *LeaderboardCache) Set(ctx context.Context, lb domain.Leaderboard, limit int) {
	raw, err := json.Marshal(lb)
	if err != nil {
		return
	}
	key := c.key(lb.ExamID)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, strconv.Itoa(limit), raw)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("cache leaderboard %s: %v", lb.ExamID, err)
	}
}

func (c *LeaderboardCache) Invalidate(ctx context.Context, examID string) {
	if err := c.client.Del(ctx, c.key(examID)).Err(); err != nil {
		log.Printf("invalidate leaderboard %s: %v", examID, err)
	}
}

func (c *LeaderboardCache) key(examID string) string {
	return "weekly-exam:" + examID + ":leaderboard"
}
