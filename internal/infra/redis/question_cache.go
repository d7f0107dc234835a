package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"weekly-exam-service/internal/app"
	"weekly-exam-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionCache caches an exam's question payload in Redis and falls back to
// the bank loader on a miss. Stored as: SET weekly-exam:{examID}:questions {json}.
// Question edits propagate when the entry expires; the TTL is the staleness
// bound admins accept for mid-week content fixes.
type QuestionCache struct {
	client *redis.Client
	loader app.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader app.QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) QuestionsForExam(ctx context.Context, examID string, questionIDs []int64) ([]domain.Question, error) {
	key := c.key(examID)

	if questions, ok := c.lookup(ctx, key); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(examID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := c.lookup(ctx, key); ok {
			return questions, nil
		}

		questions, err := c.loader.QuestionsForExam(ctx, examID, questionIDs)
		if err != nil {
			return nil, err
		}

		if raw, err := json.Marshal(questions); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) lookup(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) key(examID string) string {
	return "weekly-exam:" + examID + ":questions"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
