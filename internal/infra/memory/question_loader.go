package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"weekly-exam-service/internal/app"
	"weekly-exam-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// StaticQuestionLoader serves questions from an in-memory bank (tests/demos).
type StaticQuestionLoader struct {
	questions map[int64]domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	bank := make(map[int64]domain.Question, len(questions))
	for _, q := range questions {
		bank[q.ID] = q
	}
	return &StaticQuestionLoader{questions: bank}
}

func (l *StaticQuestionLoader) QuestionsForExam(_ context.Context, _ string, questionIDs []int64) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(questionIDs))
	for _, id := range questionIDs {
		if q, ok := l.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// QuestionCache caches an exam's question payload with TTL to avoid repeated
// bank hits while the exam is live. Edits to a referenced question propagate
// once the entry expires.
type QuestionCache struct {
	loader app.QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader app.QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestions),
	}
}

func (c *QuestionCache) QuestionsForExam(ctx context.Context, examID string, questionIDs []int64) ([]domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[examID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(examID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[examID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.loader.QuestionsForExam(ctx, examID, questionIDs)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[examID] = cachedQuestions{
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
